// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/cliquechat/clique/internal/chat"
)

// Handler handles a single gateway connection.
type Handler struct {
	conn     net.Conn
	reader   *bufio.Reader
	service  *chat.Service
	identity string
	room     string
	client   *chat.Conn
	quitting bool
}

// NewHandler creates a new handler.
func NewHandler(conn net.Conn, service *chat.Service) *Handler {
	return &Handler{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		service: service,
	}
}

// Handle processes the connection until closed.
func (h *Handler) Handle(ctx context.Context) {
	defer func() {
		if h.client != nil {
			h.service.Disconnect(h.client)
		}
		if err := h.conn.Close(); err != nil {
			slog.Debug("error closing connection", "error", err)
		}
	}()

	h.send("Welcome to Clique!")
	h.send("Use: iam <identity>")

	// Channel for lines read from the connection. The done channel releases
	// the reader goroutine if the client pipelined input past a quit: without
	// it the goroutine would block forever on an undrained lineCh send.
	lineCh := make(chan string)
	errCh := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			line, err := h.reader.ReadString('\n')
			if err != nil {
				errCh <- err
				return
			}
			select {
			case lineCh <- strings.TrimSpace(line):
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-errCh:
			if !errors.Is(err, io.EOF) {
				slog.Debug("connection read error", "identity", h.identity, "error", err)
			}
			return

		case line := <-lineCh:
			h.processLine(ctx, line)
			if h.quitting {
				return
			}

		case event, ok := <-h.eventChanOrNil():
			if !ok {
				// Dropped by the broadcaster (slow consumer) or reset.
				h.client = nil
				h.room = ""
				h.send("* disconnected from room")
				continue
			}
			h.sendEvent(event)
		}
	}
}

// eventChanOrNil returns the event channel if attached to a room, or nil
// otherwise. A nil channel makes the select case block forever.
func (h *Handler) eventChanOrNil() <-chan chat.Event {
	if h.client != nil {
		return h.client.Events()
	}
	return nil
}

func (h *Handler) processLine(ctx context.Context, line string) {
	cmd, arg := parseCommand(line)

	switch cmd {
	case "iam":
		h.handleIdentify(arg)
	case "create":
		h.handleCreate(ctx, arg)
	case "join":
		h.handleJoin(ctx, arg)
	case "leave":
		h.handleLeave()
	case "send":
		h.handleSend(ctx, arg)
	case "history":
		h.handleHistory(ctx, arg)
	case "list":
		h.handleList(ctx)
	case "quit":
		h.handleQuit()
	default:
		if cmd != "" {
			h.send("Unknown command: " + cmd)
		}
	}
}

// parseCommand splits a line into a command word and its argument.
func parseCommand(line string) (cmd, arg string) {
	parts := strings.SplitN(line, " ", 2)
	cmd = strings.ToLower(parts[0])
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return cmd, arg
}

func (h *Handler) handleIdentify(arg string) {
	if arg == "" {
		h.send("Usage: iam <identity>")
		return
	}
	if err := chat.ValidateIdentity(arg); err != nil {
		h.send("Invalid identity: " + err.Error())
		return
	}
	h.identity = arg
	h.send(fmt.Sprintf("Hello, %s.", arg))
}

func (h *Handler) handleCreate(ctx context.Context, arg string) {
	if !h.identified() {
		return
	}
	if arg == "" {
		h.send("Usage: create <group>")
		return
	}
	if _, err := h.service.CreateGroup(ctx, arg, h.identity); err != nil {
		if errors.Is(err, chat.ErrAlreadyExists) {
			h.send(fmt.Sprintf("Group %q already exists.", arg))
			return
		}
		slog.Error("failed to create group", "group", arg, "identity", h.identity, "error", err)
		h.send("Error: could not create the group.")
		return
	}
	h.send(fmt.Sprintf("Created group %q.", arg))
}

func (h *Handler) handleJoin(ctx context.Context, arg string) {
	if !h.identified() {
		return
	}
	if arg == "" {
		h.send("Usage: join <group>")
		return
	}
	if h.client != nil {
		h.service.LeaveGroup(h.room, h.identity, h.client)
		h.service.Disconnect(h.client)
		h.client = nil
		h.room = ""
	}

	client := chat.NewConn(0)
	if err := h.service.JoinGroup(ctx, arg, h.identity, client); err != nil {
		client.Close()
		if errors.Is(err, chat.ErrNotFound) {
			h.send(fmt.Sprintf("Group %q does not exist.", arg))
			return
		}
		slog.Error("failed to join group", "group", arg, "identity", h.identity, "error", err)
		h.send("Error: could not join the group.")
		return
	}
	h.client = client
	h.room = arg
	h.send(fmt.Sprintf("Joined %q.", arg))
}

func (h *Handler) handleLeave() {
	if h.client == nil {
		h.send("You are not in a room.")
		return
	}
	h.service.LeaveGroup(h.room, h.identity, h.client)
	h.service.Disconnect(h.client)
	h.client = nil
	h.send(fmt.Sprintf("Left %q.", h.room))
	h.room = ""
}

func (h *Handler) handleSend(ctx context.Context, arg string) {
	if !h.identified() {
		return
	}
	if h.room == "" {
		h.send("Join a room first.")
		return
	}
	if _, err := h.service.SendMessage(ctx, h.room, h.identity, arg); err != nil {
		if errors.Is(err, chat.ErrEmptyBody) {
			h.send("Send what?")
			return
		}
		slog.Error("failed to send message", "group", h.room, "identity", h.identity, "error", err)
		h.send("Error: your message could not be sent.")
		return
	}
}

func (h *Handler) handleHistory(ctx context.Context, arg string) {
	if !h.identified() {
		return
	}
	group := arg
	if group == "" {
		group = h.room
	}
	if group == "" {
		h.send("Usage: history <group>")
		return
	}
	messages, err := h.service.GetHistory(ctx, group)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			h.send(fmt.Sprintf("Group %q does not exist.", group))
			return
		}
		slog.Error("failed to get history", "group", group, "error", err)
		h.send("Error: could not retrieve history.")
		return
	}
	h.send(fmt.Sprintf("--- %d messages in %q ---", len(messages), group))
	for _, msg := range messages {
		h.send(fmt.Sprintf("[%s] %s: %s", msg.Timestamp.Format("15:04:05"), msg.Sender, msg.Body))
	}
	h.send("--- end of history ---")
}

func (h *Handler) handleList(ctx context.Context) {
	summaries, err := h.service.ListGroups(ctx)
	if err != nil {
		slog.Error("failed to list groups", "error", err)
		h.send("Error: could not list groups.")
		return
	}
	if len(summaries) == 0 {
		h.send("No groups yet.")
		return
	}
	for _, summary := range summaries {
		h.send(fmt.Sprintf("%s (%d members)", summary.Name, len(summary.Members)))
	}
}

func (h *Handler) handleQuit() {
	h.send("Goodbye!")
	h.quitting = true
}

func (h *Handler) identified() bool {
	if h.identity == "" {
		h.send("Identify first: iam <identity>")
		return false
	}
	return true
}

func (h *Handler) send(msg string) {
	if _, err := fmt.Fprintln(h.conn, msg); err != nil {
		slog.Debug("failed to send to client", "identity", h.identity, "error", err)
	}
}

func (h *Handler) sendEvent(e chat.Event) {
	switch e.Type {
	case chat.EventTypeMessage:
		var p chat.MessageReceivedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			slog.Error("failed to unmarshal message event", "event_id", e.ID.String(), "room", e.Room, "error", err)
			h.send(fmt.Sprintf("[%s] <corrupted message>", e.Room))
			return
		}
		h.send(fmt.Sprintf("[%s] %s: %s", e.Room, p.Message.Sender, p.Message.Body))
	case chat.EventTypeUserJoined:
		var p chat.UserJoinedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return
		}
		h.send(fmt.Sprintf("[%s] * %s joined", e.Room, p.Identity))
	case chat.EventTypeUserLeft:
		var p chat.UserLeftPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return
		}
		h.send(fmt.Sprintf("[%s] * %s left", e.Room, p.Identity))
	case chat.EventTypeMessageDeleted:
		var p chat.MessageDeletedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return
		}
		h.send(fmt.Sprintf("[%s] * message %s deleted", e.Room, p.MessageID))
	default:
		slog.Warn("unknown event type", "event_id", e.ID.String(), "type", e.Type)
	}
}
