// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/cliquechat/clique/internal/chat"
	"github.com/cliquechat/clique/internal/store"
)

// testEnv wires the chat service over a real file store.
type testEnv struct {
	path     string
	store    *store.FileStore
	registry *chat.RoomRegistry
	service  *chat.Service
}

func newTestEnv(path string) (*testEnv, error) {
	fileStore, err := store.OpenFileStore(path)
	if err != nil {
		return nil, err
	}
	registry := chat.NewRoomRegistry()
	service := chat.NewService(chat.ServiceConfig{
		Store:       fileStore,
		Registry:    registry,
		Broadcaster: chat.NewBroadcaster(registry),
	})
	return &testEnv{path: path, store: fileStore, registry: registry, service: service}, nil
}

func receive(conn *chat.Conn) (chat.Event, bool) {
	select {
	case event, ok := <-conn.Events():
		return event, ok
	case <-time.After(time.Second):
		return chat.Event{}, false
	}
}

var _ = Describe("Chat over a file store", func() {
	var env *testEnv
	ctx := context.Background()

	BeforeEach(func() {
		var err error
		env, err = newTestEnv(filepath.Join(GinkgoT().TempDir(), "groups.json"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("runs the full create/join/send/leave flow with durable state", func() {
		_, err := env.service.CreateGroup(ctx, "algebra", "a@x")
		Expect(err).NotTo(HaveOccurred())

		alice := chat.NewConn(10)
		Expect(env.service.JoinGroup(ctx, "algebra", "a@x", alice)).To(Succeed())
		event, ok := receive(alice)
		Expect(ok).To(BeTrue())
		Expect(event.Type).To(Equal(chat.EventTypeUserJoined))

		bob := chat.NewConn(10)
		Expect(env.service.JoinGroup(ctx, "algebra", "b@x", bob)).To(Succeed())
		receive(alice)
		receive(bob)

		msg, err := env.service.SendMessage(ctx, "algebra", "a@x", "hi")
		Expect(err).NotTo(HaveOccurred())

		for _, conn := range []*chat.Conn{alice, bob} {
			event, ok := receive(conn)
			Expect(ok).To(BeTrue())
			Expect(event.Type).To(Equal(chat.EventTypeMessage))

			var payload chat.MessageReceivedPayload
			Expect(json.Unmarshal(event.Payload, &payload)).To(Succeed())
			Expect(payload.Message.ID).To(Equal(msg.ID))
			Expect(payload.Message.Body).To(Equal("hi"))
		}

		env.service.LeaveGroup("algebra", "b@x", bob)
		event, ok = receive(alice)
		Expect(ok).To(BeTrue())
		Expect(event.Type).To(Equal(chat.EventTypeUserLeft))

		// Membership and history survive a process restart
		restarted, err := newTestEnv(env.path)
		Expect(err).NotTo(HaveOccurred())

		groups, err := restarted.service.ListGroups(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(groups).To(HaveLen(1))
		Expect(groups[0].Members).To(Equal([]string{"a@x", "b@x"}))

		history, err := restarted.service.GetHistory(ctx, "algebra")
		Expect(err).NotTo(HaveOccurred())
		Expect(history).To(HaveLen(1))
		Expect(history[0].ID).To(Equal(msg.ID))
	})

	It("drops a slow subscriber without losing the durable write", func() {
		_, err := env.service.CreateGroup(ctx, "algebra", "a@x")
		Expect(err).NotTo(HaveOccurred())

		slow := chat.NewConn(1)
		Expect(env.service.JoinGroup(ctx, "algebra", "a@x", slow)).To(Succeed())
		// The join event fills the buffer; the next publish overflows it

		_, err = env.service.SendMessage(ctx, "algebra", "a@x", "first")
		Expect(err).NotTo(HaveOccurred())

		Expect(env.registry.SubscribersOf("algebra")).To(BeEmpty())

		history, err := env.service.GetHistory(ctx, "algebra")
		Expect(err).NotTo(HaveOccurred())
		Expect(history).To(HaveLen(1), "the write must land even when delivery fails")
	})

	It("deletes a message everywhere", func() {
		_, err := env.service.CreateGroup(ctx, "algebra", "a@x")
		Expect(err).NotTo(HaveOccurred())
		msg, err := env.service.SendMessage(ctx, "algebra", "a@x", "oops")
		Expect(err).NotTo(HaveOccurred())

		removed, err := env.service.DeleteMessage(ctx, "algebra", msg.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(BeTrue())

		restarted, err := newTestEnv(env.path)
		Expect(err).NotTo(HaveOccurred())
		history, err := restarted.service.GetHistory(ctx, "algebra")
		Expect(err).NotTo(HaveOccurred())
		Expect(history).To(BeEmpty())
	})
})
