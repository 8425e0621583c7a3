// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/cliquechat/clique/internal/chat"
)

// poolIface abstracts *pgxpool.Pool so the store can be unit tested with pgxmock.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements chat.GroupStore using PostgreSQL.
type PostgresStore struct {
	pool poolIface
}

// NewPostgresStore creates a new PostgreSQL group store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping database").Wrap(err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool creates a store over an existing pool. Used by tests.
func NewPostgresStoreWithPool(pool poolIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// CreateGroup creates a group with the creator as sole member. The group row
// and the creator's membership are inserted in one transaction.
func (s *PostgresStore) CreateGroup(ctx context.Context, name, creator string) (*chat.Group, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, oops.Code("GROUP_CREATE_FAILED").With("group", name).Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx,
		`INSERT INTO groups (name, created_at) VALUES ($1, $2)`,
		name, now,
	); err != nil {
		if isPgErr(err, pgerrcode.UniqueViolation) {
			return nil, oops.With("group", name).Wrap(chat.ErrAlreadyExists)
		}
		return nil, oops.Code("GROUP_CREATE_FAILED").With("group", name).Wrap(err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO group_members (group_name, identity, joined_at) VALUES ($1, $2, $3)`,
		name, creator, now,
	); err != nil {
		return nil, oops.Code("GROUP_CREATE_FAILED").With("group", name).Wrap(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, oops.Code("GROUP_CREATE_FAILED").With("group", name).Wrap(err)
	}

	return &chat.Group{Name: name, Members: []string{creator}}, nil
}

// AddMember adds an identity to a group's member list. ON CONFLICT makes
// repeated joins a no-op.
func (s *PostgresStore) AddMember(ctx context.Context, name, identity string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO group_members (group_name, identity, joined_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (group_name, identity) DO NOTHING`,
		name, identity, time.Now().UTC(),
	)
	if err != nil {
		if isPgErr(err, pgerrcode.ForeignKeyViolation) {
			return oops.With("group", name).Wrap(chat.ErrNotFound)
		}
		return oops.Code("MEMBER_ADD_FAILED").With("group", name).With("identity", identity).Wrap(err)
	}
	return nil
}

// AppendMessage assigns an id and timestamp and inserts the message.
func (s *PostgresStore) AppendMessage(ctx context.Context, name, sender, body string) (*chat.Message, error) {
	msg := chat.Message{
		ID:        chat.NewULID(),
		Sender:    sender,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, group_name, sender, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID.String(), name, msg.Sender, msg.Body, msg.Timestamp,
	)
	if err != nil {
		if isPgErr(err, pgerrcode.ForeignKeyViolation) {
			return nil, oops.With("group", name).Wrap(chat.ErrNotFound)
		}
		return nil, oops.Code("MESSAGE_APPEND_FAILED").With("group", name).Wrap(err)
	}
	return &msg, nil
}

// DeleteMessage removes a message by id and reports whether a row was deleted.
func (s *PostgresStore) DeleteMessage(ctx context.Context, name string, id ulid.ULID) (bool, error) {
	if err := s.groupExists(ctx, name); err != nil {
		return false, err
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM messages WHERE group_name = $1 AND id = $2`,
		name, id.String(),
	)
	if err != nil {
		return false, oops.Code("MESSAGE_DELETE_FAILED").With("group", name).With("message_id", id.String()).Wrap(err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListGroups returns summaries of all groups, sorted by name, members in
// join order.
func (s *PostgresStore) ListGroups(ctx context.Context) ([]chat.GroupSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT g.name, m.identity
		 FROM groups g
		 LEFT JOIN group_members m ON m.group_name = g.name
		 ORDER BY g.name, m.joined_at`,
	)
	if err != nil {
		return nil, oops.Code("GROUP_LIST_FAILED").Wrap(err)
	}
	defer rows.Close()

	var summaries []chat.GroupSummary
	for rows.Next() {
		var name string
		var identity *string
		if err := rows.Scan(&name, &identity); err != nil {
			return nil, oops.Code("GROUP_LIST_FAILED").With("operation", "scan row").Wrap(err)
		}
		if len(summaries) == 0 || summaries[len(summaries)-1].Name != name {
			summaries = append(summaries, chat.GroupSummary{Name: name})
		}
		if identity != nil {
			last := &summaries[len(summaries)-1]
			last.Members = append(last.Members, *identity)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("GROUP_LIST_FAILED").With("operation", "iterate rows").Wrap(err)
	}
	return summaries, nil
}

// ListMessages returns a group's history ordered by message id, which is
// creation order for ULIDs.
func (s *PostgresStore) ListMessages(ctx context.Context, name string) ([]chat.Message, error) {
	if err := s.groupExists(ctx, name); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender, body, created_at
		 FROM messages WHERE group_name = $1 ORDER BY id`,
		name,
	)
	if err != nil {
		return nil, oops.Code("MESSAGE_LIST_FAILED").With("group", name).Wrap(err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var msg chat.Message
		var idStr string
		if err := rows.Scan(&idStr, &msg.Sender, &msg.Body, &msg.Timestamp); err != nil {
			return nil, oops.Code("MESSAGE_LIST_FAILED").With("operation", "scan row").Wrap(err)
		}
		msg.ID, err = ulid.Parse(idStr)
		if err != nil {
			return nil, oops.Code("MESSAGE_LIST_FAILED").With("group", name).With("message_id", idStr).Wrap(err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("MESSAGE_LIST_FAILED").With("operation", "iterate rows").Wrap(err)
	}
	return messages, nil
}

// ResetAll discards all groups, memberships and messages.
func (s *PostgresStore) ResetAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE messages, group_members, groups`); err != nil {
		return oops.Code("STORE_RESET_FAILED").Wrap(err)
	}
	return nil
}

// groupExists returns chat.ErrNotFound if no group row has the given name.
func (s *PostgresStore) groupExists(ctx context.Context, name string) error {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM groups WHERE name = $1`, name).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.With("group", name).Wrap(chat.ErrNotFound)
	}
	if err != nil {
		return oops.Code("GROUP_LOOKUP_FAILED").With("group", name).Wrap(err)
	}
	return nil
}

// isPgErr reports whether err is a PostgreSQL error with the given code.
func isPgErr(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
