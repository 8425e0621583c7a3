// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cliquechat/clique/internal/chat"
	"github.com/cliquechat/clique/internal/store"
)

// setupPostgresContainer starts a PostgreSQL container, runs the migrations
// and opens a store over it.
func setupPostgresContainer() (*store.PostgresStore, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("clique_test"),
		postgres.WithUsername("clique"),
		postgres.WithPassword("clique"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, nil, err
	}
	if err := migrator.Close(); err != nil {
		return nil, nil, err
	}

	groupStore, err := store.NewPostgresStore(ctx, connStr)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		groupStore.Close()
		_ = container.Terminate(ctx)
	}

	return groupStore, cleanup, nil
}

var _ = Describe("PostgresStore", func() {
	var groupStore *store.PostgresStore
	var cleanup func()
	ctx := context.Background()

	BeforeEach(func() {
		var err error
		groupStore, cleanup, err = setupPostgresContainer()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cleanup()
	})

	Describe("CreateGroup", func() {
		It("creates a group with the creator as sole member", func() {
			group, err := groupStore.CreateGroup(ctx, "algebra", "alice@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(group.Name).To(Equal("algebra"))
			Expect(group.Members).To(Equal([]string{"alice@example.com"}))

			groups, err := groupStore.ListGroups(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups).To(HaveLen(1))
		})

		It("rejects a duplicate name", func() {
			_, err := groupStore.CreateGroup(ctx, "algebra", "alice@example.com")
			Expect(err).NotTo(HaveOccurred())

			_, err = groupStore.CreateGroup(ctx, "algebra", "bob@example.com")
			Expect(err).To(MatchError(chat.ErrAlreadyExists))
		})
	})

	Describe("AddMember", func() {
		It("preserves join order and ignores repeats", func() {
			_, err := groupStore.CreateGroup(ctx, "algebra", "alice@example.com")
			Expect(err).NotTo(HaveOccurred())

			Expect(groupStore.AddMember(ctx, "algebra", "bob@example.com")).To(Succeed())
			Expect(groupStore.AddMember(ctx, "algebra", "bob@example.com")).To(Succeed())

			groups, err := groupStore.ListGroups(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups[0].Members).To(Equal([]string{"alice@example.com", "bob@example.com"}))
		})

		It("fails for a missing group", func() {
			err := groupStore.AddMember(ctx, "nope", "alice@example.com")
			Expect(err).To(MatchError(chat.ErrNotFound))
		})
	})

	Describe("AppendMessage", func() {
		It("assigns ids that order the history", func() {
			_, err := groupStore.CreateGroup(ctx, "algebra", "alice@example.com")
			Expect(err).NotTo(HaveOccurred())

			first, err := groupStore.AppendMessage(ctx, "algebra", "alice@example.com", "first")
			Expect(err).NotTo(HaveOccurred())
			second, err := groupStore.AppendMessage(ctx, "algebra", "alice@example.com", "second")
			Expect(err).NotTo(HaveOccurred())

			messages, err := groupStore.ListMessages(ctx, "algebra")
			Expect(err).NotTo(HaveOccurred())
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].ID).To(Equal(first.ID))
			Expect(messages[1].ID).To(Equal(second.ID))
		})

		It("fails for a missing group", func() {
			_, err := groupStore.AppendMessage(ctx, "nope", "alice@example.com", "hi")
			Expect(err).To(MatchError(chat.ErrNotFound))
		})
	})

	Describe("DeleteMessage", func() {
		It("removes exactly the addressed message", func() {
			_, err := groupStore.CreateGroup(ctx, "algebra", "alice@example.com")
			Expect(err).NotTo(HaveOccurred())

			first, err := groupStore.AppendMessage(ctx, "algebra", "alice@example.com", "first")
			Expect(err).NotTo(HaveOccurred())
			second, err := groupStore.AppendMessage(ctx, "algebra", "alice@example.com", "second")
			Expect(err).NotTo(HaveOccurred())

			removed, err := groupStore.DeleteMessage(ctx, "algebra", first.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeTrue())

			removed, err = groupStore.DeleteMessage(ctx, "algebra", first.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeFalse())

			messages, err := groupStore.ListMessages(ctx, "algebra")
			Expect(err).NotTo(HaveOccurred())
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].ID).To(Equal(second.ID))
		})
	})

	Describe("ResetAll", func() {
		It("discards every group and message", func() {
			_, err := groupStore.CreateGroup(ctx, "algebra", "alice@example.com")
			Expect(err).NotTo(HaveOccurred())
			_, err = groupStore.AppendMessage(ctx, "algebra", "alice@example.com", "hi")
			Expect(err).NotTo(HaveOccurred())

			Expect(groupStore.ResetAll(ctx)).To(Succeed())

			groups, err := groupStore.ListGroups(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups).To(BeEmpty())
		})
	})
})
