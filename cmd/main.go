package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rental-chat/auth"
	"rental-chat/contract"
	"rental-chat/directory"
	"rental-chat/domain"
	"rental-chat/domain/event"
	"rental-chat/infrastructure/embedded"
	"rental-chat/infrastructure/remote"
	"rental-chat/internal"
	"rental-chat/notifications"
	"rental-chat/repositories"
	"rental-chat/runtime"
	"rental-chat/runtime/workers"
	"rental-chat/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the daemon lifecycle, and
// centralizes error reporting, so that every defer (database close, mongo
// disconnect) executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Identity: the hosted provider issued the token, we only verify it.
	self, err := auth.ParseIdentity(config.IdentityToken, []byte(config.IdentitySecret))
	if err != nil {
		return err
	}
	log.Info("Authenticated", "profile", self.ID, "type", self.Type)

	// 3. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Backend selection
	backend, cleanup, err := buildBackend(ctx, config, log)
	if err != nil {
		return err
	}
	defer cleanup()

	// 5. Notification feed under supervision
	feed := notifications.NewFeed(log, backend, self.ID)
	poller := workers.NewNotificationPollWorker(log, feed, config.NotificationPollInterval)
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(poller)
	go sup.Run(ctx)
	defer sup.Stop()

	// 6. Partner resolution
	resolver := directory.NewResolver(log, backend)
	partners, err := resolver.Resolve(ctx, self.ID, self.Type)
	if err != nil {
		return err
	}
	partner, ok := directory.DefaultPartner(partners, config.PartnerID)
	if !ok {
		// A valid, displayable state: stay up for notifications only.
		log.Info("No chat partner available yet, running notification feed only")
		<-ctx.Done()
		return nil
	}

	// 7. Conversation session
	var key domain.ConversationKey
	if config.ConnectionID != "" {
		key = domain.ConnectionKey(config.ConnectionID)
	}

	sess := session.NewSession(log, backend, self)
	history, err := sess.Open(ctx, partner, key)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.Timeline().Watch(func(e event.TimelineEvent) {
		if arrived, ok := e.(event.MessageArrived); ok && arrived.Message.SenderID != self.ID {
			printMessage(arrived.Message)
		}
	})

	log.Info("Conversation open", "partner", partner.ID, "messages", len(history))
	for _, m := range history {
		printMessage(m)
	}

	// 8. stdin -> Send loop until shutdown
	lines := readLines(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down gracefully...")
			return nil
		case line, open := <-lines:
			if !open {
				return nil
			}
			if _, err := sess.Send(ctx, line); err != nil {
				// Content stays in the terminal scrollback for retry.
				log.Warn("Send failed", "error", err)
			}
		}
	}
}

// buildBackend wires either the embedded badger stack or the remote
// mongo/nats/redis stack, returning the cleanup to defer.
func buildBackend(ctx context.Context, config internal.Config, log *slog.Logger) (contract.Backend, func(), error) {
	if config.BackendMode == internal.BackendEmbedded {
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return nil, nil, fmt.Errorf("database opening failed: %w", err)
		}
		backend := embedded.NewBackend(
			log,
			repositories.NewMessageRepository(db, log),
			repositories.NewNotificationRepository(db, log),
			repositories.NewRelationshipRepository(db, log),
			runtime.NewRegistry(),
		)
		return backend, func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(config.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connection failed: %w", err)
	}
	nc, err := nats.Connect(config.NatsURL)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("nats connection failed: %w", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: config.RedisAddr})

	backend := remote.NewBackend(log, client.Database(config.MongoDatabase), nc, rdb)
	cleanup := func() {
		log.Info("Closing remote backend connections...")
		nc.Close()
		_ = rdb.Close()
		_ = client.Disconnect(context.Background())
	}
	return backend, cleanup, nil
}

func readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func printMessage(m domain.Message) {
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), m.SenderID, m.Content)
}
