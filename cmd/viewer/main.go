package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"rental-chat/domain"
	"rental-chat/repositories"
)

// Config defines the viewer-side environment variables. Either a
// connection id or the two participant profiles select the conversation.
type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/rental-chat"`
	ConnectionID   string `env:"CONNECTION_ID"`
	ProfileA       string `env:"PROFILE_A"`
	ProfileB       string `env:"PROFILE_B"`
}

func main() {
	// 1. Load config
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	key, err := conversationKey(config)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. Open Badger in Read-Only mode
	// Note: BypassLockGuard allows opening if the daemon holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// 3. Fetch and render the timeline
	repository := repositories.NewMessageRepository(db, slog.Default())
	messages, err := repository.Fetch(key)
	if err != nil {
		log.Fatalf("Failed to fetch conversation: %v", err)
	}

	color.Cyanln("Conversation", key.String())
	render(os.Stdout, messages)
}

func conversationKey(config Config) (domain.ConversationKey, error) {
	if config.ConnectionID != "" {
		return domain.ConnectionKey(config.ConnectionID), nil
	}
	if config.ProfileA != "" && config.ProfileB != "" {
		return domain.PairKey(config.ProfileA, config.ProfileB), nil
	}
	return domain.ConversationKey{}, fmt.Errorf("set CONNECTION_ID or both PROFILE_A and PROFILE_B")
}

func render(out *os.File, messages []domain.Message) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Time", "From", "To", "Message", "Read"})
	table.SetAutoWrapText(false)

	for _, m := range messages {
		read := color.Green.Sprint("read")
		if !m.Read {
			read = color.Red.Sprint("unread")
		}
		table.Append([]string{
			m.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			m.SenderID,
			m.ReceiverID,
			m.Content,
			read,
		})
	}
	table.Render()
}
