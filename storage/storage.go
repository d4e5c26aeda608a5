package storage

import (
	"fmt"
	"time"

	"ticket-bot/config"
	"ticket-bot/ticket"
)

// DB is the process-wide ticket store, set by InitDB. It mirrors open
// tickets for querying (/ticket list) and keeps transcripts after
// close; the channel topic stays the authoritative record.
var DB TicketStore

type TicketStore interface {
	Init() error
	Close() error

	SaveOpen(t ticket.StoredTicket) error
	ListOpen(guildID string) ([]ticket.StoredTicket, error)
	CloseAndArchive(channelID, transcript, closedBy string, closedAt time.Time) error
}

func InitDB(cfg *config.DatabaseConfig) error {
	switch cfg.Driver {
	case "sqlite":
		db := &SQLiteStore{Path: cfg.SQLite.Path}
		if err := db.Init(); err != nil {
			return err
		}
		DB = db
		return nil

	case "mongodb":
		db := &MongoStore{URI: cfg.MongoDB.URI, DBName: cfg.MongoDB.Database}
		if err := db.Init(); err != nil {
			return err
		}
		DB = db
		return nil

	default:
		return fmt.Errorf("unsupported database driver: %s (use \"sqlite\" or \"mongodb\")", cfg.Driver)
	}
}
