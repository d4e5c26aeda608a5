package storage

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"ticket-bot/ticket"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	Path string
	db   *sql.DB
}

func (s *SQLiteStore) Init() error {
	_ = os.MkdirAll(filepath.Dir(s.Path), 0755)

	db, err := sql.Open("sqlite", s.Path)
	if err != nil {
		return fmt.Errorf("sqlite open: %w", err)
	}
	s.db = db

	schema := `
	CREATE TABLE IF NOT EXISTS tickets (
		channel_id      TEXT PRIMARY KEY,
		guild_id        TEXT NOT NULL,
		owner_id        TEXT NOT NULL,
		category        TEXT NOT NULL,
		subject         TEXT NOT NULL,
		log_message_id  TEXT NOT NULL DEFAULT '',
		opened_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_guild ON tickets(guild_id);

	CREATE TABLE IF NOT EXISTS transcripts (
		channel_id  TEXT PRIMARY KEY,
		closed_by   TEXT NOT NULL,
		closed_at   TEXT NOT NULL,
		body        TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite schema: %w", err)
	}
	log.Printf("[DB] SQLite initialised at %s", s.Path)
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) SaveOpen(t ticket.StoredTicket) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO tickets (channel_id, guild_id, owner_id, category, subject, log_message_id, opened_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		t.ChannelID, t.GuildID, t.OwnerID, t.Category, t.Subject, t.LogMessageID, t.OpenedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *SQLiteStore) ListOpen(guildID string) ([]ticket.StoredTicket, error) {
	rows, err := s.db.Query(
		"SELECT channel_id, guild_id, owner_id, category, subject, log_message_id, opened_at FROM tickets WHERE guild_id = ? ORDER BY opened_at",
		guildID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []ticket.StoredTicket
	for rows.Next() {
		var t ticket.StoredTicket
		var openedAt string
		if err := rows.Scan(&t.ChannelID, &t.GuildID, &t.OwnerID, &t.Category, &t.Subject, &t.LogMessageID, &openedAt); err != nil {
			continue
		}
		t.OpenedAt, _ = time.Parse(time.RFC3339, openedAt)
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (s *SQLiteStore) CloseAndArchive(channelID, transcript, closedBy string, closedAt time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO transcripts (channel_id, closed_by, closed_at, body) VALUES (?, ?, ?, ?)",
		channelID, closedBy, closedAt.UTC().Format(time.RFC3339), transcript,
	)
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM tickets WHERE channel_id = ?", channelID); err != nil {
		return err
	}
	return tx.Commit()
}
