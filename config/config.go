package config

import (
	"encoding/json"
	"os"
)

type Config struct {
	Discord  DiscordConfig  `json:"discord"`
	Tickets  TicketsConfig  `json:"tickets"`
	Database DatabaseConfig `json:"database"`
	Notify   NotifyConfig   `json:"notify"`
	LangFile string         `json:"lang_file"`
}

type DiscordConfig struct {
	Token   string `json:"token"`
	GuildID string `json:"guild_id"`
}

type TicketsConfig struct {
	// IntakeChannel is where the "Create Ticket" panel is posted on startup.
	IntakeChannel string `json:"intake_channel"`
	// LogChannel receives open/closed log entries and transcripts.
	LogChannel        string           `json:"log_channel"`
	ParentCategory    string           `json:"parent_category"`
	StaffRoles        []string         `json:"staff_roles"`
	GraceDelaySeconds int              `json:"grace_delay_seconds"`
	Categories        []TicketCategory `json:"categories"`
}

type TicketCategory struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Emoji      string `json:"emoji"`
	NotifyRole string `json:"notify_role,omitempty"`
}

type DatabaseConfig struct {
	Driver  string        `json:"driver"`
	SQLite  SQLiteConfig  `json:"sqlite"`
	MongoDB MongoDBConfig `json:"mongodb"`
}

type SQLiteConfig struct {
	Path string `json:"path"`
}

type MongoDBConfig struct {
	URI      string `json:"uri"`
	Database string `json:"database"`
}

type NotifyConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
}

// DefaultCategories is the category set the bot ships with. A non-empty
// tickets.categories list in the config file replaces it entirely.
func DefaultCategories() []TicketCategory {
	return []TicketCategory{
		{ID: "onboarding", Name: "Onboarding", Emoji: "👋"},
		{ID: "moderation", Name: "Moderation", Emoji: "🛡️"},
		{ID: "competitive", Name: "Competitive", Emoji: "🏆"},
		{ID: "pr", Name: "PR", Emoji: "📣"},
		{ID: "development", Name: "Development", Emoji: "💻"},
		{ID: "events", Name: "Events", Emoji: "🎉"},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Discord.Token == "" {
		cfg.Discord.Token = os.Getenv("DISCORD_TOKEN")
	}
	if cfg.Tickets.IntakeChannel == "" {
		cfg.Tickets.IntakeChannel = "staff-tickets"
	}
	if cfg.Tickets.LogChannel == "" {
		cfg.Tickets.LogChannel = "staff-tickets-log"
	}
	if cfg.Tickets.ParentCategory == "" {
		cfg.Tickets.ParentCategory = "Tickets"
	}
	if cfg.Tickets.GraceDelaySeconds <= 0 {
		cfg.Tickets.GraceDelaySeconds = 5
	}
	if len(cfg.Tickets.Categories) == 0 {
		cfg.Tickets.Categories = DefaultCategories()
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.SQLite.Path == "" {
		cfg.Database.SQLite.Path = "data/tickets.db"
	}
	if cfg.Notify.Exchange == "" {
		cfg.Notify.Exchange = "tickets"
	}
}
