package bot

import (
	"fmt"
	"log"

	"ticket-bot/config"

	"github.com/bwmarrin/discordgo"
)

type Bot struct {
	Session *discordgo.Session
	Config  *config.Config

	// OnReady runs once the gateway reports ready, before slash
	// commands are registered. Used to post the ticket panels.
	OnReady func(s *discordgo.Session, r *discordgo.Ready)

	ready chan struct{}
}

func New(cfg *config.Config) (*Bot, error) {
	s, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	// Guild metadata and interactions are all this bot listens for.
	s.Identify.Intents = discordgo.IntentsGuilds
	return &Bot{
		Session: s,
		Config:  cfg,
		ready:   make(chan struct{}),
	}, nil
}

func (b *Bot) Start() error {
	b.Session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Printf("Bot is online as %s#%s", r.User.Username, r.User.Discriminator)
		if b.OnReady != nil {
			b.OnReady(s, r)
		}
		select {
		case <-b.ready:
		default:
			close(b.ready)
		}
	})
	return b.Session.Open()
}

func (b *Bot) Stop() {
	_ = b.Session.Close()
}

// RegisterCommands blocks until the session is ready, then overwrites
// the guild's slash commands with cmds.
func (b *Bot) RegisterCommands(cmds []*discordgo.ApplicationCommand) []*discordgo.ApplicationCommand {
	<-b.ready

	appID := b.Session.State.User.ID
	guildID := b.Config.Discord.GuildID

	registered, err := b.Session.ApplicationCommandBulkOverwrite(appID, guildID, cmds)
	if err != nil {
		log.Printf("Failed to bulk-overwrite commands: %v", err)
		return nil
	}
	log.Printf("Registered %d slash commands for app %s", len(registered), appID)
	return registered
}

func (b *Bot) CleanupCommands() {
	<-b.ready
	appID := b.Session.State.User.ID
	guildID := b.Config.Discord.GuildID
	if _, err := b.Session.ApplicationCommandBulkOverwrite(appID, guildID, []*discordgo.ApplicationCommand{}); err != nil {
		log.Printf("Failed to clean up commands: %v", err)
		return
	}
	log.Println("Cleaned up all slash commands")
}
