package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ticket-bot/bot"
	"ticket-bot/config"
	"ticket-bot/handlers"
	"ticket-bot/lang"
	"ticket-bot/notify"
	"ticket-bot/storage"
	"ticket-bot/ticket"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to config file")
	cleanup := flag.Bool("cleanup", false, "Remove slash commands on shutdown")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Discord.Token == "" {
		log.Fatal("Set your bot token in config.json → discord.token or the DISCORD_TOKEN environment variable")
	}

	lang.Load(cfg.LangFile)

	var store ticket.Store
	if err := storage.InitDB(&cfg.Database); err != nil {
		log.Printf("WARNING: Database init failed (%v). Running without the ticket store; /ticket list will be empty.", err)
	} else {
		store = storage.DB
		defer storage.DB.Close()
	}

	var notifier ticket.Notifier
	if cfg.Notify.Enabled {
		pub, err := notify.New(cfg.Notify.URL, cfg.Notify.Exchange)
		if err != nil {
			log.Printf("WARNING: Event publisher init failed: %v. Ticket events will not be published.", err)
		} else {
			notifier = pub
			defer pub.Close()
		}
	}

	categories := make([]ticket.Category, 0, len(cfg.Tickets.Categories))
	for _, c := range cfg.Tickets.Categories {
		categories = append(categories, ticket.Category{
			Key:        c.ID,
			Name:       c.Name,
			Emoji:      c.Emoji,
			NotifyRole: c.NotifyRole,
		})
	}
	registry := ticket.NewRegistry(categories)

	b, err := bot.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	gw := ticket.NewSessionGateway(b.Session)
	lifecycle := ticket.NewLifecycle(ticket.Deps{
		Channels: gw,
		Messages: gw,
		Auth:     gw,
		Registry: registry,
		Store:    store,
		Notifier: notifier,
	}, ticket.Config{
		LogChannelName:     cfg.Tickets.LogChannel,
		ParentCategoryName: cfg.Tickets.ParentCategory,
		StaffRoles:         cfg.Tickets.StaffRoles,
		GraceDelay:         time.Duration(cfg.Tickets.GraceDelaySeconds) * time.Second,
	})

	handlers.Cfg = cfg
	handlers.Lifecycle = lifecycle
	handlers.Registry = registry
	handlers.Store = store
	handlers.Register(b.Session)
	b.OnReady = handlers.PostStartupPanels

	if err := b.Start(); err != nil {
		log.Fatalf("Failed to start bot: %v", err)
	}
	defer b.Stop()

	b.RegisterCommands(handlers.Commands())

	log.Println("Bot is running. Press Ctrl+C to exit.")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	if *cleanup {
		b.CleanupCommands()
	}
}
