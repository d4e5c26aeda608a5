package handlers

import (
	"log"
	"strings"

	"ticket-bot/config"
	"ticket-bot/ticket"

	"github.com/bwmarrin/discordgo"
)

// Wired from main before Register is called.
var (
	Cfg       *config.Config
	Lifecycle *ticket.Lifecycle
	Registry  *ticket.Registry
	Store     ticket.Store
)

var manageChannelsPerm = int64(discordgo.PermissionManageChannels)

func Commands() []*discordgo.ApplicationCommand {
	return ticketCommands()
}

func Register(s *discordgo.Session) {
	s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.GuildID == "" {
			return
		}

		switch i.Type {
		case discordgo.InteractionApplicationCommand:
			handleSlashCommand(s, i)
		case discordgo.InteractionMessageComponent:
			handleComponent(s, i)
		case discordgo.InteractionModalSubmit:
			handleModal(s, i)
		}
	})
}

func handleSlashCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch name := i.ApplicationCommandData().Name; name {
	case "ticket":
		handleTicketCommand(s, i)
	case "close":
		handleClose(s, i)
	default:
		log.Printf("Unknown command: %s", name)
	}
}

func handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch customID := i.MessageComponentData().CustomID; customID {
	case createTicketButtonID:
		handleCreateTicketButton(s, i)
	case categorySelectID:
		handleCategorySelect(s, i)
	case ticket.CloseButtonID:
		handleClose(s, i)
	default:
		log.Printf("Unknown component: %s", customID)
	}
}

func handleModal(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.ModalSubmitData().CustomID
	if strings.HasPrefix(customID, ticketModalPrefix) {
		handleTicketModal(s, i, strings.TrimPrefix(customID, ticketModalPrefix))
		return
	}
	log.Printf("Unknown modal: %s", customID)
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
	if err != nil {
		log.Printf("Failed to respond to interaction: %v", err)
	}
}

// interactionResponder adapts an in-flight interaction to the
// lifecycle's Responder.
type interactionResponder struct {
	s *discordgo.Session
	i *discordgo.InteractionCreate
}

func (r *interactionResponder) Ack() error {
	return r.s.InteractionRespond(r.i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
}

func (r *interactionResponder) Respond(text string) error {
	_, err := r.s.InteractionResponseEdit(r.i.Interaction, &discordgo.WebhookEdit{Content: &text})
	return err
}
