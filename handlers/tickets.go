package handlers

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"ticket-bot/lang"
	"ticket-bot/ticket"

	"github.com/bwmarrin/discordgo"
)

const (
	createTicketButtonID = "create_ticket"
	categorySelectID     = "ticket_category_select"
	ticketModalPrefix    = "ticket_modal:"
)

func ticketCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "ticket",
			Description:              "Ticket system management",
			DefaultMemberPermissions: &manageChannelsPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Name: "panel", Description: "Post the ticket panel to the intake channel",
					Type: discordgo.ApplicationCommandOptionSubCommand,
				},
				{
					Name: "list", Description: "List all open tickets",
					Type: discordgo.ApplicationCommandOptionSubCommand,
				},
			},
		},
		{Name: "close", Description: "Close the current ticket"},
	}
}

func handleTicketCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	opts := i.ApplicationCommandData().Options
	if len(opts) == 0 {
		return
	}
	switch opts[0].Name {
	case "panel":
		handleTicketPanel(s, i)
	case "list":
		handleTicketList(s, i)
	}
}

func handleTicketPanel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ch, err := findTextChannel(s, i.GuildID, Cfg.Tickets.IntakeChannel)
	if err != nil || ch == nil {
		respond(s, i, fmt.Sprintf("❌ Intake channel `%s` not found.", Cfg.Tickets.IntakeChannel), true)
		return
	}
	if err := sendPanel(s, ch.ID); err != nil {
		respond(s, i, fmt.Sprintf("❌ Failed to send panel: %v", err), true)
		return
	}
	respond(s, i, fmt.Sprintf("✅ Ticket panel posted to <#%s>.", ch.ID), true)
}

func handleTicketList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if Store == nil {
		respond(s, i, lang.T("no_open_tickets"), true)
		return
	}
	tickets, err := Store.ListOpen(i.GuildID)
	if err != nil {
		respond(s, i, fmt.Sprintf("❌ Failed to list tickets: %v", err), true)
		return
	}
	if len(tickets) == 0 {
		respond(s, i, lang.T("no_open_tickets"), true)
		return
	}

	var sb strings.Builder
	sb.WriteString(lang.T("open_tickets_head", "count", fmt.Sprint(len(tickets))) + "\n")
	for _, t := range tickets {
		sb.WriteString(fmt.Sprintf("• <#%s> — by <@%s> [%s %s] %s\n",
			t.ChannelID, t.OwnerID, Registry.Emoji(t.Category), Registry.DisplayName(t.Category), t.Subject))
	}
	respond(s, i, sb.String(), true)
}

// PostStartupPanels sends the ticket panel to every guild's intake
// channel once the session is ready.
func PostStartupPanels(s *discordgo.Session, r *discordgo.Ready) {
	for _, g := range r.Guilds {
		ch, err := findTextChannel(s, g.ID, Cfg.Tickets.IntakeChannel)
		if err != nil {
			log.Printf("[tickets] channel lookup failed in guild %s: %v", g.ID, err)
			continue
		}
		if ch == nil {
			log.Printf("[tickets] intake channel %q not found in guild %s", Cfg.Tickets.IntakeChannel, g.ID)
			continue
		}
		if err := sendPanel(s, ch.ID); err != nil {
			log.Printf("[tickets] failed to post panel in guild %s: %v", g.ID, err)
		}
	}
}

func sendPanel(s *discordgo.Session, channelID string) error {
	_, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       lang.T("panel_title"),
			Description: lang.T("panel_body"),
			Color:       0x5865F2,
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    lang.T("panel_button"),
						Style:    discordgo.PrimaryButton,
						CustomID: createTicketButtonID,
						Emoji:    &discordgo.ComponentEmoji{Name: "🎫"},
					},
				},
			},
		},
	})
	return err
}

func handleCreateTicketButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	categories := Registry.Categories()
	opts := make([]discordgo.SelectMenuOption, 0, len(categories))
	for _, cat := range categories {
		opts = append(opts, discordgo.SelectMenuOption{
			Label: cat.Name,
			Value: cat.Key,
			Emoji: &discordgo.ComponentEmoji{Name: cat.Emoji},
		})
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: lang.T("select_category"),
			Flags:   discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.SelectMenu{
							MenuType:    discordgo.StringSelectMenu,
							CustomID:    categorySelectID,
							Placeholder: "Select a category...",
							Options:     opts,
						},
					},
				},
			},
		},
	})
	if err != nil {
		log.Printf("Failed to send category menu: %v", err)
	}
}

func handleCategorySelect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	if len(data.Values) == 0 {
		return
	}
	category := data.Values[0]

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: ticketModalPrefix + category,
			Title:    "Create Support Ticket",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    "ticket_subject",
							Label:       "Ticket Subject",
							Style:       discordgo.TextInputShort,
							Placeholder: "Brief description of your issue...",
							Required:    true,
							MaxLength:   100,
						},
					},
				},
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    "ticket_content",
							Label:       "Ticket Description",
							Style:       discordgo.TextInputParagraph,
							Placeholder: "Please provide detailed information about your issue...",
							Required:    true,
							MaxLength:   1000,
						},
					},
				},
			},
		},
	})
	if err != nil {
		log.Printf("Failed to present ticket modal: %v", err)
	}
}

func handleTicketModal(s *discordgo.Session, i *discordgo.InteractionCreate, category string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		log.Printf("Failed to defer modal response: %v", err)
		return
	}

	var subject, body string
	for _, row := range i.ModalSubmitData().Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range ar.Components {
			ti, ok := c.(*discordgo.TextInput)
			if !ok {
				continue
			}
			switch ti.CustomID {
			case "ticket_subject":
				subject = ti.Value
			case "ticket_content":
				body = ti.Value
			}
		}
	}

	requester := ticket.Actor{ID: i.Member.User.ID, Username: i.Member.User.Username}
	ch, err := Lifecycle.Open(i.GuildID, requester, category, subject, body)

	var reply string
	switch {
	case errors.Is(err, ticket.ErrInvalidInput):
		reply = lang.T("invalid_input")
	case err != nil:
		log.Printf("[tickets] open failed for %s: %v", requester.ID, err)
		reply = lang.T("ticket_failed")
	default:
		reply = lang.T("ticket_created", "channel", ch.ID)
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &reply}); err != nil {
		log.Printf("Failed to edit modal response: %v", err)
	}
}

// handleClose serves both the /close command and the in-channel close
// button.
func handleClose(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ch, err := s.Channel(i.ChannelID)
	if err != nil {
		respond(s, i, lang.T("close_failed"), true)
		return
	}

	actor := ticket.Actor{ID: i.Member.User.ID, Username: i.Member.User.Username}
	err = Lifecycle.Close(i.GuildID, ch, actor, &interactionResponder{s: s, i: i})
	if err != nil {
		respond(s, i, lang.T(closeErrorKey(err)), true)
	}
}

func closeErrorKey(err error) string {
	switch {
	case errors.Is(err, ticket.ErrNotATicketChannel):
		return "not_ticket"
	case errors.Is(err, ticket.ErrMissingTicketRecord):
		return "missing_record"
	case errors.Is(err, ticket.ErrMissingLogReference):
		return "missing_log"
	case errors.Is(err, ticket.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ticket.ErrAlreadyClosing):
		return "already_closing"
	default:
		return "close_failed"
	}
}

func findTextChannel(s *discordgo.Session, guildID, name string) (*discordgo.Channel, error) {
	channels, err := s.GuildChannels(guildID)
	if err != nil {
		return nil, err
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && strings.EqualFold(ch.Name, name) {
			return ch, nil
		}
	}
	return nil, nil
}
