package ticket

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ChannelGateway is the guild-channel surface the lifecycle needs.
type ChannelGateway interface {
	// FindByName returns the first channel of the given type whose name
	// matches case-insensitively, or nil when none exists.
	FindByName(guildID, name string, channelType discordgo.ChannelType) (*discordgo.Channel, error)
	CreateCategory(guildID, name string) (*discordgo.Channel, error)
	CreateTicketChannel(guildID, name, parentID string, overwrites []*discordgo.PermissionOverwrite) (*discordgo.Channel, error)
	SetTopic(channelID, topic string) error
	Delete(channelID string) error
	// MessagesBefore returns up to limit messages older than beforeID,
	// newest first. An empty beforeID means no lower bound.
	MessagesBefore(channelID, beforeID string, limit int) ([]*discordgo.Message, error)
}

// Messenger sends and edits messages in named channels.
type Messenger interface {
	Send(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error)
	Message(channelID, messageID string) (*discordgo.Message, error)
	EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error
}

// Authorizer answers whether a member may manage the given channel,
// which is the staff criterion for closing tickets they do not own.
type Authorizer interface {
	CanManageChannel(userID, channelID string) bool
}

// Responder acknowledges the actor of an in-flight interaction.
type Responder interface {
	// Ack defers the interaction response ephemerally.
	Ack() error
	// Respond fills in the deferred response.
	Respond(text string) error
}

// Store mirrors open tickets into a queryable keyed store. The channel
// topic stays authoritative; store failures are soft.
type Store interface {
	SaveOpen(t StoredTicket) error
	ListOpen(guildID string) ([]StoredTicket, error)
	CloseAndArchive(channelID, transcript, closedBy string, closedAt time.Time) error
}

// StoredTicket is the mirror row, keyed by channel ID.
type StoredTicket struct {
	ChannelID    string
	GuildID      string
	OwnerID      string
	Category     string
	Subject      string
	LogMessageID string
	OpenedAt     time.Time
}

// Notifier publishes lifecycle events for external staff tooling.
type Notifier interface {
	TicketOpened(e Event) error
	TicketClosed(e Event) error
}

// Event is the envelope handed to the Notifier.
type Event struct {
	GuildID   string
	ChannelID string
	UserID    string
	Category  string
	At        time.Time
}

// SessionGateway adapts a discordgo session to the ChannelGateway,
// Messenger and Authorizer interfaces.
type SessionGateway struct {
	s *discordgo.Session
}

func NewSessionGateway(s *discordgo.Session) *SessionGateway {
	return &SessionGateway{s: s}
}

func (g *SessionGateway) FindByName(guildID, name string, channelType discordgo.ChannelType) (*discordgo.Channel, error) {
	channels, err := g.s.GuildChannels(guildID)
	if err != nil {
		return nil, err
	}
	for _, ch := range channels {
		if ch.Type == channelType && strings.EqualFold(ch.Name, name) {
			return ch, nil
		}
	}
	return nil, nil
}

func (g *SessionGateway) CreateCategory(guildID, name string) (*discordgo.Channel, error) {
	return g.s.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name: name,
		Type: discordgo.ChannelTypeGuildCategory,
	})
}

func (g *SessionGateway) CreateTicketChannel(guildID, name, parentID string, overwrites []*discordgo.PermissionOverwrite) (*discordgo.Channel, error) {
	return g.s.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 name,
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             parentID,
		PermissionOverwrites: overwrites,
	})
}

func (g *SessionGateway) SetTopic(channelID, topic string) error {
	_, err := g.s.ChannelEdit(channelID, &discordgo.ChannelEdit{Topic: topic})
	return err
}

func (g *SessionGateway) Delete(channelID string) error {
	_, err := g.s.ChannelDelete(channelID)
	return err
}

func (g *SessionGateway) MessagesBefore(channelID, beforeID string, limit int) ([]*discordgo.Message, error) {
	return g.s.ChannelMessages(channelID, limit, beforeID, "", "")
}

func (g *SessionGateway) Send(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	return g.s.ChannelMessageSendComplex(channelID, msg)
}

func (g *SessionGateway) Message(channelID, messageID string) (*discordgo.Message, error) {
	return g.s.ChannelMessage(channelID, messageID)
}

func (g *SessionGateway) EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error {
	edit := &discordgo.MessageEdit{Channel: channelID, ID: messageID}
	edit.Embeds = &[]*discordgo.MessageEmbed{embed}
	_, err := g.s.ChannelMessageEditComplex(edit)
	return err
}

func (g *SessionGateway) CanManageChannel(userID, channelID string) bool {
	perms, err := g.s.UserChannelPermissions(userID, channelID)
	if err != nil {
		return false
	}
	return perms&discordgo.PermissionManageChannels != 0
}
