package ticket

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	// ChannelPrefix marks ticket channels; Close refuses anything else.
	ChannelPrefix = "ticket-"

	// CloseButtonID is the CustomID of the close button posted into
	// every ticket channel.
	CloseButtonID = "ticket_close_btn"

	historyPageSize = 100

	maxSubjectLen = 100
	maxBodyLen    = 1000
)

// Actor identifies who triggered an operation.
type Actor struct {
	ID       string
	Username string
}

// Config holds the lifecycle's well-known names and timings.
type Config struct {
	LogChannelName     string
	ParentCategoryName string
	StaffRoles         []string
	GraceDelay         time.Duration
}

// Deps are the collaborators a Lifecycle calls out to. Store and
// Notifier may be nil; their failures are soft either way.
type Deps struct {
	Channels ChannelGateway
	Messages Messenger
	Auth     Authorizer
	Registry *Registry
	Store    Store
	Notifier Notifier
}

// Lifecycle drives a ticket from open through close to deletion. All
// ticket state lives in the channel topic and the log entry; the only
// in-process state is the set of channels with a close in flight,
// which guards against concurrent double-closes.
type Lifecycle struct {
	deps Deps
	cfg  Config

	mu      sync.Mutex
	closing map[string]struct{}
}

func NewLifecycle(deps Deps, cfg Config) *Lifecycle {
	if cfg.ParentCategoryName == "" {
		cfg.ParentCategoryName = "Tickets"
	}
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = 5 * time.Second
	}
	return &Lifecycle{
		deps:    deps,
		cfg:     cfg,
		closing: make(map[string]struct{}),
	}
}

// Open creates the ticket channel, posts the details message, logs the
// opening to the staff log channel and encodes the record into the new
// channel's topic. A missing log channel degrades to an unlogged
// ticket; any other failure is returned and the partially created
// channel, if any, is left for manual cleanup.
func (l *Lifecycle) Open(guildID string, requester Actor, category, subject, body string) (*discordgo.Channel, error) {
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)
	if subject == "" || len(subject) > maxSubjectLen || body == "" || len(body) > maxBodyLen {
		return nil, ErrInvalidInput
	}
	if !l.deps.Registry.Known(category) {
		category = FallbackCategory
	}

	parent, err := l.ensureParentCategory(guildID)
	if err != nil {
		return nil, fmt.Errorf("ensure parent category: %w", err)
	}

	name := ChannelPrefix + strings.ToLower(requester.Username)
	ch, err := l.deps.Channels.CreateTicketChannel(guildID, name, parent.ID, l.ticketOverwrites(guildID, requester.ID, category))
	if err != nil {
		return nil, fmt.Errorf("create ticket channel: %w", err)
	}

	if _, err := l.deps.Messages.Send(ch.ID, l.detailsMessage(requester, category, subject, body)); err != nil {
		return nil, fmt.Errorf("send ticket details: %w", err)
	}

	logMessageID, err := l.logOpened(guildID, ch.ID, requester, category, subject)
	if err != nil {
		return nil, err
	}

	topic := EncodeRecord(l.deps.Registry, Record{
		LogMessageID: logMessageID,
		OwnerID:      requester.ID,
		Category:     category,
	})
	if logMessageID == "" {
		// Unlogged ticket: keep the owner and category readable but
		// leave the log reference out so close reports it honestly.
		topic = fmt.Sprintf("User: %s | Category: %s", requester.ID, category)
	}
	if err := l.deps.Channels.SetTopic(ch.ID, topic); err != nil {
		return nil, fmt.Errorf("set ticket topic: %w", err)
	}

	if l.deps.Store != nil {
		err := l.deps.Store.SaveOpen(StoredTicket{
			ChannelID:    ch.ID,
			GuildID:      guildID,
			OwnerID:      requester.ID,
			Category:     category,
			Subject:      subject,
			LogMessageID: logMessageID,
			OpenedAt:     time.Now().UTC(),
		})
		if err != nil {
			log.Printf("[tickets] store mirror failed for %s: %v", ch.ID, err)
		}
	}
	l.notify(func(n Notifier, e Event) error { return n.TicketOpened(e) }, guildID, ch.ID, requester.ID, category)

	return ch, nil
}

// Close validates, acknowledges, archives and finally schedules the
// channel for deletion. Validation failures return before any side
// effect; archival failures after acknowledgment are logged and never
// block deletion.
func (l *Lifecycle) Close(guildID string, ch *discordgo.Channel, actor Actor, r Responder) error {
	if !strings.HasPrefix(ch.Name, ChannelPrefix) {
		return ErrNotATicketChannel
	}
	rec, err := DecodeRecord(l.deps.Registry, ch.Topic)
	if err != nil {
		return err
	}
	if actor.ID != rec.OwnerID && !l.deps.Auth.CanManageChannel(actor.ID, ch.ID) {
		return ErrUnauthorized
	}

	l.mu.Lock()
	if _, inFlight := l.closing[ch.ID]; inFlight {
		l.mu.Unlock()
		return ErrAlreadyClosing
	}
	l.closing[ch.ID] = struct{}{}
	l.mu.Unlock()

	if err := r.Ack(); err != nil {
		log.Printf("[tickets] close ack failed for %s: %v", ch.ID, err)
	}

	closedAt := time.Now().UTC()
	transcript := l.archive(guildID, ch, rec, actor, closedAt)

	if l.deps.Store != nil {
		if err := l.deps.Store.CloseAndArchive(ch.ID, transcript, actor.ID, closedAt); err != nil {
			log.Printf("[tickets] store archive failed for %s: %v", ch.ID, err)
		}
	}
	l.notify(func(n Notifier, e Event) error { return n.TicketClosed(e) }, guildID, ch.ID, actor.ID, rec.Category)

	seconds := int(l.cfg.GraceDelay / time.Second)
	if err := r.Respond(fmt.Sprintf("✅ This ticket will be deleted in %d seconds...", seconds)); err != nil {
		log.Printf("[tickets] close confirmation failed for %s: %v", ch.ID, err)
	}

	go func() {
		time.Sleep(l.cfg.GraceDelay)
		if err := l.deps.Channels.Delete(ch.ID); err != nil {
			// Terminal: log and allow a later manual close attempt.
			log.Printf("[tickets] failed to delete channel %s: %v", ch.ID, err)
			l.mu.Lock()
			delete(l.closing, ch.ID)
			l.mu.Unlock()
		}
	}()
	return nil
}

// archive sends the transcript and flips the log entry to closed. All
// failures here are soft. The built transcript is returned so the
// store can keep a copy; it is "" when nothing could be archived.
func (l *Lifecycle) archive(guildID string, ch *discordgo.Channel, rec Record, actor Actor, closedAt time.Time) string {
	logCh, err := l.deps.Channels.FindByName(guildID, l.cfg.LogChannelName, discordgo.ChannelTypeGuildText)
	if err != nil || logCh == nil {
		log.Printf("[tickets] log channel %q not found in guild %s, skipping archive", l.cfg.LogChannelName, guildID)
		return ""
	}

	var transcript string
	msgs, err := l.channelHistory(ch.ID)
	if err != nil {
		log.Printf("[tickets] history fetch failed for %s: %v", ch.ID, err)
	} else {
		transcript = BuildTranscript(TranscriptHeader{
			TicketName: ch.Name,
			Category:   l.deps.Registry.DisplayName(rec.Category),
			ClosedBy:   fmt.Sprintf("%s (%s)", actor.Username, actor.ID),
			ClosedAt:   closedAt,
		}, toTranscriptMessages(msgs))

		_, err = l.deps.Messages.Send(logCh.ID, &discordgo.MessageSend{
			Files: []*discordgo.File{{
				Name:        ch.Name + "-transcript.txt",
				ContentType: "text/plain",
				Reader:      strings.NewReader(transcript),
			}},
		})
		if err != nil {
			log.Printf("[tickets] transcript upload failed for %s: %v", ch.ID, err)
		}
	}

	logMsg, err := l.deps.Messages.Message(logCh.ID, rec.LogMessageID)
	if err != nil || logMsg == nil || len(logMsg.Embeds) == 0 {
		log.Printf("[tickets] log entry %s not found for %s", rec.LogMessageID, ch.ID)
		return transcript
	}
	closed := l.closedLogEmbed(logMsg.Embeds[0], rec.Category, actor, closedAt)
	if err := l.deps.Messages.EditEmbed(logCh.ID, rec.LogMessageID, closed); err != nil {
		log.Printf("[tickets] log entry update failed for %s: %v", ch.ID, err)
	}
	return transcript
}

// channelHistory fetches the complete message history, oldest first.
// Pages arrive newest-first from the API, so the union is sorted by
// creation time before it is returned.
func (l *Lifecycle) channelHistory(channelID string) ([]*discordgo.Message, error) {
	var all []*discordgo.Message
	before := ""
	for {
		page, err := l.deps.Channels.MessagesBefore(channelID, before, historyPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < historyPageSize {
			break
		}
		before = page[len(page)-1].ID
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all, nil
}

func (l *Lifecycle) ensureParentCategory(guildID string) (*discordgo.Channel, error) {
	parent, err := l.deps.Channels.FindByName(guildID, l.cfg.ParentCategoryName, discordgo.ChannelTypeGuildCategory)
	if err != nil {
		return nil, err
	}
	if parent != nil {
		return parent, nil
	}
	return l.deps.Channels.CreateCategory(guildID, l.cfg.ParentCategoryName)
}

func (l *Lifecycle) ticketOverwrites(guildID, ownerID, category string) []*discordgo.PermissionOverwrite {
	memberPerms := int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages |
		discordgo.PermissionAttachFiles | discordgo.PermissionReadMessageHistory)

	overwrites := []*discordgo.PermissionOverwrite{
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: ownerID, Type: discordgo.PermissionOverwriteTypeMember, Allow: memberPerms},
	}
	roles := l.cfg.StaffRoles
	if nr := l.deps.Registry.NotifyRole(category); nr != "" {
		roles = append(append([]string{}, roles...), nr)
	}
	for _, roleID := range roles {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    roleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: memberPerms | discordgo.PermissionManageMessages,
		})
	}
	return overwrites
}

func (l *Lifecycle) detailsMessage(requester Actor, category, subject, body string) *discordgo.MessageSend {
	reg := l.deps.Registry
	content := fmt.Sprintf("<@%s> Your ticket has been created!", requester.ID)
	if nr := reg.NotifyRole(category); nr != "" {
		content += fmt.Sprintf(" <@&%s>", nr)
	}
	return &discordgo.MessageSend{
		Content: content,
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "🎫 New Support Ticket",
			Description: "A new support ticket has been created!",
			Color:       0x00FF00,
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Fields: []*discordgo.MessageEmbedField{
				{Name: "👤 Created by", Value: fmt.Sprintf("<@%s>", requester.ID), Inline: true},
				{Name: fmt.Sprintf("%s Category", reg.Emoji(category)), Value: reg.DisplayName(category), Inline: true},
				{Name: "📝 Subject", Value: subject, Inline: false},
				{Name: "📄 Description", Value: body, Inline: false},
			},
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.Button{
						Label:    "Close Ticket",
						Style:    discordgo.DangerButton,
						CustomID: CloseButtonID,
						Emoji:    &discordgo.ComponentEmoji{Name: "🔒"},
					},
				},
			},
		},
	}
}

// logOpened posts the open-status entry and returns its message ID, or
// "" when the log channel is missing (a warning, not a failure).
func (l *Lifecycle) logOpened(guildID, channelID string, requester Actor, category, subject string) (string, error) {
	logCh, err := l.deps.Channels.FindByName(guildID, l.cfg.LogChannelName, discordgo.ChannelTypeGuildText)
	if err != nil {
		return "", fmt.Errorf("find log channel: %w", err)
	}
	if logCh == nil {
		log.Printf("[tickets] log channel %q not found in guild %s, ticket will be unlogged", l.cfg.LogChannelName, guildID)
		return "", nil
	}

	reg := l.deps.Registry
	msg, err := l.deps.Messages.Send(logCh.ID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:     "🎫 Ticket Created",
			Color:     0x00FF00,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Fields: []*discordgo.MessageEmbedField{
				{Name: "👤 User", Value: fmt.Sprintf("<@%s>", requester.ID), Inline: true},
				{Name: fmt.Sprintf("%s Category", reg.Emoji(category)), Value: reg.DisplayName(category), Inline: true},
				{Name: "📝 Subject", Value: subject, Inline: false},
				{Name: "🔗 Channel", Value: fmt.Sprintf("<#%s>", channelID), Inline: false},
				{Name: "📊 Status", Value: "🟢 Open", Inline: true},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("send log entry: %w", err)
	}
	return msg.ID, nil
}

// closedLogEmbed rewrites an open log entry as closed, preserving the
// user, subject and channel fields verbatim.
func (l *Lifecycle) closedLogEmbed(open *discordgo.MessageEmbed, category string, actor Actor, closedAt time.Time) *discordgo.MessageEmbed {
	reg := l.deps.Registry
	field := func(i int) string {
		if i < len(open.Fields) {
			return open.Fields[i].Value
		}
		return ""
	}
	return &discordgo.MessageEmbed{
		Title:     "📋 Ticket Closed",
		Color:     0xFF0000,
		Timestamp: open.Timestamp,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "👤 User", Value: field(0), Inline: true},
			{Name: fmt.Sprintf("%s Category", reg.Emoji(category)), Value: reg.DisplayName(category), Inline: true},
			{Name: "📝 Subject", Value: field(2), Inline: false},
			{Name: "🔗 Channel", Value: field(3), Inline: false},
			{Name: "📊 Status", Value: "🔴 Closed", Inline: true},
			{Name: "🔒 Closed by", Value: actor.Username, Inline: true},
			{Name: "⏰ Closed at", Value: fmt.Sprintf("<t:%d:F>", closedAt.Unix()), Inline: false},
		},
	}
}

func (l *Lifecycle) notify(send func(Notifier, Event) error, guildID, channelID, userID, category string) {
	if l.deps.Notifier == nil {
		return
	}
	e := Event{
		GuildID:   guildID,
		ChannelID: channelID,
		UserID:    userID,
		Category:  category,
		At:        time.Now().UTC(),
	}
	if err := send(l.deps.Notifier, e); err != nil {
		log.Printf("[tickets] event publish failed for %s: %v", channelID, err)
	}
}

func toTranscriptMessages(msgs []*discordgo.Message) []TranscriptMessage {
	out := make([]TranscriptMessage, 0, len(msgs))
	for _, m := range msgs {
		tm := TranscriptMessage{
			Timestamp:  m.Timestamp,
			Content:    m.Content,
			EmbedCount: len(m.Embeds),
		}
		if m.Author != nil {
			tm.AuthorName = m.Author.Username
			tm.AuthorID = m.Author.ID
		}
		for _, a := range m.Attachments {
			tm.Attachments = append(tm.Attachments, a.URL)
		}
		out = append(out, tm)
	}
	return out
}
