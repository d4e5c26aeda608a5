package ticket

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

// fakeGateway implements ChannelGateway and Messenger in memory.
type fakeGateway struct {
	mu sync.Mutex

	guildChannels map[string][]*discordgo.Channel
	nextChannelID int
	nextMessageID int

	history      map[string][]*discordgo.Message // newest first
	pageRequests int

	sent    map[string][]*discordgo.MessageSend
	byID    map[string]*discordgo.Message
	edits   map[string]*discordgo.MessageEmbed
	topics  map[string]string
	deleted []string

	findErr error
	sendErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		guildChannels: make(map[string][]*discordgo.Channel),
		history:       make(map[string][]*discordgo.Message),
		sent:          make(map[string][]*discordgo.MessageSend),
		byID:          make(map[string]*discordgo.Message),
		edits:         make(map[string]*discordgo.MessageEmbed),
		topics:        make(map[string]string),
	}
}

func (g *fakeGateway) addChannel(guildID, name string, chType discordgo.ChannelType) *discordgo.Channel {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextChannelID++
	ch := &discordgo.Channel{
		ID:      fmt.Sprintf("%d", 200+g.nextChannelID),
		GuildID: guildID,
		Name:    name,
		Type:    chType,
	}
	g.guildChannels[guildID] = append(g.guildChannels[guildID], ch)
	return ch
}

func (g *fakeGateway) FindByName(guildID, name string, chType discordgo.ChannelType) (*discordgo.Channel, error) {
	if g.findErr != nil {
		return nil, g.findErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ch := range g.guildChannels[guildID] {
		if ch.Type == chType && strings.EqualFold(ch.Name, name) {
			return ch, nil
		}
	}
	return nil, nil
}

func (g *fakeGateway) CreateCategory(guildID, name string) (*discordgo.Channel, error) {
	return g.addChannel(guildID, name, discordgo.ChannelTypeGuildCategory), nil
}

func (g *fakeGateway) CreateTicketChannel(guildID, name, parentID string, overwrites []*discordgo.PermissionOverwrite) (*discordgo.Channel, error) {
	ch := g.addChannel(guildID, name, discordgo.ChannelTypeGuildText)
	ch.ParentID = parentID
	ch.PermissionOverwrites = overwrites
	return ch, nil
}

func (g *fakeGateway) SetTopic(channelID, topic string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.topics[channelID] = topic
	return nil
}

func (g *fakeGateway) Delete(channelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleted = append(g.deleted, channelID)
	return nil
}

func (g *fakeGateway) MessagesBefore(channelID, beforeID string, limit int) ([]*discordgo.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pageRequests++

	hist := g.history[channelID]
	start := 0
	if beforeID != "" {
		for idx, m := range hist {
			if m.ID == beforeID {
				start = idx + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(hist) {
		end = len(hist)
	}
	if start > len(hist) {
		start = len(hist)
	}
	return hist[start:end], nil
}

func (g *fakeGateway) Send(channelID string, msg *discordgo.MessageSend) (*discordgo.Message, error) {
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextMessageID++
	m := &discordgo.Message{
		ID:        fmt.Sprintf("%d", 1000+g.nextMessageID),
		ChannelID: channelID,
		Embeds:    msg.Embeds,
	}
	g.sent[channelID] = append(g.sent[channelID], msg)
	g.byID[m.ID] = m
	return m, nil
}

func (g *fakeGateway) Message(channelID, messageID string) (*discordgo.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.byID[messageID]
	if !ok {
		return nil, errors.New("message not found")
	}
	return m, nil
}

func (g *fakeGateway) EditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edits[messageID] = embed
	return nil
}

func (g *fakeGateway) sendCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, msgs := range g.sent {
		n += len(msgs)
	}
	return n
}

func (g *fakeGateway) deletedContains(channelID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range g.deleted {
		if id == channelID {
			return true
		}
	}
	return false
}

type fakeAuth struct {
	staff map[string]bool
}

func (a *fakeAuth) CanManageChannel(userID, channelID string) bool {
	return a.staff[userID]
}

type fakeResponder struct {
	mu        sync.Mutex
	acked     bool
	responses []string
}

func (r *fakeResponder) Ack() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acked = true
	return nil
}

func (r *fakeResponder) Respond(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, text)
	return nil
}

type fakeStore struct {
	mu       sync.Mutex
	open     []StoredTicket
	archived map[string]string
}

func (s *fakeStore) SaveOpen(t StoredTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = append(s.open, t)
	return nil
}

func (s *fakeStore) ListOpen(guildID string) ([]StoredTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StoredTicket{}, s.open...), nil
}

func (s *fakeStore) CloseAndArchive(channelID, transcript, closedBy string, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.archived == nil {
		s.archived = make(map[string]string)
	}
	s.archived[channelID] = transcript
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *fakeNotifier) TicketOpened(e Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *fakeNotifier) TicketClosed(e Event) error {
	return n.TicketOpened(e)
}

const testGuild = "500"

type fixture struct {
	gw       *fakeGateway
	auth     *fakeAuth
	store    *fakeStore
	notifier *fakeNotifier
	lc       *Lifecycle
	logCh    *discordgo.Channel
}

func newFixture(t *testing.T, withLogChannel bool) *fixture {
	t.Helper()
	f := &fixture{
		gw:       newFakeGateway(),
		auth:     &fakeAuth{staff: make(map[string]bool)},
		store:    &fakeStore{},
		notifier: &fakeNotifier{},
	}
	if withLogChannel {
		f.logCh = f.gw.addChannel(testGuild, "staff-tickets-log", discordgo.ChannelTypeGuildText)
	}
	f.lc = NewLifecycle(Deps{
		Channels: f.gw,
		Messages: f.gw,
		Auth:     f.auth,
		Registry: testRegistry(),
		Store:    f.store,
		Notifier: f.notifier,
	}, Config{
		LogChannelName:     "staff-tickets-log",
		ParentCategoryName: "Tickets",
		StaffRoles:         []string{"800"},
		GraceDelay:         5 * time.Millisecond,
	})
	return f
}

func (f *fixture) waitDeleted(t *testing.T, channelID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.gw.deletedContains(channelID) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("channel %s was never deleted", channelID)
}

func embedField(e *discordgo.MessageEmbed, i int) *discordgo.MessageEmbedField {
	if e == nil || i >= len(e.Fields) {
		return &discordgo.MessageEmbedField{}
	}
	return e.Fields[i]
}

func TestOpenCreatesTicket(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	ch, err := f.lc.Open(testGuild, Actor{ID: "111", Username: "Alice"}, "moderation", "Spam", "User X is spamming")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if ch.Name != "ticket-alice" {
		t.Errorf("channel name = %q, want ticket-alice", ch.Name)
	}
	parent, _ := f.gw.FindByName(testGuild, "Tickets", discordgo.ChannelTypeGuildCategory)
	if parent == nil {
		t.Fatal("Tickets parent category was not created")
	}
	if ch.ParentID != parent.ID {
		t.Errorf("channel parent = %q, want %q", ch.ParentID, parent.ID)
	}

	details := f.gw.sent[ch.ID]
	if len(details) != 1 {
		t.Fatalf("ticket channel got %d messages, want 1", len(details))
	}
	if len(details[0].Components) == 0 {
		t.Error("ticket details message has no close button")
	}

	logSends := f.gw.sent[f.logCh.ID]
	if len(logSends) != 1 {
		t.Fatalf("log channel got %d messages, want 1", len(logSends))
	}
	entry := logSends[0].Embeds[0]
	if got := embedField(entry, 1); got.Name != "🛡️ Category" || got.Value != "Moderation" {
		t.Errorf("log category field = %q %q", got.Name, got.Value)
	}
	if got := embedField(entry, 4).Value; got != "🟢 Open" {
		t.Errorf("log status = %q, want open", got)
	}

	var logID string
	for id, m := range f.gw.byID {
		if m.ChannelID == f.logCh.ID {
			logID = id
		}
	}
	wantTopic := fmt.Sprintf("Log: %s | User: 111 | Category: moderation", logID)
	if got := f.gw.topics[ch.ID]; got != wantTopic {
		t.Errorf("topic = %q, want %q", got, wantTopic)
	}

	if len(f.store.open) != 1 || f.store.open[0].ChannelID != ch.ID {
		t.Errorf("store mirror = %+v", f.store.open)
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0].Category != "moderation" {
		t.Errorf("notifier events = %+v", f.notifier.events)
	}
}

func TestOpenReusesExistingParent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	existing := f.gw.addChannel(testGuild, "tickets", discordgo.ChannelTypeGuildCategory)

	ch, err := f.lc.Open(testGuild, Actor{ID: "111", Username: "alice"}, "events", "Help", "With the event")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ch.ParentID != existing.ID {
		t.Errorf("parent = %q, want existing %q (case-insensitive match)", ch.ParentID, existing.ID)
	}
}

func TestOpenWithoutLogChannel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)

	ch, err := f.lc.Open(testGuild, Actor{ID: "111", Username: "alice"}, "pr", "Press", "A question")
	if err != nil {
		t.Fatalf("Open without log channel: %v", err)
	}
	if got, want := f.gw.topics[ch.ID], "User: 111 | Category: pr"; got != want {
		t.Errorf("unlogged topic = %q, want %q", got, want)
	}
}

func TestOpenInvalidInput(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	cases := []struct{ subject, body string }{
		{"", "body"},
		{"subject", ""},
		{strings.Repeat("s", 101), "body"},
		{"subject", strings.Repeat("b", 1001)},
	}
	for _, tc := range cases {
		if _, err := f.lc.Open(testGuild, Actor{ID: "1", Username: "u"}, "pr", tc.subject, tc.body); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Open(%q, %q) err = %v, want ErrInvalidInput", tc.subject, tc.body, err)
		}
	}
	if n := f.gw.sendCount(); n != 0 {
		t.Errorf("invalid input produced %d sends", n)
	}
}

func openTicket(t *testing.T, f *fixture, owner Actor, category, subject, body string) *discordgo.Channel {
	t.Helper()
	ch, err := f.lc.Open(testGuild, owner, category, subject, body)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ch.Topic = f.gw.topics[ch.ID]
	return ch
}

func TestCloseByOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	owner := Actor{ID: "111", Username: "alice"}
	ch := openTicket(t, f, owner, "moderation", "Spam", "User X is spamming")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.gw.history[ch.ID] = []*discordgo.Message{
		{ID: "3", Timestamp: base.Add(2 * time.Second), Author: &discordgo.User{ID: "111", Username: "alice"}, Content: "thanks"},
		{ID: "2", Timestamp: base.Add(time.Second), Author: &discordgo.User{ID: "800", Username: "staffer"}, Content: "on it"},
		{ID: "1", Timestamp: base, Author: &discordgo.User{ID: "111", Username: "alice"}, Content: "User X is spamming"},
	}

	openLogSends := len(f.gw.sent[f.logCh.ID])
	r := &fakeResponder{}
	if err := f.lc.Close(testGuild, ch, owner, r); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !r.acked {
		t.Error("close was not acknowledged")
	}
	if len(r.responses) != 1 {
		t.Fatalf("responses = %v", r.responses)
	}

	logSends := f.gw.sent[f.logCh.ID]
	if len(logSends) != openLogSends+1 {
		t.Fatalf("log channel got %d messages after close, want %d", len(logSends), openLogSends+1)
	}
	fileMsg := logSends[len(logSends)-1]
	if len(fileMsg.Files) != 1 || fileMsg.Files[0].Name != "ticket-alice-transcript.txt" {
		t.Fatalf("transcript file send = %+v", fileMsg.Files)
	}

	rec, err := DecodeRecord(testRegistry(), ch.Topic)
	if err != nil {
		t.Fatalf("decode topic: %v", err)
	}
	edited := f.gw.edits[rec.LogMessageID]
	if edited == nil {
		t.Fatal("log entry was not edited")
	}
	if got := embedField(edited, 4).Value; got != "🔴 Closed" {
		t.Errorf("status after close = %q", got)
	}
	if got := embedField(edited, 0).Value; got != "<@111>" {
		t.Errorf("user field not preserved: %q", got)
	}
	if got := embedField(edited, 2).Value; got != "Spam" {
		t.Errorf("subject field not preserved: %q", got)
	}
	if got := embedField(edited, 3).Value; got != "<#"+ch.ID+">" {
		t.Errorf("channel field not preserved: %q", got)
	}
	if got := embedField(edited, 5).Value; got != "alice" {
		t.Errorf("closed-by = %q", got)
	}

	f.waitDeleted(t, ch.ID)

	if transcript, ok := f.store.archived[ch.ID]; !ok || !strings.Contains(transcript, "User X is spamming") {
		t.Errorf("store archive = %q", transcript)
	}
}

func TestCloseByStaff(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ch := openTicket(t, f, Actor{ID: "111", Username: "alice"}, "events", "Help", "Event question")
	f.auth.staff["999"] = true

	r := &fakeResponder{}
	if err := f.lc.Close(testGuild, ch, Actor{ID: "999", Username: "staffer"}, r); err != nil {
		t.Fatalf("Close by staff: %v", err)
	}
	f.waitDeleted(t, ch.ID)
}

func TestCloseUnauthorized(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	ch := openTicket(t, f, Actor{ID: "111", Username: "alice"}, "moderation", "Spam", "Details")
	sendsBefore := f.gw.sendCount()

	r := &fakeResponder{}
	err := f.lc.Close(testGuild, ch, Actor{ID: "666", Username: "rando"}, r)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if r.acked || len(r.responses) != 0 {
		t.Error("unauthorized close touched the responder")
	}
	if f.gw.sendCount() != sendsBefore {
		t.Error("unauthorized close produced sends")
	}
	time.Sleep(20 * time.Millisecond)
	if f.gw.deletedContains(ch.ID) {
		t.Error("unauthorized close deleted the channel")
	}
}

func TestCloseValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	owner := Actor{ID: "111", Username: "alice"}

	cases := []struct {
		name string
		ch   *discordgo.Channel
		want error
	}{
		{"not a ticket", &discordgo.Channel{ID: "1", Name: "general", Topic: ""}, ErrNotATicketChannel},
		{"no topic", &discordgo.Channel{ID: "2", Name: "ticket-alice", Topic: ""}, ErrMissingTicketRecord},
		{"no log reference", &discordgo.Channel{ID: "3", Name: "ticket-alice", Topic: "User: 111 | Category: pr"}, ErrMissingLogReference},
	}
	for _, tc := range cases {
		if err := f.lc.Close(testGuild, tc.ch, owner, &fakeResponder{}); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
	if n := f.gw.sendCount(); n != 0 {
		t.Errorf("validation failures produced %d sends", n)
	}
}

func TestCloseWithoutLogChannel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, false)
	owner := Actor{ID: "111", Username: "alice"}
	// A ticket from before the log channel disappeared.
	ch := &discordgo.Channel{ID: "777", Name: "ticket-alice", Topic: "Log: 1234 | User: 111 | Category: moderation"}

	r := &fakeResponder{}
	if err := f.lc.Close(testGuild, ch, owner, r); err != nil {
		t.Fatalf("Close without log channel: %v", err)
	}
	if n := f.gw.sendCount(); n != 0 {
		t.Errorf("archive was attempted without a log channel: %d sends", n)
	}
	f.waitDeleted(t, ch.ID)
}

func TestCloseTwiceIsGuarded(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)
	owner := Actor{ID: "111", Username: "alice"}
	ch := openTicket(t, f, owner, "moderation", "Spam", "Details")

	if err := f.lc.Close(testGuild, ch, owner, &fakeResponder{}); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := f.lc.Close(testGuild, ch, owner, &fakeResponder{}); !errors.Is(err, ErrAlreadyClosing) {
		t.Fatalf("second Close err = %v, want ErrAlreadyClosing", err)
	}

	f.waitDeleted(t, ch.ID)
	time.Sleep(20 * time.Millisecond)

	f.gw.mu.Lock()
	deletions := len(f.gw.deleted)
	f.gw.mu.Unlock()
	if deletions != 1 {
		t.Errorf("channel deleted %d times", deletions)
	}
}

func TestChannelHistoryPagination(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	hist := make([]*discordgo.Message, 250)
	for i := range hist {
		// Newest first, the way the API pages.
		hist[i] = &discordgo.Message{
			ID:        fmt.Sprintf("m%03d", 250-i),
			Timestamp: base.Add(time.Duration(250-i) * time.Second),
			Author:    &discordgo.User{ID: "1", Username: "u"},
		}
	}
	f.gw.history["chan"] = hist

	msgs, err := f.lc.channelHistory("chan")
	if err != nil {
		t.Fatalf("channelHistory: %v", err)
	}
	if len(msgs) != 250 {
		t.Fatalf("got %d messages, want 250", len(msgs))
	}
	if f.gw.pageRequests != 3 {
		t.Errorf("issued %d page requests, want 3", f.gw.pageRequests)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Fatalf("messages not ascending at index %d", i)
		}
	}
}

func TestChannelHistoryEmpty(t *testing.T) {
	t.Parallel()
	f := newFixture(t, true)

	msgs, err := f.lc.channelHistory("empty")
	if err != nil {
		t.Fatalf("channelHistory: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages from empty channel", len(msgs))
	}
	if f.gw.pageRequests != 1 {
		t.Errorf("issued %d page requests, want 1", f.gw.pageRequests)
	}
}
