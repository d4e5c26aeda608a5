// Package notify publishes ticket lifecycle events to an AMQP topic
// exchange so staff tooling outside Discord can react to them. The
// publisher is optional; the bot runs fine without it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ticket-bot/ticket"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	routingKeyOpened = "ticket.opened"
	routingKeyClosed = "ticket.closed"
)

type Publisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

type envelope struct {
	Event     string    `json:"event"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Category  string    `json:"category"`
	At        time.Time `json:"at"`
}

func New(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return &Publisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *Publisher) TicketOpened(e ticket.Event) error {
	return p.publish(routingKeyOpened, e)
}

func (p *Publisher) TicketClosed(e ticket.Event) error {
	return p.publish(routingKeyClosed, e)
}

func (p *Publisher) publish(key string, e ticket.Event) error {
	body, err := json.Marshal(envelope{
		Event:     key,
		GuildID:   e.GuildID,
		ChannelID: e.ChannelID,
		UserID:    e.UserID,
		Category:  e.Category,
		At:        e.At,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   e.At,
		Body:        body,
	})
}

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
