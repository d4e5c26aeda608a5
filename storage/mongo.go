package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"ticket-bot/ticket"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type MongoStore struct {
	URI    string
	DBName string

	client      *mongo.Client
	tickets     *mongo.Collection
	transcripts *mongo.Collection
}

type mongoTicket struct {
	ChannelID    string    `bson:"channel_id"`
	GuildID      string    `bson:"guild_id"`
	OwnerID      string    `bson:"owner_id"`
	Category     string    `bson:"category"`
	Subject      string    `bson:"subject"`
	LogMessageID string    `bson:"log_message_id"`
	OpenedAt     time.Time `bson:"opened_at"`
}

func (m *MongoStore) Init() error {
	if m.URI == "" || m.DBName == "" {
		return fmt.Errorf("database.mongodb.uri and database.mongodb.database must be set to use driver=mongodb")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(m.URI))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	m.client = client
	db := client.Database(m.DBName)
	m.tickets = db.Collection("tickets")
	m.transcripts = db.Collection("transcripts")

	m.tickets.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "channel_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	m.tickets.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "guild_id", Value: 1}},
	})
	m.transcripts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "channel_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	log.Printf("[DB] MongoDB initialised (database %s)", m.DBName)
	return nil
}

func (m *MongoStore) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoStore) SaveOpen(t ticket.StoredTicket) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc := mongoTicket{
		ChannelID:    t.ChannelID,
		GuildID:      t.GuildID,
		OwnerID:      t.OwnerID,
		Category:     t.Category,
		Subject:      t.Subject,
		LogMessageID: t.LogMessageID,
		OpenedAt:     t.OpenedAt,
	}
	_, err := m.tickets.ReplaceOne(
		ctx,
		bson.M{"channel_id": t.ChannelID},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (m *MongoStore) ListOpen(guildID string) ([]ticket.StoredTicket, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cursor, err := m.tickets.Find(ctx, bson.M{"guild_id": guildID},
		options.Find().SetSort(bson.D{{Key: "opened_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tickets []ticket.StoredTicket
	for cursor.Next(ctx) {
		var doc mongoTicket
		if err := cursor.Decode(&doc); err != nil {
			continue
		}
		tickets = append(tickets, ticket.StoredTicket{
			ChannelID:    doc.ChannelID,
			GuildID:      doc.GuildID,
			OwnerID:      doc.OwnerID,
			Category:     doc.Category,
			Subject:      doc.Subject,
			LogMessageID: doc.LogMessageID,
			OpenedAt:     doc.OpenedAt,
		})
	}
	return tickets, cursor.Err()
}

func (m *MongoStore) CloseAndArchive(channelID, transcript, closedBy string, closedAt time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := m.transcripts.ReplaceOne(
		ctx,
		bson.M{"channel_id": channelID},
		bson.M{
			"channel_id": channelID,
			"closed_by":  closedBy,
			"closed_at":  closedAt,
			"body":       transcript,
		},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return err
	}
	_, err = m.tickets.DeleteOne(ctx, bson.M{"channel_id": channelID})
	return err
}
