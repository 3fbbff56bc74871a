// Package archive mirrors ticket transcript lines into MongoDB so staff
// can query modmail history outside the bot.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Kind classifies an archived line.
type Kind string

const (
	KindIncoming Kind = "incoming"
	KindReply    Kind = "reply"
	KindNote     Kind = "note"
	KindCommand  Kind = "command"
	KindNotice   Kind = "notice"
)

// Record is one transcript line to archive.
type Record struct {
	UserID    string
	Username  string
	ChannelID string
	Content   string
	Timestamp time.Time
	Kind      Kind
}

// LogDocument is the stored form of a Record.
type LogDocument struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	UserID    string        `bson:"user_id"`
	Username  string        `bson:"username"`
	ChannelID string        `bson:"channel_id"`
	Content   string        `bson:"content"`
	Timestamp time.Time     `bson:"timestamp"`
	Type      string        `bson:"type"`
}

// Document converts r into its stored form.
func Document(r Record) LogDocument {
	return LogDocument{
		UserID:    r.UserID,
		Username:  r.Username,
		ChannelID: r.ChannelID,
		Content:   r.Content,
		Timestamp: r.Timestamp,
		Type:      string(r.Kind),
	}
}

// Mongo writes records into a MongoDB collection.
type Mongo struct {
	client *mongo.Client
	col    *mongo.Collection
	logger *slog.Logger
}

// Connect dials uri, pings the server and returns an archive writing to
// database.messages.
func Connect(ctx context.Context, uri, database string, logger *slog.Logger) (*Mongo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}
	return &Mongo{
		client: client,
		col:    client.Database(database).Collection("messages"),
		logger: logger,
	}, nil
}

// Archive inserts r. Failures are logged; the transcript of record lives
// in the registry.
func (m *Mongo) Archive(ctx context.Context, r Record) {
	if _, err := m.col.InsertOne(ctx, Document(r)); err != nil {
		m.logger.Warn("archive insert failed", "user", r.UserID, "channel", r.ChannelID, "error", err)
	}
}

// Close disconnects from the server.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// Discard drops every record. It is used when no archive is configured.
type Discard struct{}

func (Discard) Archive(context.Context, Record) {}
