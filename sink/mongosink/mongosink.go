// Package mongosink stores items as documents in MongoDB.
package mongosink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aluiziolira/go-scrape-wuxia/config"
	"github.com/aluiziolira/go-scrape-wuxia/models"
	"github.com/aluiziolira/go-scrape-wuxia/pipeline"
)

const (
	BooksCollection    = "books"
	ChaptersCollection = "chapters"
)

// Config addresses the document store.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Sink inserts books and chapters into their collections. Connection
// happens in Open; indexes are built in Close.
type Sink struct {
	cfg    Config
	client *mongo.Client
	db     *mongo.Database
}

// New returns an unconnected sink.
func New(cfg Config) (*Sink, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongosink: empty uri")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongosink: empty database name")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Sink{cfg: cfg}, nil
}

// FromConfig builds the sink from application settings.
func FromConfig(cfg *config.Config) (*Sink, error) {
	return New(Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		Timeout:  cfg.Mongo.Timeout,
	})
}

func (s *Sink) Name() string { return "mongo" }

// Open connects to the server and selects the database.
func (s *Sink) Open(ctx context.Context, _ *pipeline.Run) error {
	opts := options.Client().
		ApplyURI(s.cfg.URI).
		SetConnectTimeout(s.cfg.Timeout).
		SetServerSelectionTimeout(s.cfg.Timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("ping mongo: %w", err)
	}

	s.client = client
	s.db = client.Database(s.cfg.Database)
	return nil
}

// Insert stores the item payload as one document. Identifiers are not
// checked; duplicates are rejected only by the server's _id index.
func (s *Sink) Insert(ctx context.Context, item *models.Item) error {
	if s.db == nil {
		return errors.New("mongosink: not open")
	}

	collection, err := collectionFor(item.Kind)
	if err != nil {
		return err
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, item.Payload()); err != nil {
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	return nil
}

// Close builds the secondary indexes and disconnects.
func (s *Sink) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}

	var errs []error
	if err := s.ensureIndexes(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.client.Disconnect(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disconnect mongo: %w", err))
	}
	s.client = nil
	s.db = nil
	return errors.Join(errs...)
}

// Database returns the selected database, or nil before Open.
func (s *Sink) Database() *mongo.Database {
	return s.db
}

func (s *Sink) ensureIndexes(ctx context.Context) error {
	books := mongo.IndexModel{Keys: bson.D{{Key: "likes", Value: -1}}}
	if _, err := s.db.Collection(BooksCollection).Indexes().CreateOne(ctx, books); err != nil {
		return fmt.Errorf("create books index: %w", err)
	}

	chapters := mongo.IndexModel{Keys: bson.D{{Key: "parent_book_id", Value: 1}}}
	if _, err := s.db.Collection(ChaptersCollection).Indexes().CreateOne(ctx, chapters); err != nil {
		return fmt.Errorf("create chapters index: %w", err)
	}
	return nil
}

func collectionFor(kind models.Kind) (string, error) {
	switch kind {
	case models.KindBook:
		return BooksCollection, nil
	case models.KindChapter:
		return ChaptersCollection, nil
	default:
		return "", fmt.Errorf("mongosink: unsupported item kind %s", kind)
	}
}
