// Package sqlsink stores items in a two-table relational schema. The
// tables are dropped and recreated every time a sink is constructed, so
// the database only ever holds the current run.
package sqlsink

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/aluiziolira/go-scrape-wuxia/models"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// books also carries cover_url and likes so every scraped field has a column.
var schema = []string{
	`DROP TABLE IF EXISTS books`,
	`DROP TABLE IF EXISTS chapters`,
	`CREATE TABLE books (
		id BIGINT PRIMARY KEY NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		published_time TEXT NOT NULL,
		modified_time TEXT NOT NULL,
		cover_url TEXT,
		likes BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE chapters (
		id BIGINT PRIMARY KEY NOT NULL,
		name TEXT NOT NULL,
		parent_book_id BIGINT NOT NULL,
		parent_book_name TEXT NOT NULL,
		article_html TEXT NOT NULL,
		article_footer TEXT
	)`,
}

const (
	insertBook = `INSERT INTO books (id, name, description, published_time, modified_time, cover_url, likes)
		VALUES (:id, :name, :description, :published_time, :modified_time, :cover_url, :likes)`
	insertChapter = `INSERT INTO chapters (id, name, parent_book_id, parent_book_name, article_html, article_footer)
		VALUES (:id, :name, :parent_book_id, :parent_book_name, :article_html, :article_footer)`
)

// Config selects the database/sql driver and its data source.
type Config struct {
	Driver string
	DSN    string
}

// InsertError reports a row the database refused.
type InsertError struct {
	Table string
	ID    int64
	Err   error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("insert %s %d: %v", e.Table, e.ID, e.Err)
}

func (e *InsertError) Unwrap() error {
	return e.Err
}

// Sink writes books and chapters to their tables.
type Sink struct {
	db *sqlx.DB
}

// New connects to the database and recreates the schema.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("sqlsink: empty dsn")
	}

	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	s := &Sink{db: db}
	if err := s.resetSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) Name() string { return "sql" }

// Insert adds one row for the item. A failure leaves the database unchanged.
func (s *Sink) Insert(ctx context.Context, item *models.Item) error {
	if s.db == nil {
		return fmt.Errorf("sqlsink: closed")
	}
	switch item.Kind {
	case models.KindBook:
		if _, err := s.db.NamedExecContext(ctx, insertBook, item.Book); err != nil {
			return &InsertError{Table: "books", ID: item.ID(), Err: err}
		}
	case models.KindChapter:
		if _, err := s.db.NamedExecContext(ctx, insertChapter, item.Chapter); err != nil {
			return &InsertError{Table: "chapters", ID: item.ID(), Err: err}
		}
	default:
		return fmt.Errorf("sqlsink: unsupported item kind %s", item.Kind)
	}
	return nil
}

// DB exposes the connection for read-side queries.
func (s *Sink) DB() *sqlx.DB {
	return s.db
}

// Close closes the connection.
func (s *Sink) Close(_ context.Context) error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Sink) resetSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset schema: %w", err)
		}
	}
	return nil
}
