package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/aluiziolira/go-scrape-wuxia/config"
	"github.com/aluiziolira/go-scrape-wuxia/pipeline"
	"github.com/aluiziolira/go-scrape-wuxia/sink/sqlsink"
)

const itemsFixture = `{"kind":"book","book":{"id":1,"name":"War in Heaven (战天)- Index","description":"A war","published_time":"2019-01-01","modified_time":"2019-02-01","likes":7}}
{"kind":"book","book":{"id":1,"name":"War in Heaven (战天)- Index"}}
{"kind":"chapter","chapter":{"id":10,"name":"Chapter 1","parent_book_id":1,"parent_book_name":"War in Heaven (战天)- Index","article_html":"<p>text</p>"}}
{"kind":"book","book":{"id":0,"name":"Coiling Dragon - Index"}}
{"kind":"book","book":{"id":2,"name":"Chapter 12"}}
{"kind":"novel","book":{"id":3,"name":"Renegade Immortal - Index"}}
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunCommandStoresItems(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	input := filepath.Join(dir, "items.jsonl")
	if err := os.WriteFile(input, []byte(itemsFixture), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	dbPath := filepath.Join(dir, "wuxia.db")
	jsonlPath := filepath.Join(dir, "out", "items.jsonl")
	t.Setenv("WUXIA_JSONL_PATH", jsonlPath)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"run", "--input", input, "--sinks", "sql,jsonl", "--sql-dsn", dbPath})
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	summary := out.String()
	if !strings.Contains(summary, "Items read:    6") || !strings.Contains(summary, "Dropped:       4") {
		t.Fatalf("unexpected summary:\n%s", summary)
	}

	db, err := sqlx.Open(sqlsink.DriverSQLite, dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var name string
	if err := db.Get(&name, `SELECT name FROM books WHERE id = 1`); err != nil {
		t.Fatalf("select book: %v", err)
	}
	if name != "War in Heaven" {
		t.Fatalf("book name = %q, want normalized", name)
	}
	var books int
	if err := db.Get(&books, `SELECT COUNT(*) FROM books`); err != nil {
		t.Fatalf("count books: %v", err)
	}
	if books != 1 {
		t.Fatalf("books = %d, want 1", books)
	}
	var chapters int
	if err := db.Get(&chapters, `SELECT COUNT(*) FROM chapters`); err != nil {
		t.Fatalf("count chapters: %v", err)
	}
	if chapters != 1 {
		t.Fatalf("chapters = %d, want 1", chapters)
	}

	exported, err := os.ReadFile(jsonlPath)
	if err != nil {
		t.Fatalf("read jsonl: %v", err)
	}
	if lines := strings.Count(string(exported), "\n"); lines != 2 {
		t.Fatalf("jsonl lines = %d, want 2", lines)
	}
}

func TestTolerateItemErrors(t *testing.T) {
	drop := &pipeline.DropError{Reason: pipeline.ReasonDuplicateID}
	persist := &pipeline.PersistError{Sink: "sql", Err: errors.New("locked")}
	fatal := errors.New("stage name_normalizer returned no item")

	if err := tolerateItemErrors(drop); err != nil {
		t.Fatalf("drop should be tolerated, got %v", err)
	}
	if err := tolerateItemErrors(fmt.Errorf("joined: %w", persist)); err != nil {
		t.Fatalf("persist failure should be tolerated, got %v", err)
	}
	if err := tolerateItemErrors(pipeline.ErrPipelineClosed); !errors.Is(err, pipeline.ErrPipelineClosed) {
		t.Fatalf("closed pipeline must stop the run, got %v", err)
	}
	if err := tolerateItemErrors(fatal); err != fatal {
		t.Fatalf("unexpected error passthrough: %v", err)
	}
}

func TestNewSinkUnknown(t *testing.T) {
	if _, err := newSink(context.Background(), "redis", config.DefaultConfig(), discardLogger()); err == nil {
		t.Fatalf("expected error for unknown sink")
	}
}

func TestBuildPipelineClosesEarlierSinksOnFailure(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.JSONL.Path = filepath.Join(dir, "items.jsonl")
	cfg.SQL.DSN = filepath.Join(dir, "missing", "dir", "wuxia.db")
	cfg.Sinks = []string{config.SinkJSONL, config.SinkSQL}

	if _, err := buildPipeline(context.Background(), cfg, nil, discardLogger()); err == nil {
		t.Fatalf("expected sql sink construction to fail")
	}
}

func TestOpenInputMissingFile(t *testing.T) {
	if _, err := openInput(filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Fatalf("expected error for missing input")
	}
}
