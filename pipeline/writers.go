package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-wuxia/models"
)

// JSONLSink appends accepted items to a newline-delimited JSON file.
type JSONLSink struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
	closed  bool
}

// NewJSONLSink creates filename, and its directory when missing.
func NewJSONLSink(filename string) (*JSONLSink, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create jsonl file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONLSink{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

func (js *JSONLSink) Name() string { return "jsonl" }

// Insert writes item as one line and flushes it.
func (js *JSONLSink) Insert(_ context.Context, item *models.Item) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.closed {
		return fmt.Errorf("jsonl sink closed")
	}
	if err := js.encoder.Encode(item); err != nil {
		return fmt.Errorf("encode jsonl record: %w", err)
	}
	if err := js.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (js *JSONLSink) Close(_ context.Context) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	if js.closed {
		return nil
	}
	js.closed = true
	if err := js.writer.Flush(); err != nil {
		js.file.Close()
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return js.file.Close()
}

// Validate ensures the output file has data.
func (js *JSONLSink) Validate() error {
	info, err := os.Stat(js.file.Name())
	if err != nil {
		return fmt.Errorf("stat jsonl file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("jsonl file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
