package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aluiziolira/go-scrape-wuxia/models"
)

// ReadItems decodes a stream of JSON items and calls fn for each one, in
// order. It stops at EOF, on a decode error, or when fn or ctx fail.
func ReadItems(ctx context.Context, r io.Reader, fn func(*models.Item) error) (int, error) {
	dec := json.NewDecoder(r)
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		var item models.Item
		if err := dec.Decode(&item); err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return count, fmt.Errorf("decode item %d: %w", count+1, err)
		}
		count++
		if err := fn(&item); err != nil {
			return count, err
		}
	}
}
