package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestItemID(t *testing.T) {
	tests := []struct {
		name string
		item *Item
		want int64
	}{
		{name: "nil item", item: nil, want: 0},
		{name: "book", item: NewBookItem(&Book{ID: 7}), want: 7},
		{name: "chapter", item: NewChapterItem(&Chapter{ID: 9}), want: 9},
		{name: "book kind without payload", item: &Item{Kind: KindBook}, want: 0},
		{name: "mismatched payload", item: &Item{Kind: KindChapter, Book: &Book{ID: 3}}, want: 0},
		{name: "unknown kind", item: &Item{Book: &Book{ID: 3}}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.ID(); got != tt.want {
				t.Fatalf("ID() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestItemNameField(t *testing.T) {
	book := NewBookItem(&Book{ID: 1, Name: "War in Heaven - Index"})
	*book.NameField() = "War in Heaven"
	if book.Book.Name != "War in Heaven" {
		t.Fatalf("book name = %q, want mutation through NameField", book.Book.Name)
	}

	chapter := NewChapterItem(&Chapter{ID: 2, Name: "Chapter 1", ParentBookName: "Desolate Era - Index"})
	if got := *chapter.NameField(); got != "Desolate Era - Index" {
		t.Fatalf("chapter name field = %q, want parent book name", got)
	}
}

func TestItemJSONKind(t *testing.T) {
	line := `{"kind":"chapter","chapter":{"id":12,"name":"Chapter 12","parent_book_id":3,"parent_book_name":"Coiling Dragon - Index","article_html":"<p>text</p>"}}`

	var item Item
	if err := json.Unmarshal([]byte(line), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if item.Kind != KindChapter || item.ID() != 12 || item.Chapter.ParentBookID != 3 {
		t.Fatalf("decoded item = %+v", item.Chapter)
	}

	var volume Item
	if err := json.Unmarshal([]byte(`{"kind":"volume","book":{"id":9}}`), &volume); err != nil {
		t.Fatalf("unknown kind should decode, got %v", err)
	}
	if volume.Kind != KindUnknown || volume.ID() != 0 {
		t.Fatalf("unknown kind decoded as %s with id %d", volume.Kind, volume.ID())
	}

	out, err := json.Marshal(NewBookItem(&Book{ID: 5, Name: "Stellar Transformations"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"kind":"book"`) {
		t.Fatalf("marshalled item %s missing kind", out)
	}
}
