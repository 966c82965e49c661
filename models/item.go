package models

import "fmt"

// Kind discriminates the payload carried by an Item.
type Kind int

const (
	KindUnknown Kind = iota
	KindBook
	KindChapter
)

func (k Kind) String() string {
	switch k {
	case KindBook:
		return "book"
	case KindChapter:
		return "chapter"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind as its lowercase name.
func (k Kind) MarshalText() ([]byte, error) {
	if k != KindBook && k != KindChapter {
		return nil, fmt.Errorf("models: cannot marshal kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText parses "book" or "chapter". Any other name decodes to
// KindUnknown so the item can be rejected by the pipeline instead of
// failing the whole stream.
func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "book":
		*k = KindBook
	case "chapter":
		*k = KindChapter
	default:
		*k = KindUnknown
	}
	return nil
}

// Item is one record flowing through the pipeline. Exactly one payload is
// expected to be set, matching Kind.
type Item struct {
	Kind    Kind     `json:"kind"`
	Book    *Book    `json:"book,omitempty"`
	Chapter *Chapter `json:"chapter,omitempty"`
}

// NewBookItem wraps b in an Item.
func NewBookItem(b *Book) *Item {
	return &Item{Kind: KindBook, Book: b}
}

// NewChapterItem wraps c in an Item.
func NewChapterItem(c *Chapter) *Item {
	return &Item{Kind: KindChapter, Chapter: c}
}

// ID returns the payload identifier, or 0 when the payload is missing.
func (it *Item) ID() int64 {
	if it == nil {
		return 0
	}
	switch it.Kind {
	case KindBook:
		if it.Book != nil {
			return it.Book.ID
		}
	case KindChapter:
		if it.Chapter != nil {
			return it.Chapter.ID
		}
	}
	return 0
}

// NameField points at the field holding the book's display name: the name
// of a book, or the parent book name of a chapter.
func (it *Item) NameField() *string {
	if it == nil {
		return nil
	}
	switch it.Kind {
	case KindBook:
		if it.Book != nil {
			return &it.Book.Name
		}
	case KindChapter:
		if it.Chapter != nil {
			return &it.Chapter.ParentBookName
		}
	}
	return nil
}

// Payload returns the book or chapter carried by the item.
func (it *Item) Payload() any {
	if it == nil {
		return nil
	}
	switch it.Kind {
	case KindBook:
		if it.Book != nil {
			return it.Book
		}
	case KindChapter:
		if it.Chapter != nil {
			return it.Chapter
		}
	}
	return nil
}

// String summarises the item for log lines without dumping article bodies.
func (it *Item) String() string {
	if it == nil {
		return "<nil item>"
	}
	name := ""
	if field := it.NameField(); field != nil {
		name = *field
	}
	return fmt.Sprintf("%s %d %q", it.Kind, it.ID(), name)
}
