package pipeline

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-wuxia/metrics"
	"github.com/aluiziolira/go-scrape-wuxia/models"
	"github.com/aluiziolira/go-scrape-wuxia/parser"
)

// IdentifierGuard drops items without an identifier.
type IdentifierGuard struct{}

// NewIdentifierGuard returns the identifier check stage.
func NewIdentifierGuard() *IdentifierGuard {
	return &IdentifierGuard{}
}

func (g *IdentifierGuard) Name() string { return "id_guard" }

func (g *IdentifierGuard) ProcessItem(_ context.Context, _ *Run, item *models.Item) (*models.Item, error) {
	if err := parser.ValidateItem(item); err != nil {
		return nil, newDrop(ReasonMissingID, item, err)
	}
	return item, nil
}

// DuplicateGuard drops items whose identifier was already seen by this
// guard. Books and chapters are tracked separately.
type DuplicateGuard struct {
	booksSeen    map[int64]struct{}
	chaptersSeen map[int64]struct{}
}

// NewDuplicateGuard returns a guard with empty seen-sets.
func NewDuplicateGuard() *DuplicateGuard {
	return &DuplicateGuard{
		booksSeen:    make(map[int64]struct{}),
		chaptersSeen: make(map[int64]struct{}),
	}
}

func (g *DuplicateGuard) Name() string { return "duplicate_guard" }

func (g *DuplicateGuard) ProcessItem(_ context.Context, _ *Run, item *models.Item) (*models.Item, error) {
	if item == nil {
		return item, nil
	}

	var seen map[int64]struct{}
	switch item.Kind {
	case models.KindBook:
		seen = g.booksSeen
	case models.KindChapter:
		seen = g.chaptersSeen
	default:
		return item, nil
	}

	id := item.ID()
	if _, ok := seen[id]; ok {
		return nil, newDrop(ReasonDuplicateID, item, nil)
	}
	seen[id] = struct{}{}
	return item, nil
}

// Seen reports whether id has passed the guard for kind.
func (g *DuplicateGuard) Seen(kind models.Kind, id int64) bool {
	switch kind {
	case models.KindBook:
		_, ok := g.booksSeen[id]
		return ok
	case models.KindChapter:
		_, ok := g.chaptersSeen[id]
		return ok
	}
	return false
}

// NameNormalizer cleans the book name of an item and drops items whose name
// does not look like a book index page.
type NameNormalizer struct {
	cache   *lru.Cache[string, string]
	metrics *metrics.Metrics
}

// NewNameNormalizer builds the normaliser. cacheSize bounds the memo of
// already cleaned names; zero disables it.
func NewNameNormalizer(cacheSize int, m *metrics.Metrics) (*NameNormalizer, error) {
	n := &NameNormalizer{metrics: m}
	if cacheSize > 0 {
		cache, err := lru.New[string, string](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create name cache: %w", err)
		}
		n.cache = cache
	}
	return n, nil
}

func (n *NameNormalizer) Name() string { return "name_normalizer" }

func (n *NameNormalizer) ProcessItem(_ context.Context, _ *Run, item *models.Item) (*models.Item, error) {
	field := item.NameField()
	if field == nil {
		return nil, newDrop(ReasonUnrecognizedContent, item, fmt.Errorf("no name field"))
	}
	if !parser.IsIndexName(*field) {
		return nil, newDrop(ReasonUnrecognizedContent, item, fmt.Errorf("missing index marker in %q", *field))
	}
	*field = n.normalize(*field)
	return item, nil
}

func (n *NameNormalizer) normalize(name string) string {
	if n.cache == nil {
		return parser.NormalizeBookName(name)
	}
	if cleaned, ok := n.cache.Get(name); ok {
		n.metrics.IncNameCache(true)
		return cleaned
	}
	n.metrics.IncNameCache(false)
	cleaned := parser.NormalizeBookName(name)
	n.cache.Add(name, cleaned)
	return cleaned
}
