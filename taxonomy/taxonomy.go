// Package taxonomy holds the tag catalog and the immutable per-request
// snapshot that validation and comparison read from.
package taxonomy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"mealscore"
	"mealscore/taxonomy/storage"
)

// fallbackTags is used when the catalog has no active tags at all.
var fallbackTags = []mealscore.TagDefinition{
	{TagKey: "balance_green", Category: mealscore.CategoryBalance, DisplayName: "Greens", SortOrder: 1},
	{TagKey: "energy_fast", Category: mealscore.CategoryEnergy, DisplayName: "Fast energy", SortOrder: 2},
	{TagKey: "digestion_light", Category: mealscore.CategoryDigestion, DisplayName: "Light on digestion", SortOrder: 3},
}

// Snapshot is a read-only view of the taxonomy for the duration of one call.
type Snapshot struct {
	defs  []mealscore.TagDefinition
	byKey map[string]mealscore.TagDefinition
}

// NewSnapshot orders defs by sort_order then tag_key and indexes them.
// Later duplicates of a key are ignored.
func NewSnapshot(defs []mealscore.TagDefinition) *Snapshot {
	s := &Snapshot{
		defs:  make([]mealscore.TagDefinition, 0, len(defs)),
		byKey: make(map[string]mealscore.TagDefinition, len(defs)),
	}
	for _, d := range defs {
		if _, seen := s.byKey[d.TagKey]; seen || d.TagKey == "" {
			continue
		}
		s.byKey[d.TagKey] = d
		s.defs = append(s.defs, d)
	}
	sort.SliceStable(s.defs, func(i, j int) bool {
		if s.defs[i].SortOrder != s.defs[j].SortOrder {
			return s.defs[i].SortOrder < s.defs[j].SortOrder
		}
		return s.defs[i].TagKey < s.defs[j].TagKey
	})
	return s
}

// Fallback returns a snapshot of the built-in tags.
func Fallback() *Snapshot {
	return NewSnapshot(fallbackTags)
}

// CategoryOf resolves a tag to its category. Unknown keys report false;
// historical data may reference retired tags.
func (s *Snapshot) CategoryOf(key string) (mealscore.Category, bool) {
	if s == nil {
		return "", false
	}
	d, ok := s.byKey[key]
	return d.Category, ok
}

// Allowed reports whether key is part of the snapshot.
func (s *Snapshot) Allowed(key string) bool {
	_, ok := s.CategoryOf(key)
	return ok
}

// Keys lists tag keys in catalog order.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, len(s.defs))
	for i, d := range s.defs {
		keys[i] = d.TagKey
	}
	return keys
}

// Definitions returns a copy of the ordered definitions.
func (s *Snapshot) Definitions() []mealscore.TagDefinition {
	if s == nil {
		return nil
	}
	out := make([]mealscore.TagDefinition, len(s.defs))
	copy(out, s.defs)
	return out
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.defs)
}

type catalogEntry struct {
	TagKey      string `json:"tag_key"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	SortOrder   int    `json:"sort_order"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

type catalogDocument struct {
	Tags []catalogEntry `json:"tags"`
}

// Decode parses a catalog document and returns its active definitions.
func Decode(data []byte) ([]mealscore.TagDefinition, error) {
	var doc catalogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode tag catalog: %w", err)
	}

	defs := make([]mealscore.TagDefinition, 0, len(doc.Tags))
	for i, e := range doc.Tags {
		if e.IsActive != nil && !*e.IsActive {
			continue
		}
		key := strings.TrimSpace(e.TagKey)
		if key == "" {
			return nil, fmt.Errorf("decode tag catalog: entry %d has no tag_key", i)
		}
		cat := mealscore.Category(strings.ToLower(strings.TrimSpace(e.Category)))
		if !cat.Valid() {
			return nil, fmt.Errorf("decode tag catalog: tag %q has unknown category %q", key, e.Category)
		}
		defs = append(defs, mealscore.TagDefinition{
			TagKey:      key,
			Category:    cat,
			DisplayName: e.DisplayName,
			SortOrder:   e.SortOrder,
		})
	}
	return defs, nil
}

// Catalog reads tag definitions from a catalog document on every call.
type Catalog struct {
	state storage.State
}

func NewCatalog(state storage.State) *Catalog {
	return &Catalog{state: state}
}

// ActiveTags implements mealscore.TagCatalog.
func (c *Catalog) ActiveTags(ctx context.Context) ([]mealscore.TagDefinition, error) {
	data, err := c.state.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("read tag catalog: %w", err)
	}
	return Decode(data)
}

// Load takes a fresh snapshot from the catalog, falling back to the built-in
// tags when the catalog has none active.
func Load(ctx context.Context, catalog mealscore.TagCatalog) (*Snapshot, error) {
	defs, err := catalog.ActiveTags(ctx)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		slog.Warn("TAXONOMY: Catalog has no active tags, using fallback", "fallback_count", len(fallbackTags))
		return Fallback(), nil
	}
	return NewSnapshot(defs), nil
}
