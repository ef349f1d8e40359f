package template

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// candidateCacheSize bounds the per-command candidate memo. Command sets
// are small; the cache exists to skip the prefix scan on hot commands.
const candidateCacheSize = 128

// Store is the indexed template catalog. Immutable after construction and
// safe for concurrent use.
type Store struct {
	templates []*Template
	cache     *lru.Cache[string, []*Template]
}

// NewStore builds a store over the given templates, ordered by ID.
func NewStore(tmpls []*Template) *Store {
	ordered := make([]*Template, len(tmpls))
	copy(ordered, tmpls)
	SortByID(ordered)

	cache, _ := lru.New[string, []*Template](candidateCacheSize)
	return &Store{templates: ordered, cache: cache}
}

// Candidates returns the templates whose filter matches the command. The
// order is by template ID; correctness does not depend on it.
func (s *Store) Candidates(commandText string) []*Template {
	cmd := NormalizeCommand(commandText)
	if hit, ok := s.cache.Get(cmd); ok {
		return hit
	}

	var out []*Template
	for _, t := range s.templates {
		if strings.HasPrefix(cmd, t.Filter) {
			out = append(out, t)
		}
	}
	s.cache.Add(cmd, out)
	return out
}

// Len returns the catalog size.
func (s *Store) Len() int {
	return len(s.templates)
}
