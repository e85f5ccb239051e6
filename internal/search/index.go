// Package search defines the title-index collaborator consumed by the
// tracker service. The core only needs Index/Remove/Search; tokenization
// and ranking are the collaborator's concern. Memory is the bundled
// default, good enough for a single-node daemon and for tests.
package search

import (
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Match is one ranked search hit.
type Match struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// Index receives tracker titles for lookup by relevance.
type Index interface {
	Index(id, title string)
	Remove(id string)
	Search(query string, limit int) []Match
}

type doc struct {
	title  string
	tokens map[string]int
	length int
}

// Memory is a naive in-process token index.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]doc
}

func NewMemory() *Memory {
	return &Memory{docs: map[string]doc{}}
}

func (m *Memory) Index(id, title string) {
	tokens := tokenize(title)
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}

	m.mu.Lock()
	m.docs[id] = doc{title: title, tokens: counts, length: len(tokens)}
	m.mu.Unlock()
}

func (m *Memory) Remove(id string) {
	m.mu.Lock()
	delete(m.docs, id)
	m.mu.Unlock()
}

// Search scores documents by query-token overlap, normalized by document
// length so short exact titles outrank long ones that merely contain the
// terms. A whole-phrase substring match gets a flat bonus.
func (m *Memory) Search(query string, limit int) []Match {
	qTokens := tokenize(query)
	if len(qTokens) == 0 {
		return nil
	}
	phrase := strings.ToLower(strings.TrimSpace(query))

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Match
	for id, d := range m.docs {
		if d.length == 0 {
			continue
		}
		hits := 0
		for _, tok := range qTokens {
			if d.tokens[tok] > 0 {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(qTokens))
		score *= 1 / (1 + float64(d.length-hits)*0.1)
		if phrase != "" && strings.Contains(strings.ToLower(d.title), phrase) {
			score += 0.5
		}
		out = append(out, Match{ID: id, Title: d.title, Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Title < out[j].Title
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
