package crawl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// KeywordLister is the store slice the negative-keyword cache reads from.
// store.DocumentStore satisfies it.
type KeywordLister interface {
	ListNegativeKeywords(ctx context.Context) ([]string, error)
}

const defaultKeywordTTL = 5 * time.Minute

// NegativeKeywords caches the store-backed exclusion list. The list is
// read on every candidate, so it is loaded once per TTL and replaced
// wholesale on refresh; Invalidate forces a reload on the next lookup
// (the CLI calls it after keyword mutations).
type NegativeKeywords struct {
	lister KeywordLister
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	keywords []string
	loadedAt time.Time
}

// NewNegativeKeywords builds the cache; ttl <= 0 takes the default.
func NewNegativeKeywords(lister KeywordLister, ttl time.Duration) *NegativeKeywords {
	if ttl <= 0 {
		ttl = defaultKeywordTTL
	}
	return &NegativeKeywords{
		lister: lister,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Match reports the first configured keyword contained in text
// (case-insensitive substring), refreshing the cached list when stale.
func (n *NegativeKeywords) Match(ctx context.Context, text string) (string, bool, error) {
	keywords, err := n.load(ctx)
	if err != nil {
		return "", false, err
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return kw, true, nil
		}
	}
	return "", false, nil
}

// Invalidate drops the cached list; the next Match reloads from the store.
func (n *NegativeKeywords) Invalidate() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keywords = nil
	n.loadedAt = time.Time{}
}

func (n *NegativeKeywords) load(ctx context.Context) ([]string, error) {
	n.mu.RLock()
	if n.fresh() {
		keywords := n.keywords
		n.mu.RUnlock()
		return keywords, nil
	}
	n.mu.RUnlock()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fresh() {
		return n.keywords, nil
	}
	raw, err := n.lister.ListNegativeKeywords(ctx)
	if err != nil {
		return nil, fmt.Errorf("load negative keywords: %w", err)
	}
	keywords := make([]string, 0, len(raw))
	for _, kw := range raw {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	n.keywords = keywords
	n.loadedAt = n.now()
	return n.keywords, nil
}

// fresh must be called with at least a read lock held.
func (n *NegativeKeywords) fresh() bool {
	return !n.loadedAt.IsZero() && n.now().Sub(n.loadedAt) < n.ttl
}
