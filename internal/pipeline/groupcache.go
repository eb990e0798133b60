package pipeline

import (
	"context"
	"sync"
	"time"
)

const groupSubjectTTL = 5 * time.Minute

// SubjectFetcher fetches a group's current subject from the protocol.
type SubjectFetcher func(ctx context.Context, groupJID string) (string, error)

type subjectEntry struct {
	val    string
	expiry time.Time
}

// GroupCache is a TTL cache of group subjects.  A failed fetch evicts
// any stale entry so the next reference retries; there is no negative
// caching.
type GroupCache struct {
	mu      sync.RWMutex
	entries map[string]subjectEntry
	now     func() time.Time
}

func NewGroupCache() *GroupCache {
	return &GroupCache{entries: map[string]subjectEntry{}, now: time.Now}
}

// Subject returns the cached subject, or fetches and caches it.
func (c *GroupCache) Subject(ctx context.Context, groupJID string, fetch SubjectFetcher) (string, error) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.entries[groupJID]
	c.mu.RUnlock()
	if ok && now.Before(e.expiry) {
		return e.val, nil
	}

	subject, err := fetch(ctx, groupJID)
	if err != nil {
		c.mu.Lock()
		delete(c.entries, groupJID)
		c.mu.Unlock()
		return "", err
	}
	c.Put(groupJID, subject)
	return subject, nil
}

// Put stores a subject, refreshing the TTL.  Used directly when a
// groups.update event carries the new subject.
func (c *GroupCache) Put(groupJID, subject string) {
	c.mu.Lock()
	c.entries[groupJID] = subjectEntry{val: subject, expiry: c.now().Add(groupSubjectTTL)}
	c.mu.Unlock()
}
