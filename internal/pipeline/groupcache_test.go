package pipeline

import (
	"context"
	"testing"
	"time"
)

func TestGroupCacheHitSkipsFetch(t *testing.T) {
	c := NewGroupCache()
	calls := 0
	fetch := func(ctx context.Context, jid string) (string, error) {
		calls++
		return "Tim Proyek", nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.Subject(context.Background(), "g1@g.us", fetch)
		if err != nil {
			t.Fatalf("subject: %v", err)
		}
		if got != "Tim Proyek" {
			t.Fatalf("subject = %q", got)
		}
	}
	if calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", calls)
	}
}

func TestGroupCacheExpires(t *testing.T) {
	c := NewGroupCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	calls := 0
	fetch := func(ctx context.Context, jid string) (string, error) {
		calls++
		return "Tim Proyek", nil
	}
	if _, err := c.Subject(context.Background(), "g1@g.us", fetch); err != nil {
		t.Fatalf("subject: %v", err)
	}

	now = now.Add(groupSubjectTTL + time.Second)
	if _, err := c.Subject(context.Background(), "g1@g.us", fetch); err != nil {
		t.Fatalf("subject: %v", err)
	}
	if calls != 2 {
		t.Fatalf("fetch calls = %d, want refetch after TTL", calls)
	}
}

func TestGroupCacheEvictsOnError(t *testing.T) {
	c := NewGroupCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	calls := 0
	failing := func(ctx context.Context, jid string) (string, error) {
		calls++
		return "", errFetch
	}
	ok := func(ctx context.Context, jid string) (string, error) {
		calls++
		return "Tim Proyek", nil
	}

	if _, err := c.Subject(context.Background(), "g1@g.us", ok); err != nil {
		t.Fatalf("seed: %v", err)
	}
	now = now.Add(groupSubjectTTL + time.Second)

	if _, err := c.Subject(context.Background(), "g1@g.us", failing); err != errFetch {
		t.Fatalf("err = %v, want fetch failure propagated", err)
	}
	// No negative caching: the next reference fetches again.
	got, err := c.Subject(context.Background(), "g1@g.us", ok)
	if err != nil || got != "Tim Proyek" {
		t.Fatalf("retry after error: %q %v", got, err)
	}
	if calls != 3 {
		t.Fatalf("fetch calls = %d, want 3", calls)
	}
}

func TestGroupCachePutRefreshes(t *testing.T) {
	c := NewGroupCache()
	c.Put("g1@g.us", "Nama Baru")
	got, err := c.Subject(context.Background(), "g1@g.us", func(ctx context.Context, jid string) (string, error) {
		t.Fatalf("fetch called despite fresh Put")
		return "", nil
	})
	if err != nil || got != "Nama Baru" {
		t.Fatalf("subject = %q %v", got, err)
	}
}
