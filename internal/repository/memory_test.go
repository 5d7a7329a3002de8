package repository

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gst3d/pushserver/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func strPtr(s string) *string { return &s }

func TestUpsert_ReRegistrationKeepsRegisteredAt(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	reg := NewMemoryRegistry().WithClock(clock.Now)

	first, wasNew := reg.Upsert(domain.TokenRecord{
		Token:      "tok-1",
		Platform:   domain.PlatformAndroid,
		Source:     "app",
		CustomerID: strPtr("c-1"),
	})
	require.True(t, wasNew)
	assert.Equal(t, clock.Now(), first.RegisteredAt)

	clock.Advance(time.Hour)
	second, wasNew := reg.Upsert(domain.TokenRecord{
		Token:      "tok-1",
		Platform:   domain.PlatformIOS,
		Source:     "web",
		CustomerID: strPtr("c-2"),
		Email:      strPtr("a@example.com"),
	})
	require.False(t, wasNew)

	assert.Equal(t, first.RegisteredAt, second.RegisteredAt)
	assert.Equal(t, clock.Now(), second.LastSeen)
	assert.Equal(t, domain.PlatformIOS, second.Platform)
	assert.Equal(t, "web", second.Source)
	assert.Equal(t, "c-2", *second.CustomerID)
	assert.Equal(t, "a@example.com", *second.Email)

	all := reg.List()
	require.Len(t, all, 1)
	assert.Equal(t, second, all[0])
}

func TestUpsert_UnresolvedLocationKeepsPrevious(t *testing.T) {
	reg := NewMemoryRegistry()
	resolved := domain.TokenRecord{Token: "tok"}.WithLocation(domain.LocationHint{
		Country:     strPtr("FR"),
		CountryName: strPtr("France"),
		ResolvedBy:  domain.ResolvedByRemoteLookup,
	})
	reg.Upsert(resolved)

	rec, _ := reg.Upsert(domain.TokenRecord{Token: "tok", Source: "again"}.WithLocation(domain.Unresolved()))
	require.NotNil(t, rec.Country)
	assert.Equal(t, "FR", *rec.Country)
	assert.Equal(t, domain.ResolvedByRemoteLookup, rec.LocatedBy)
	assert.Equal(t, "again", rec.Source)
}

func TestUpsert_ConcurrentSameTokenCreatesOneRecord(t *testing.T) {
	reg := NewMemoryRegistry()
	const n = 200

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, wasNew := reg.Upsert(domain.TokenRecord{Token: "same", Source: fmt.Sprintf("s-%d", i)})
			if wasNew {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, reg.Count())
	assert.Len(t, reg.List(), 1)
}

func TestList_InsertionOrder(t *testing.T) {
	reg := NewMemoryRegistry()
	for _, tok := range []string{"c", "a", "b"} {
		reg.Upsert(domain.TokenRecord{Token: tok})
	}
	reg.Upsert(domain.TokenRecord{Token: "a", Source: "updated"})

	var got []string
	for _, r := range reg.List() {
		got = append(got, r.Token)
	}
	assert.Equal(t, []string{"c", "a", "b"}, got)
}

func TestFilter_CountryCaseInsensitive(t *testing.T) {
	reg := NewMemoryRegistry()
	reg.Upsert(domain.TokenRecord{Token: "t1", Country: strPtr("US"), LocatedBy: domain.ResolvedByEdgeHeader})
	reg.Upsert(domain.TokenRecord{Token: "t2", Country: strPtr("US"), LocatedBy: domain.ResolvedByEdgeHeader})
	reg.Upsert(domain.TokenRecord{Token: "t3", Country: strPtr("FR"), LocatedBy: domain.ResolvedByEdgeHeader})
	reg.Upsert(domain.TokenRecord{Token: "t4"})

	got := reg.Filter(func(r domain.TokenRecord) bool { return r.MatchesCountry("us") })
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].Token)
	assert.Equal(t, "t2", got[1].Token)
}

func TestEvict_RemovesBatchAndPreservesOrder(t *testing.T) {
	reg := NewMemoryRegistry()
	for _, tok := range []string{"a", "b", "c", "d"} {
		reg.Upsert(domain.TokenRecord{Token: tok})
	}

	removed := reg.Evict(map[string]struct{}{"b": {}, "d": {}, "missing": {}})
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, reg.Count())

	var got []string
	for _, r := range reg.List() {
		got = append(got, r.Token)
	}
	assert.Equal(t, []string{"a", "c"}, got)

	assert.Zero(t, reg.Evict(nil))
}

func TestEvict_ConcurrentWithUpsert(t *testing.T) {
	reg := NewMemoryRegistry()
	for i := 0; i < 50; i++ {
		reg.Upsert(domain.TokenRecord{Token: fmt.Sprintf("old-%d", i)})
	}

	doomed := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		doomed[fmt.Sprintf("old-%d", i)] = struct{}{}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			reg.Upsert(domain.TokenRecord{Token: fmt.Sprintf("new-%d", i)})
		}
	}()
	go func() {
		defer wg.Done()
		reg.Evict(doomed)
	}()
	wg.Wait()

	assert.Equal(t, 50, reg.Count())
	assert.Len(t, reg.List(), 50)
	for _, r := range reg.List() {
		assert.Contains(t, r.Token, "new-")
	}
}
