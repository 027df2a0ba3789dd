package taxonomy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vetnav/resource-finder/pkg/fetch"
	"github.com/vetnav/resource-finder/pkg/filter"
	"github.com/vetnav/resource-finder/pkg/types"
)

type fakeSource struct {
	mu    sync.Mutex
	calls int
	block map[string]chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{block: make(map[string]chan struct{})}
}

func (f *fakeSource) FetchTags(ctx context.Context, category string, key ScopeKey) ([]types.TagGroup, error) {
	f.mu.Lock()
	f.calls++
	gate := f.block[key.String()]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []types.TagGroup{{Name: key.String(), Tags: []types.Tag{{Id: "t1", Label: "t1"}}}}, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestCacheHitShortCircuits(t *testing.T) {
	src := newFakeSource()
	c := NewCache(src, fetch.NewOrchestrator(), time.Minute)
	key := KeyFrom(filter.State{States: []string{"VA"}})

	if _, err := c.GetTags(context.Background(), "food", key); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if _, err := c.GetTags(context.Background(), "food", key); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if src.callCount() != 1 {
		t.Errorf("Expected one fetch for a fresh entry, got %d", src.callCount())
	}
}

func TestCacheStaleAfterWindow(t *testing.T) {
	src := newFakeSource()
	c := NewCache(src, fetch.NewOrchestrator(), time.Minute)
	current := time.Now()
	c.now = func() time.Time { return current }
	key := KeyFrom(filter.State{})

	c.GetTags(context.Background(), "food", key)
	current = current.Add(2 * time.Minute)
	c.GetTags(context.Background(), "food", key)
	if src.callCount() != 2 {
		t.Errorf("Expected refetch after freshness window, got %d calls", src.callCount())
	}
}

func TestScopeChangeInvalidatesEntry(t *testing.T) {
	src := newFakeSource()
	c := NewCache(src, fetch.NewOrchestrator(), time.Minute)

	vaKey := KeyFrom(filter.State{States: []string{"VA"}})
	mdKey := KeyFrom(filter.State{States: []string{"MD"}})
	c.GetTags(context.Background(), "food", vaKey)
	c.GetTags(context.Background(), "food", mdKey)
	if src.callCount() != 2 {
		t.Errorf("Expected fetch per scope key, got %d", src.callCount())
	}
	if c.Current("food", vaKey) {
		t.Errorf("Expected VA entry replaced by MD entry")
	}
	if !c.Current("food", mdKey) {
		t.Errorf("Expected MD entry to be current")
	}
}

func TestLateResponseForOldScopeDiscarded(t *testing.T) {
	src := newFakeSource()
	c := NewCache(src, fetch.NewOrchestrator(), time.Minute)

	vaKey := KeyFrom(filter.State{States: []string{"VA"}})
	mdKey := KeyFrom(filter.State{States: []string{"MD"}})

	gate := make(chan struct{})
	src.block[vaKey.String()] = gate

	done := make(chan error, 1)
	go func() {
		_, err := c.GetTags(context.Background(), "food", vaKey)
		done <- err
	}()

	// Wait for the VA fetch to reach the source before changing scope.
	for src.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	if _, err := c.GetTags(context.Background(), "food", mdKey); err != nil {
		t.Errorf("Expected MD fetch to win, got %v", err)
	}

	close(gate)
	if err := <-done; !errors.Is(err, fetch.ErrSuperseded) {
		t.Errorf("Expected VA fetch superseded, got %v", err)
	}
	if c.Current("food", vaKey) {
		t.Errorf("Expected cache not to hold the VA entry")
	}
	if !c.Current("food", mdKey) {
		t.Errorf("Expected cache to hold only the MD entry")
	}
}

func TestEmptyCategoryIsNoop(t *testing.T) {
	src := newFakeSource()
	c := NewCache(src, fetch.NewOrchestrator(), time.Minute)
	groups, err := c.GetTags(context.Background(), "", KeyFrom(filter.State{}))
	if err != nil || groups != nil {
		t.Errorf("Expected no-op for empty category, got %v %v", groups, err)
	}
	if src.callCount() != 0 {
		t.Errorf("Expected no fetch, got %d", src.callCount())
	}
}

func TestCategoriesCachedIndependently(t *testing.T) {
	src := newFakeSource()
	c := NewCache(src, fetch.NewOrchestrator(), time.Minute)
	key := KeyFrom(filter.State{})
	c.GetTags(context.Background(), "food", key)
	c.GetTags(context.Background(), "housing", key)
	if !c.Current("food", key) || !c.Current("housing", key) {
		t.Errorf("Expected both categories to stay cached")
	}
}
