package livecache

import (
	"context"
	"testing"

	"github.com/goliatone/go-livequery-cache/connectivity"
	"github.com/goliatone/go-livequery-cache/docstore"
	"github.com/goliatone/go-livequery-cache/docstore/memstore"
)

func watchComposite(t *testing.T) (*fakeStore, *CompositeCache[lesson, lesson]) {
	t.Helper()

	store := newFakeStore()
	cache := NewCompositeCache[lesson, lesson](store, connectivity.NewManualMonitor(true))
	t.Cleanup(cache.Close)

	q1 := docstore.NewQuery("students").Where("email", docstore.OpEqual, "a@example.com")
	q2 := docstore.NewQuery("teachers").Where("email", docstore.OpEqual, "a@example.com")
	cache.Watch(&q1, &q2)

	if store.querySubCount() != 2 {
		t.Fatalf("composite registered %d subscriptions, want 2", store.querySubCount())
	}
	return store, cache
}

func TestCompositeCache_LoadingUntilBothResolve(t *testing.T) {
	store, cache := watchComposite(t)

	store.querySubAt(0).onNext(querySnapshot(false, "s1"))

	if r := cache.Result(); !r.Loading {
		t.Error("composite not loading while second query unresolved")
	}

	store.querySubAt(1).onNext(querySnapshot(false))

	r := cache.Result()
	if r.Loading {
		t.Error("composite still loading after both queries resolved")
	}
	if len(r.Docs1) != 1 || len(r.Docs2) != 0 {
		t.Errorf("slots = %d/%d, want 1/0 (slots must stay separate)", len(r.Docs1), len(r.Docs2))
	}
}

func TestCompositeCache_FlagsMapToTheirOwnConcern(t *testing.T) {
	store, cache := watchComposite(t)

	// One side fails: that is a load error, not an offline signal.
	store.querySubAt(0).onNext(querySnapshot(false, "s1"))
	store.querySubAt(1).onError(docstore.ErrPermissionDenied)

	r := cache.Result()
	if !r.LoadingError {
		t.Error("LoadingError not set when one input failed")
	}
	if r.Offline {
		t.Error("Offline set by a subscription failure")
	}
}

func TestCompositeCache_OfflineWhenEitherSideOffline(t *testing.T) {
	store := newFakeStore()
	monitor := connectivity.NewManualMonitor(false)
	cache := NewCompositeCache[lesson, lesson](store, monitor)
	defer cache.Close()

	q1 := docstore.NewQuery("students")
	q2 := docstore.NewQuery("teachers")
	cache.Watch(&q1, &q2)

	store.querySubAt(0).onNext(querySnapshot(true, "s1"))
	store.querySubAt(1).onNext(querySnapshot(false))

	r := cache.Result()
	if !r.Offline {
		t.Error("Offline not set when one input shows cached-while-disconnected data")
	}
	if r.LoadingError {
		t.Error("LoadingError set by an offline input")
	}
}

func TestCompositeCache_NilSlotStaysNeutral(t *testing.T) {
	store := newFakeStore()
	cache := NewCompositeCache[lesson, lesson](store, connectivity.NewManualMonitor(true))
	defer cache.Close()

	q1 := docstore.NewQuery("students")
	cache.Watch(&q1, nil)

	if store.querySubCount() != 1 {
		t.Fatalf("nil slot subscribed anyway: %d subscriptions", store.querySubCount())
	}

	store.querySubAt(0).onNext(querySnapshot(false, "s1"))

	r := cache.Result()
	if r.Loading {
		t.Error("composite loading blocked by a nil slot")
	}
	if len(r.Docs1) != 1 || len(r.Docs2) != 0 {
		t.Errorf("slots = %d/%d, want 1/0", len(r.Docs1), len(r.Docs2))
	}
}

func TestCompositeCache_RetryRestartsBothSides(t *testing.T) {
	store, cache := watchComposite(t)

	store.querySubAt(0).onError(docstore.ErrUnavailable)
	store.querySubAt(1).onError(docstore.ErrUnavailable)

	cache.Retry()

	if store.querySubCount() != 4 {
		t.Errorf("subscriptions after retry = %d, want 4", store.querySubCount())
	}
	if r := cache.Result(); r.LoadingError || !r.Loading {
		t.Errorf("result after retry = %+v", r)
	}
}

// A store that delivers its initial snapshot synchronously from inside
// SubscribeQuery must not let observers see a merge where one side has
// resolved while the other has not started loading.
func TestCompositeCache_SynchronousStoreSettlesAtomically(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	if err := store.Set(ctx, docstore.DocRef{Collection: "students", ID: "s1"}, map[string]string{"title": "algebra"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Set(ctx, docstore.DocRef{Collection: "teachers", ID: "t1"}, map[string]string{"title": "geometry"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	cache := NewCompositeCache[lesson, lesson](store, connectivity.NewManualMonitor(true))
	defer cache.Close()

	var seen []CompositeResult[lesson, lesson]
	cancel := cache.Subscribe(func(r CompositeResult[lesson, lesson]) { seen = append(seen, r) })
	defer cancel()

	q1 := docstore.NewQuery("students")
	q2 := docstore.NewQuery("teachers")
	cache.Watch(&q1, &q2)

	if len(seen) != 1 {
		t.Fatalf("observer notified %d times during Watch, want exactly 1 settled merge", len(seen))
	}
	got := seen[0]
	if got.Loading || len(got.Docs1) != 1 || len(got.Docs2) != 1 {
		t.Errorf("settled merge = %+v, want both sides resolved", got)
	}
}

func TestCompositeCache_ObserverSeesMergedUpdates(t *testing.T) {
	store, cache := watchComposite(t)

	var last CompositeResult[lesson, lesson]
	calls := 0
	cancel := cache.Subscribe(func(r CompositeResult[lesson, lesson]) {
		last = r
		calls++
	})
	defer cancel()

	store.querySubAt(0).onNext(querySnapshot(false, "s1"))
	store.querySubAt(1).onNext(querySnapshot(false, "t1", "t2"))

	if calls == 0 {
		t.Fatal("observer never notified")
	}
	if last.Loading || len(last.Docs1) != 1 || len(last.Docs2) != 2 {
		t.Errorf("final merged result = %+v", last)
	}
}
