package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-livequery-cache/docstore"
)

type student struct {
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Year   int      `json:"year"`
	Topics []string `json:"topics,omitempty"`
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	docs := map[string]student{
		"s1": {Name: "Asha", Email: "asha@example.com", Year: 2, Topics: []string{"math"}},
		"s2": {Name: "Ben", Email: "ben@example.com", Year: 1},
		"s3": {Name: "Chi", Email: "chi@example.com", Year: 3, Topics: []string{"math", "art"}},
	}
	for id, doc := range docs {
		if err := s.Set(ctx, docstore.DocRef{Collection: "students", ID: id}, doc); err != nil {
			t.Fatalf("Set(%s) error = %v", id, err)
		}
	}
}

func queryIDs(snap docstore.QuerySnapshot) []string {
	ids := make([]string, len(snap.Docs))
	for i, d := range snap.Docs {
		ids[i] = d.Ref.ID
	}
	return ids
}

func TestStore_GetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s)

	snap, err := s.Get(ctx, docstore.DocRef{Collection: "students", ID: "s1"})
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !snap.Exists {
		t.Fatal("expected document to exist")
	}

	_, err = s.Get(ctx, docstore.DocRef{Collection: "students", ID: "absent"})
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Get(absent) error = %v, want ErrNotFound", err)
	}
}

func TestStore_QueryFilters(t *testing.T) {
	s := New()
	seed(t, s)

	tests := []struct {
		name string
		q    docstore.Query
		want []string
	}{
		{
			"equality",
			docstore.NewQuery("students").Where("email", docstore.OpEqual, "ben@example.com"),
			[]string{"s2"},
		},
		{
			"inequality",
			docstore.NewQuery("students").Where("year", docstore.OpNotEqual, 2),
			[]string{"s2", "s3"},
		},
		{
			"range",
			docstore.NewQuery("students").Where("year", docstore.OpGreaterOrEqual, 2),
			[]string{"s1", "s3"},
		},
		{
			"membership",
			docstore.NewQuery("students").Where("year", docstore.OpIn, []int{1, 3}),
			[]string{"s2", "s3"},
		},
		{
			"array contains",
			docstore.NewQuery("students").Where("topics", docstore.OpArrayContains, "math"),
			[]string{"s1", "s3"},
		},
		{
			"no matches",
			docstore.NewQuery("students").Where("year", docstore.OpGreater, 10),
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got docstore.QuerySnapshot
			cancel := s.SubscribeQuery(tt.q, func(snap docstore.QuerySnapshot) {
				got = snap
			}, func(err error) {
				t.Fatalf("unexpected subscription error: %v", err)
			})
			defer cancel()

			ids := queryIDs(got)
			if len(ids) != len(tt.want) {
				t.Fatalf("got %v, want %v", ids, tt.want)
			}
			for i := range tt.want {
				if ids[i] != tt.want[i] {
					t.Errorf("doc %d = %s, want %s", i, ids[i], tt.want[i])
				}
			}
		})
	}
}

func TestStore_QueryOrderingAndLimit(t *testing.T) {
	s := New()
	seed(t, s)

	var got docstore.QuerySnapshot
	q := docstore.NewQuery("students").OrderByDesc("year").WithLimit(2)
	cancel := s.SubscribeQuery(q, func(snap docstore.QuerySnapshot) { got = snap }, func(err error) {
		t.Fatalf("unexpected subscription error: %v", err)
	})
	defer cancel()

	want := []string{"s3", "s1"}
	ids := queryIDs(got)
	if len(ids) != 2 || ids[0] != want[0] || ids[1] != want[1] {
		t.Errorf("ordered docs = %v, want %v", ids, want)
	}
}

func TestStore_SubscriptionReceivesMutations(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s)

	var snaps []docstore.QuerySnapshot
	q := docstore.NewQuery("students").Where("year", docstore.OpEqual, 1)
	cancel := s.SubscribeQuery(q, func(snap docstore.QuerySnapshot) {
		snaps = append(snaps, snap)
	}, func(err error) {
		t.Fatalf("unexpected subscription error: %v", err)
	})
	defer cancel()

	// Move s3 into the result set, then delete s2 out of it.
	s.Set(ctx, docstore.DocRef{Collection: "students", ID: "s3"}, student{Name: "Chi", Year: 1})
	s.Delete(ctx, docstore.DocRef{Collection: "students", ID: "s2"})

	if len(snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(snaps))
	}
	final := queryIDs(snaps[len(snaps)-1])
	if len(final) != 1 || final[0] != "s3" {
		t.Errorf("final result = %v, want [s3]", final)
	}
}

func TestStore_DocSubscription(t *testing.T) {
	ctx := context.Background()
	s := New()

	ref := docstore.DocRef{Collection: "students", ID: "s9"}

	var snaps []docstore.Snapshot
	cancel := s.SubscribeDoc(ref, func(snap docstore.Snapshot) {
		snaps = append(snaps, snap)
	}, func(err error) {
		t.Fatalf("unexpected subscription error: %v", err)
	})
	defer cancel()

	if len(snaps) != 1 || snaps[0].Exists {
		t.Fatalf("initial snapshot = %+v, want non-existing", snaps)
	}

	s.Set(ctx, ref, student{Name: "Noor"})
	s.Delete(ctx, ref)

	if len(snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(snaps))
	}
	if !snaps[1].Exists || snaps[2].Exists {
		t.Errorf("existence sequence wrong: %v %v", snaps[1].Exists, snaps[2].Exists)
	}
}

func TestStore_CancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s)

	count := 0
	cancel := s.SubscribeQuery(docstore.NewQuery("students"), func(docstore.QuerySnapshot) {
		count++
	}, func(err error) {
		t.Fatalf("unexpected subscription error: %v", err)
	})

	cancel()
	cancel() // double-cancel must be safe
	s.Set(ctx, docstore.DocRef{Collection: "students", ID: "s4"}, student{Name: "Didi"})

	if count != 1 {
		t.Errorf("received %d snapshots after cancel, want only the initial 1", count)
	}
}

func TestStore_OfflineTagsSnapshots(t *testing.T) {
	s := New()
	seed(t, s)

	var last docstore.QuerySnapshot
	cancel := s.SubscribeQuery(docstore.NewQuery("students"), func(snap docstore.QuerySnapshot) {
		last = snap
	}, func(err error) {
		t.Fatalf("unexpected subscription error: %v", err)
	})
	defer cancel()

	if last.FromCache {
		t.Fatal("online snapshot tagged FromCache")
	}

	s.SetOffline(true)
	if !last.FromCache {
		t.Error("offline snapshot not tagged FromCache")
	}

	s.SetOffline(false)
	if last.FromCache {
		t.Error("snapshot still tagged FromCache after going online")
	}
}

func TestStore_AccessRuleRejectsSubscription(t *testing.T) {
	s := New(WithAccessRule(func(collection string) error {
		if collection == "teachers" {
			return docstore.ErrPermissionDenied
		}
		return nil
	}))

	var subErr error
	s.SubscribeQuery(docstore.NewQuery("teachers"), func(docstore.QuerySnapshot) {
		t.Fatal("onNext called for rejected subscription")
	}, func(err error) {
		subErr = err
	})

	if !errors.Is(subErr, docstore.ErrPermissionDenied) {
		t.Errorf("subscription error = %v, want ErrPermissionDenied", subErr)
	}
}

func TestStore_AddGeneratesIDs(t *testing.T) {
	ctx := context.Background()
	s := New()

	ref1, err := s.Add(ctx, "posts", map[string]any{"title": "a"})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	ref2, _ := s.Add(ctx, "posts", map[string]any{"title": "b"})

	if ref1.ID == "" || ref1.ID == ref2.ID {
		t.Errorf("generated ids not unique: %q, %q", ref1.ID, ref2.ID)
	}
	if ref1.Collection != "posts" {
		t.Errorf("ref collection = %q, want posts", ref1.Collection)
	}
}
