package profilecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-livequery-cache/kvstore"
)

const (
	profilesKeyPrefix = "accounts_for_"
	activeKeyPrefix   = "active_account_for_"
)

var (
	// ErrSuperseded is returned by Refresh when a newer refresh was issued
	// while this one was in flight. The newer refresh's result is the one
	// that gets persisted; the superseded result is discarded entirely.
	ErrSuperseded = errors.New("profilecache: refresh superseded")

	// ErrUnknownProfile is returned by SwitchTo for an id not present in
	// the current profile list.
	ErrUnknownProfile = errors.New("profilecache: unknown profile id")
)

// View is the visible state of a user's profile cache.
//
// LoadingError is only set when a refresh fails with nothing locally
// cached to fall back on; a failed refresh over a local hit degrades
// gracefully and keeps showing the cached list.
type View struct {
	Loading       bool
	LoadingError  bool
	Profiles      []Profile
	ActiveProfile *Profile
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// Cache is the durable selected-profile cache: per user it remembers the
// linked profile list and which profile is active, combining an
// optimistic local echo with a remote refresh.
//
// Storage keys are partitioned per user id so switching between linked
// accounts on one device never leaks data across users.
type Cache struct {
	kv       kvstore.Store
	resolver Resolver
	logger   zerolog.Logger

	mu    sync.Mutex
	users map[string]*UserCache
}

// New returns a Cache over the given persistence and resolver.
func New(kv kvstore.Store, resolver Resolver, opts ...Option) *Cache {
	c := &Cache{
		kv:       kv,
		resolver: resolver,
		logger:   zerolog.Nop(),
		users:    make(map[string]*UserCache),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForUser returns the per-user cache handle, creating it on first use.
func (c *Cache) ForUser(userID string) *UserCache {
	c.mu.Lock()
	defer c.mu.Unlock()

	if u, ok := c.users[userID]; ok {
		return u
	}
	u := &UserCache{
		cache:       c,
		userID:      userID,
		profilesKey: profilesKeyPrefix + userID,
		activeKey:   activeKeyPrefix + userID,
		observers:   make(map[uint64]func(View)),
	}
	c.users[userID] = u
	return u
}

// UserCache tracks one user's profile list and active selection.
type UserCache struct {
	cache       *Cache
	userID      string
	profilesKey string
	activeKey   string

	mu           sync.Mutex
	localHit     bool
	issueSeq     uint64
	view         View
	observers    map[uint64]func(View)
	nextObserver uint64
}

// Read loads the locally cached record, makes it visible immediately on
// a hit, and starts a background refresh against the resolver. The local
// phase completes before Read returns; the refresh settles asynchronously
// and is observable via Subscribe. Calling Read again restarts the same
// sequence.
//
// A stored value that fails to parse is treated as a cache miss, never
// an error.
func (u *UserCache) Read(ctx context.Context) {
	u.mu.Lock()
	u.view.Loading = true
	u.view.LoadingError = false
	u.mu.Unlock()

	profiles, activeID, hit := u.loadLocal(ctx)

	u.mu.Lock()
	u.localHit = hit
	if hit {
		u.view.Profiles = profiles
		u.view.ActiveProfile = findProfile(profiles, activeID)
		// Locally cached data is usable right away; the refresh continues
		// in the background.
		u.view.Loading = false
	}
	view, observers := u.snapshotLocked()
	u.mu.Unlock()

	notifyView(observers, view)

	go func() {
		if err := u.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
			u.cache.logger.Debug().Str("user", u.userID).Err(err).Msg("background profile refresh failed")
		}
	}()
}

// loadLocal reads the stored record. Corrupt or unreadable values count
// as a miss.
func (u *UserCache) loadLocal(ctx context.Context) ([]Profile, string, bool) {
	raw, err := u.cache.kv.GetItem(ctx, u.profilesKey)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			u.cache.logger.Debug().Str("user", u.userID).Err(err).Msg("profile cache read failed, treating as miss")
		}
		return nil, "", false
	}

	var profiles []Profile
	if err := json.Unmarshal([]byte(raw), &profiles); err != nil {
		u.cache.logger.Debug().Str("user", u.userID).Err(err).Msg("profile cache corrupt, treating as miss")
		return nil, "", false
	}

	activeID, err := u.cache.kv.GetItem(ctx, u.activeKey)
	if err != nil {
		activeID = ""
	}
	return profiles, activeID, true
}

// Refresh resolves the server's profile list and reconciles it with the
// local state. The server list replaces the visible list; the active id
// is kept if still present, otherwise the first server profile becomes
// active and that choice is persisted. Everything is persisted before the
// new view becomes visible, so a process restart mid-refresh cannot leave
// the view and storage disagreeing.
//
// When refreshes overlap, the last one issued wins: earlier completions
// return ErrSuperseded and change nothing.
func (u *UserCache) Refresh(ctx context.Context) error {
	u.mu.Lock()
	u.issueSeq++
	seq := u.issueSeq
	u.mu.Unlock()

	profiles, resolveErr := u.cache.resolver.ResolveProfiles(ctx, u.userID)

	u.mu.Lock()

	if seq != u.issueSeq {
		u.mu.Unlock()
		u.cache.logger.Debug().Str("user", u.userID).Msg("discarding superseded refresh result")
		return ErrSuperseded
	}

	if resolveErr != nil {
		u.view.Loading = false
		if !u.localHit {
			// Nothing local to fall back on: the failure is terminal and
			// visible. With a local hit the cached list stays up instead.
			u.view.LoadingError = true
		}
		view, observers := u.snapshotLocked()
		u.mu.Unlock()
		notifyView(observers, view)
		return fmt.Errorf("profilecache: resolve %s: %w", u.userID, resolveErr)
	}

	previousActive := ""
	if u.view.ActiveProfile != nil {
		previousActive = u.view.ActiveProfile.ID
	}
	if previousActive == "" {
		// A refresh can run before Read has loaded the stored selection;
		// the durable choice still wins over the first-profile default.
		if stored, err := u.cache.kv.GetItem(ctx, u.activeKey); err == nil {
			previousActive = stored
		}
	}

	active := findProfile(profiles, previousActive)
	activeChanged := false
	if active == nil && len(profiles) > 0 {
		active = &profiles[0]
		activeChanged = true
	}

	// Persisting happens under the lock so an overlapping refresh cannot
	// interleave its writes with ours.
	if err := u.persistLocked(ctx, profiles, active, activeChanged); err != nil {
		u.view.Loading = false
		u.mu.Unlock()
		return err
	}

	u.localHit = true
	u.view.Loading = false
	u.view.LoadingError = false
	u.view.Profiles = profiles
	u.view.ActiveProfile = active

	view, observers := u.snapshotLocked()
	u.mu.Unlock()
	notifyView(observers, view)
	return nil
}

func (u *UserCache) persistLocked(ctx context.Context, profiles []Profile, active *Profile, activeChanged bool) error {
	encoded, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("profilecache: encode profiles for %s: %w", u.userID, err)
	}
	if err := u.cache.kv.SetItem(ctx, u.profilesKey, string(encoded)); err != nil {
		return fmt.Errorf("profilecache: persist profiles for %s: %w", u.userID, err)
	}
	if activeChanged && active != nil {
		if err := u.cache.kv.SetItem(ctx, u.activeKey, active.ID); err != nil {
			return fmt.Errorf("profilecache: persist active profile for %s: %w", u.userID, err)
		}
	}
	return nil
}

// SwitchTo makes the profile with the given id active. The selection is
// persisted before the new view is visible to observers.
func (u *UserCache) SwitchTo(ctx context.Context, id string) error {
	u.mu.Lock()

	profile := findProfile(u.view.Profiles, id)
	if profile == nil {
		u.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownProfile, id)
	}

	if err := u.cache.kv.SetItem(ctx, u.activeKey, id); err != nil {
		u.mu.Unlock()
		return fmt.Errorf("profilecache: persist active profile for %s: %w", u.userID, err)
	}

	u.view.ActiveProfile = profile
	view, observers := u.snapshotLocked()
	u.mu.Unlock()
	notifyView(observers, view)
	return nil
}

// Clear removes both per-user keys and resets the view. Safe to call
// repeatedly and for users with nothing cached.
func (u *UserCache) Clear(ctx context.Context) error {
	u.mu.Lock()

	if err := u.cache.kv.RemoveItem(ctx, u.profilesKey); err != nil {
		u.mu.Unlock()
		return fmt.Errorf("profilecache: clear profiles for %s: %w", u.userID, err)
	}
	if err := u.cache.kv.RemoveItem(ctx, u.activeKey); err != nil {
		u.mu.Unlock()
		return fmt.Errorf("profilecache: clear active profile for %s: %w", u.userID, err)
	}

	u.localHit = false
	u.view = View{}
	view, observers := u.snapshotLocked()
	u.mu.Unlock()
	notifyView(observers, view)
	return nil
}

// View returns the current visible state.
func (u *UserCache) View() View {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.view
}

// Subscribe registers fn to be called on every view change.
func (u *UserCache) Subscribe(fn func(View)) func() {
	u.mu.Lock()
	id := u.nextObserver
	u.nextObserver++
	u.observers[id] = fn
	u.mu.Unlock()

	return func() {
		u.mu.Lock()
		delete(u.observers, id)
		u.mu.Unlock()
	}
}

func (u *UserCache) snapshotLocked() (View, []func(View)) {
	observers := make([]func(View), 0, len(u.observers))
	for _, fn := range u.observers {
		observers = append(observers, fn)
	}
	return u.view, observers
}

func notifyView(observers []func(View), view View) {
	for _, fn := range observers {
		fn(view)
	}
}

func findProfile(profiles []Profile, id string) *Profile {
	if id == "" {
		return nil
	}
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i]
		}
	}
	return nil
}
