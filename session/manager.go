package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-livequery-cache/connectivity"
	"github.com/goliatone/go-livequery-cache/docstore"
	"github.com/goliatone/go-livequery-cache/kvstore"
	"github.com/goliatone/go-livequery-cache/livecache"
	"github.com/goliatone/go-livequery-cache/profilecache"
)

const activeAccountKeyPrefix = "active_account_for_"

// ErrUnknownAccount is returned by Select for an id that is in neither
// role-scoped list.
var ErrUnknownAccount = errors.New("session: unknown account id")

// Contact is the signed-in user's verified reachable identity, used to
// find the profiles linked to them.
type Contact struct {
	Email         string
	EmailVerified bool
	PhoneNumber   string
}

// StudentsQuery builds the student-scoped account query for a contact.
// Phone number is preferred; a verified email is the fallback. With
// neither there is nothing to match on and the result is nil.
func StudentsQuery(c Contact) *docstore.Query {
	return accountQuery("students", c)
}

// TeachersQuery builds the teacher-scoped account query for a contact.
func TeachersQuery(c Contact) *docstore.Query {
	return accountQuery("teachers", c)
}

func accountQuery(collection string, c Contact) *docstore.Query {
	switch {
	case c.PhoneNumber != "":
		q := docstore.NewQuery(collection).Where("phoneNumber", docstore.OpEqual, c.PhoneNumber)
		return &q
	case c.Email != "" && c.EmailVerified:
		q := docstore.NewQuery(collection).Where("email", docstore.OpEqual, c.Email)
		return &q
	default:
		return nil
	}
}

// View is the visible session state.
type View struct {
	Loading      bool
	LoadingError bool
	Offline      bool
	Active       *profilecache.Profile
	Students     []profilecache.Profile
	Teachers     []profilecache.Profile
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Manager runs the two role-scoped account queries for one signed-in
// user and maintains the active account selection across restarts.
//
// The selection rules: the durably cached id wins when it still matches
// a live profile (students checked before teachers); otherwise the first
// student, else the first teacher, and that fallback is persisted before
// it becomes visible. Select switches explicitly and also persists
// before notifying.
type Manager struct {
	kv        kvstore.Store
	logger    zerolog.Logger
	userID    string
	contact   Contact
	activeKey string
	composite *livecache.CompositeCache[profilecache.Profile, profilecache.Profile]

	mu           sync.Mutex
	ctx          context.Context
	activeID     string
	view         View
	observers    map[uint64]func(View)
	nextObserver uint64
	closed       bool
}

// NewManager wires a Manager for one user. Nothing happens until Start.
func NewManager(store docstore.Store, monitor connectivity.Monitor, kv kvstore.Store, userID string, contact Contact, opts ...Option) *Manager {
	m := &Manager{
		kv:        kv,
		logger:    zerolog.Nop(),
		userID:    userID,
		contact:   contact,
		activeKey: activeAccountKeyPrefix + userID,
		observers: make(map[uint64]func(View)),
		view: View{
			Loading:  true,
			Students: []profilecache.Profile{},
			Teachers: []profilecache.Profile{},
		},
	}
	for _, opt := range opts {
		opt(m)
	}

	m.composite = livecache.NewCompositeCache[profilecache.Profile, profilecache.Profile](store, monitor, livecache.WithLogger(m.logger))
	m.composite.SetDecoders(roleDecoder(profilecache.RoleStudent), roleDecoder(profilecache.RoleTeacher))
	return m
}

// roleDecoder decodes a profile document and stamps its explicit role,
// which the stored documents do not carry themselves.
func roleDecoder(role profilecache.Role) livecache.Decoder[profilecache.Profile] {
	return func(snap docstore.Snapshot) (profilecache.Profile, error) {
		p, err := livecache.DecodeJSON[profilecache.Profile](snap)
		if err != nil {
			return profilecache.Profile{}, err
		}
		p.Role = role
		return p, nil
	}
}

// Start loads the cached active account id and begins watching the two
// role-scoped queries. Selection settles asynchronously as snapshots
// arrive; progress is observable via Subscribe.
func (m *Manager) Start(ctx context.Context) {
	cached, err := m.kv.GetItem(ctx, m.activeKey)
	if err != nil && !errors.Is(err, kvstore.ErrNotFound) {
		m.logger.Debug().Str("user", m.userID).Err(err).Msg("cached active account read failed")
	}

	m.mu.Lock()
	m.ctx = ctx
	m.activeID = cached
	m.mu.Unlock()

	m.composite.Subscribe(m.onComposite)
	m.composite.Watch(StudentsQuery(m.contact), TeachersQuery(m.contact))
}

func (m *Manager) onComposite(result livecache.CompositeResult[profilecache.Profile, profilecache.Profile]) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	m.view.Loading = result.Loading
	m.view.LoadingError = result.LoadingError
	m.view.Offline = result.Offline
	m.view.Students = result.Docs1
	m.view.Teachers = result.Docs2

	active := m.findLocked(m.activeID)
	if active == nil && !result.Loading {
		if fallback := firstAvailableLocked(m.view); fallback != nil {
			// Persist before the fallback becomes visible, so a restart
			// lands on the same account.
			if err := m.kv.SetItem(m.ctx, m.activeKey, fallback.ID); err != nil {
				m.logger.Debug().Str("user", m.userID).Err(err).Msg("persisting fallback account failed")
			}
			m.activeID = fallback.ID
			active = fallback
		}
	}
	m.view.Active = active

	view, observers := m.snapshotLocked()
	m.mu.Unlock()
	notifyView(observers, view)
}

// Select switches the active account to id, persisting the choice before
// observers see it.
func (m *Manager) Select(ctx context.Context, id string) error {
	m.mu.Lock()

	profile := m.findLocked(id)
	if profile == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}

	if err := m.kv.SetItem(ctx, m.activeKey, id); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("session: persist active account for %s: %w", m.userID, err)
	}

	m.activeID = id
	m.view.Active = profile
	view, observers := m.snapshotLocked()
	m.mu.Unlock()
	notifyView(observers, view)
	return nil
}

// View returns the current session state.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// Subscribe registers fn to be called on every view change.
func (m *Manager) Subscribe(fn func(View)) connectivity.CancelFunc {
	m.mu.Lock()
	id := m.nextObserver
	m.nextObserver++
	if m.observers != nil {
		m.observers[id] = fn
	}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// Retry starts new lifetimes on both underlying subscriptions after an
// error, keeping the current lists visible while they reload.
func (m *Manager) Retry() {
	m.composite.Retry()
}

// Close tears down the underlying subscriptions and detaches observers.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.observers = nil
	m.mu.Unlock()

	m.composite.Close()
}

// findLocked resolves id against the current lists, students first.
func (m *Manager) findLocked(id string) *profilecache.Profile {
	if id == "" {
		return nil
	}
	for i := range m.view.Students {
		if m.view.Students[i].ID == id {
			return &m.view.Students[i]
		}
	}
	for i := range m.view.Teachers {
		if m.view.Teachers[i].ID == id {
			return &m.view.Teachers[i]
		}
	}
	return nil
}

func firstAvailableLocked(v View) *profilecache.Profile {
	if len(v.Students) > 0 {
		return &v.Students[0]
	}
	if len(v.Teachers) > 0 {
		return &v.Teachers[0]
	}
	return nil
}

func (m *Manager) snapshotLocked() (View, []func(View)) {
	observers := make([]func(View), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	return m.view, observers
}

func notifyView(observers []func(View), view View) {
	for _, fn := range observers {
		fn(view)
	}
}
