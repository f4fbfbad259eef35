package profilecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-livequery-cache/kvstore"
)

const (
	orgKeyPrefix = "institute_data_"

	// DefaultOrgTTL is how long a stored organization record stays fresh.
	DefaultOrgTTL = 24 * time.Hour
)

// OrgRequest identifies whose organization data to fetch. Teacher requests
// may resolve a different payload shape than student requests for the same
// organization, but they share one storage record per org id.
type OrgRequest struct {
	OrgID   string
	UserID  string
	Teacher bool
}

// OrgResolver fetches the authoritative organization payload.
type OrgResolver interface {
	ResolveOrg(ctx context.Context, req OrgRequest) (json.RawMessage, error)
}

// OrgResolverFunc adapts a function to OrgResolver.
type OrgResolverFunc func(ctx context.Context, req OrgRequest) (json.RawMessage, error)

func (f OrgResolverFunc) ResolveOrg(ctx context.Context, req OrgRequest) (json.RawMessage, error) {
	return f(ctx, req)
}

// orgRecord is the stored envelope: the payload plus when it was cached,
// as epoch milliseconds.
type orgRecord struct {
	LastCached int64           `json:"lastCached"`
	Payload    json.RawMessage `json:"payload"`
}

// OrgOption configures an OrgCache.
type OrgOption func(*OrgCache)

// WithOrgTTL overrides the freshness window.
func WithOrgTTL(ttl time.Duration) OrgOption {
	return func(o *OrgCache) { o.ttl = ttl }
}

// WithOrgClock overrides the time source. Tests use this to sit exactly
// on the freshness boundary.
func WithOrgClock(now func() time.Time) OrgOption {
	return func(o *OrgCache) { o.now = now }
}

// WithOrgLogger attaches a logger; the default discards everything.
func WithOrgLogger(logger zerolog.Logger) OrgOption {
	return func(o *OrgCache) { o.logger = logger }
}

// OrgCache is a TTL-gated read-through cache for organization data. A
// stored record younger than the TTL is served without touching the
// resolver; anything older, missing, or unreadable triggers a resolve
// whose result is persisted before it is returned.
type OrgCache struct {
	kv       kvstore.Store
	resolver OrgResolver
	logger   zerolog.Logger
	ttl      time.Duration
	now      func() time.Time
}

// NewOrgCache returns an OrgCache with the default 24h freshness window.
func NewOrgCache(kv kvstore.Store, resolver OrgResolver, opts ...OrgOption) *OrgCache {
	o := &OrgCache{
		kv:       kv,
		resolver: resolver,
		logger:   zerolog.Nop(),
		ttl:      DefaultOrgTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Get returns the organization payload for req, from storage when fresh
// and from the resolver otherwise. A record is fresh while strictly less
// than the TTL has elapsed since it was cached.
func (o *OrgCache) Get(ctx context.Context, req OrgRequest) (json.RawMessage, error) {
	key := orgKeyPrefix + req.OrgID

	if payload, ok := o.lookup(ctx, key); ok {
		return payload, nil
	}

	payload, err := o.resolver.ResolveOrg(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("profilecache: resolve org %s: %w", req.OrgID, err)
	}

	record := orgRecord{
		LastCached: o.now().UnixMilli(),
		Payload:    payload,
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("profilecache: encode org record %s: %w", req.OrgID, err)
	}
	if err := o.kv.SetItem(ctx, key, string(encoded)); err != nil {
		return nil, fmt.Errorf("profilecache: persist org record %s: %w", req.OrgID, err)
	}

	return payload, nil
}

// Invalidate removes the stored record so the next Get resolves again.
func (o *OrgCache) Invalidate(ctx context.Context, orgID string) error {
	if err := o.kv.RemoveItem(ctx, orgKeyPrefix+orgID); err != nil {
		return fmt.Errorf("profilecache: invalidate org record %s: %w", orgID, err)
	}
	return nil
}

// lookup reads a stored record and reports whether it is usable. Corrupt
// or stale records count as misses.
func (o *OrgCache) lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	raw, err := o.kv.GetItem(ctx, key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			o.logger.Debug().Str("key", key).Err(err).Msg("org cache read failed, treating as miss")
		}
		return nil, false
	}

	var record orgRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		o.logger.Debug().Str("key", key).Err(err).Msg("org cache corrupt, treating as miss")
		return nil, false
	}

	age := o.now().Sub(time.UnixMilli(record.LastCached))
	if age >= o.ttl {
		return nil, false
	}
	return record.Payload, true
}

// OrgData decodes the payload for req into T.
func OrgData[T any](ctx context.Context, o *OrgCache, req OrgRequest) (T, error) {
	var out T
	payload, err := o.Get(ctx, req)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("profilecache: decode org payload %s: %w", req.OrgID, err)
	}
	return out, nil
}
