package livecache

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-livequery-cache/docstore"
)

// reconcileOffline combines a snapshot's cache-origin flag with the most
// recently known connectivity state into the single offline signal.
// Server-confirmed data is never offline, whatever connectivity claims.
func reconcileOffline(fromCache, connected bool) bool {
	return fromCache && !connected
}

// Decoder turns a document snapshot into a typed value.
type Decoder[T any] func(docstore.Snapshot) (T, error)

// DecodeJSON is the default Decoder: it unmarshals the document payload
// and then merges the document id into any `json:"id"` field of T, so
// entities carry their identity without the store duplicating it inside
// the payload. Custom decoders that only post-process the default shape
// can call it and adjust the result.
func DecodeJSON[T any](snap docstore.Snapshot) (T, error) {
	var v T
	if len(snap.Data) > 0 {
		if err := json.Unmarshal(snap.Data, &v); err != nil {
			return v, fmt.Errorf("livecache: decode %s/%s: %w", snap.Ref.Collection, snap.Ref.ID, err)
		}
	}
	if snap.Ref.ID != "" {
		idPayload, err := json.Marshal(struct {
			ID string `json:"id"`
		}{snap.Ref.ID})
		if err == nil {
			// Ignored on purpose: T may not be a struct or map, in which
			// case there is no id field to merge into.
			_ = json.Unmarshal(idPayload, &v)
		}
	}
	return v, nil
}

type config struct {
	logger zerolog.Logger
}

// Option configures a cache instance.
type Option func(*config)

// WithLogger attaches a logger for debug-level diagnostics (skipped
// documents, discarded stale snapshots). The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func newConfig(opts []Option) config {
	cfg := config{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
