// Package cache holds the last fetched backend payloads so that conditional
// requests can be sent and a read can fall back to stale data when the
// backend is unreachable.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Entry holds a response body with its HTTP cache metadata.
type Entry struct {
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Body         []byte    `json:"body"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is a keyed payload cache. Generations are per-scope counters (one
// per doctor) that are folded into keys; bumping one makes every key built
// from the previous generation unreachable.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, e Entry) error
	Generation(ctx context.Context, scope string) (int64, error)
	Bump(ctx context.Context, scope string) (int64, error)
	Close() error
}

const prefix = "klinikcal:"

// WeekKey is the key of one doctor's appointment week at generation gen.
func WeekKey(doctorID string, weekStart time.Time, gen int64) string {
	return fmt.Sprintf("%sweek:%s:%s:g%d", prefix, doctorID, weekStart.Format(time.DateOnly), gen)
}

// ServicesKey is the key of the service catalog.
func ServicesKey() string {
	return prefix + "services"
}

func genKey(scope string) string {
	return prefix + "gen:" + scope
}
