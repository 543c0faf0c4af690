// Package ledger keeps cumulative per-user infraction scores.
//
// Every backend adds points with a single atomic read-modify-write per user,
// so concurrent violations for the same user never lose an update.
package ledger

import (
	"context"
	"fmt"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Ledger interface {
	// AddPoints atomically adds points and returns the post-update total.
	AddPoints(ctx context.Context, userID int64, points int64) (int64, error)
	GetPoints(ctx context.Context, userID int64) (int64, error)
}

// Open returns the ledger for the named backend. The sqlite backend is the
// database client itself.
func Open(ctx context.Context, backend string, sqliteLedger Ledger, redisURL string) (Ledger, error) {
	switch backend {
	case "", BackendSQLite:
		if sqliteLedger == nil {
			return nil, fmt.Errorf("sqlite ledger is not configured")
		}
		return sqliteLedger, nil
	case BackendRedis:
		return NewRedis(ctx, redisURL)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
}
