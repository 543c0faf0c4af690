package ledger

import (
	"context"

	"github.com/puzpuzpuz/xsync/v3"
)

type Memory struct {
	scores *xsync.MapOf[int64, int64]
}

func NewMemory() *Memory {
	return &Memory{scores: xsync.NewMapOf[int64, int64]()}
}

func (m *Memory) AddPoints(ctx context.Context, userID int64, points int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	total, _ := m.scores.Compute(userID, func(old int64, _ bool) (int64, bool) {
		return old + points, false
	})
	return total, nil
}

func (m *Memory) GetPoints(ctx context.Context, userID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	total, _ := m.scores.Load(userID)
	return total, nil
}
