package db

import "context"

type Client interface {
	Close() error
	AddPoints(ctx context.Context, userID int64, points int64) (int64, error)
	GetPoints(ctx context.Context, userID int64) (int64, error)
	GetScore(ctx context.Context, userID int64) (*UserScore, error)
}
