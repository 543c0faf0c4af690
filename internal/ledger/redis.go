package ledger

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

var redisScorePrefix = "score/"

type Redis struct {
	Client *redis.Client
}

func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Redis{Client: rdb}, nil
}

func (r *Redis) AddPoints(ctx context.Context, userID int64, points int64) (int64, error) {
	return r.Client.IncrBy(ctx, scoreKey(userID), points).Result()
}

func (r *Redis) GetPoints(ctx context.Context, userID int64) (int64, error) {
	total, err := r.Client.Get(ctx, scoreKey(userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *Redis) Close() error {
	return r.Client.Close()
}

func scoreKey(userID int64) string {
	return redisScorePrefix + strconv.FormatInt(userID, 10)
}
