package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/iamwavecut/ngwarden/internal/db"
	apperrors "github.com/iamwavecut/ngwarden/internal/errors"
	"github.com/iamwavecut/ngwarden/internal/observability"
)

const (
	scoreMaxRetries = 3
	scoreRetryStep  = 300 * time.Millisecond
)

var _ db.Client = (*sqliteClient)(nil)

func (c *sqliteClient) AddPoints(ctx context.Context, userID int64, points int64) (int64, error) {
	query := `
		INSERT INTO user_scores (user_id, points, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			points = user_scores.points + excluded.points,
			updated_at = excluded.updated_at
		RETURNING points
	`
	var total int64
	err := c.withRetry(ctx, func() error {
		return c.db.GetContext(ctx, &total, query, userID, points)
	})
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "add %d points to user %d", points, userID)
	}
	return total, nil
}

func (c *sqliteClient) GetPoints(ctx context.Context, userID int64) (int64, error) {
	score, err := c.GetScore(ctx, userID)
	if err != nil {
		return 0, err
	}
	if score == nil {
		return 0, nil
	}
	return score.Points, nil
}

func (c *sqliteClient) GetScore(ctx context.Context, userID int64) (*db.UserScore, error) {
	var score db.UserScore
	err := c.withRetry(ctx, func() error {
		return c.db.GetContext(ctx, &score, `SELECT user_id, points, updated_at FROM user_scores WHERE user_id = ?`, userID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, pkgerrors.Wrapf(err, "get score of user %d", userID)
	}
	return &score, nil
}

// withRetry re-runs fn while sqlite reports lock contention.
func (c *sqliteClient) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= scoreMaxRetries; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		observability.RecordLedgerRetry("sqlite")
		log.WithFields(log.Fields{
			"attempt": attempt,
			"error":   err.Error(),
		}).Debug("sqlite busy, retrying")
		if attempt == scoreMaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * scoreRetryStep):
		}
	}
	return errors.Join(apperrors.ErrConcurrencyConflict, err)
}

func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
