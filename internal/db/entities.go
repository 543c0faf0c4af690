package db

import "time"

type UserScore struct {
	UserID    int64     `db:"user_id"`
	Points    int64     `db:"points"`
	UpdatedAt time.Time `db:"updated_at"`
}
