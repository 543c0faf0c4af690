package access

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/iamwavecut/ngwarden/internal/errors"
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return Clock{}, fmt.Errorf("%w: clock %q is not HH:MM", apperrors.ErrInvalidInput, s)
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("%w: clock %q is out of range", apperrors.ErrInvalidInput, s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

// cronSpec is a daily five-field cron expression firing at c.
func (c Clock) cronSpec() string {
	return fmt.Sprintf("%d %d * * *", c.Minute, c.Hour)
}

func clockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// Window is a daily interval [Start, End) that may wrap around midnight.
// Start == End is an empty window.
type Window struct {
	Start Clock
	End   Clock
}

// Contains reports whether the wall-clock time of t falls inside the window.
// t must already be in the scheduler location.
func (w Window) Contains(t time.Time) bool {
	now, start, end := clockOf(t).minutes(), w.Start.minutes(), w.End.minutes()
	switch {
	case start == end:
		return false
	case start < end:
		return now >= start && now < end
	default:
		return now >= start || now < end
	}
}
