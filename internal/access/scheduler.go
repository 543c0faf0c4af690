// Package access opens and closes the managed chat on a daily schedule.
package access

import (
	"context"
	"sync"
	"time"

	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngwarden/internal/config"
	"github.com/iamwavecut/ngwarden/internal/i18n"
	"github.com/iamwavecut/ngwarden/internal/observability"
)

type State int

const (
	StateUnknown State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type chatGateway interface {
	SetChatOpen(ctx context.Context, chatID int64, open bool) error
	Notify(ctx context.Context, chatID int64, text string) (int, error)
}

type Config struct {
	ChatID   int64
	Location *time.Location
	CloseAt  Clock
	OpenAt   Clock
	// Window is the closed interval used by startup reconciliation.
	Window   Window
	Language string
}

// ConfigFrom validates the schedule settings. The timezone is mandatory.
func ConfigFrom(cfg config.Schedule, lang string) (Config, error) {
	if cfg.Timezone == "" {
		return Config{}, errors.New("schedule timezone is required")
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load timezone %q", cfg.Timezone)
	}

	result := Config{ChatID: cfg.ChatID, Location: loc, Language: lang}
	for _, field := range []struct {
		raw string
		dst *Clock
	}{
		{cfg.CloseAt, &result.CloseAt},
		{cfg.OpenAt, &result.OpenAt},
		{cfg.WindowStart, &result.Window.Start},
		{cfg.WindowEnd, &result.Window.End},
	} {
		if *field.dst, err = ParseClock(field.raw); err != nil {
			return Config{}, err
		}
	}
	return result, nil
}

// Scheduler drives the open/closed state of one chat. The two daily triggers
// and the startup reconciliation never run concurrently.
type Scheduler struct {
	cfg     Config
	gateway chatGateway
	now     func() time.Time

	transitionMu sync.Mutex
	state        State

	runMutex  sync.Mutex
	started   bool
	runCancel context.CancelFunc
	cron      *cron.Cron
}

func NewScheduler(cfg Config, gateway chatGateway) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		cfg:     cfg,
		gateway: gateway,
		now:     time.Now,
	}
}

func (s *Scheduler) Enabled() bool {
	return s.cfg.ChatID != 0
}

func (s *Scheduler) State() State {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()
	return s.state
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.started {
		return nil
	}
	entry := s.getLogEntry()
	if !s.Enabled() {
		entry.Info("no chat configured, access schedule disabled")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)

	cronLogger := cron.PrintfLogger(entry)
	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(s.cfg.CloseAt.cronSpec(), func() { _ = s.Close(runCtx) }); err != nil {
		cancel()
		return errors.Wrap(err, "schedule close")
	}
	if _, err := c.AddFunc(s.cfg.OpenAt.cronSpec(), func() { _ = s.Open(runCtx) }); err != nil {
		cancel()
		return errors.Wrap(err, "schedule open")
	}

	if err := s.Reconcile(runCtx); err != nil {
		entry.WithField("error", err.Error()).Warn("startup reconciliation failed")
	}

	c.Start()
	s.cron = c
	s.runCancel = cancel
	s.started = true
	entry.WithFields(log.Fields{
		"chat_id":  s.cfg.ChatID,
		"close_at": s.cfg.CloseAt.String(),
		"open_at":  s.cfg.OpenAt.String(),
		"timezone": s.cfg.Location.String(),
	}).Info("access schedule started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.runMutex.Lock()
	if !s.started {
		s.runMutex.Unlock()
		return nil
	}
	s.started = false
	c, cancel := s.cron, s.runCancel
	s.runMutex.Unlock()

	jobsDone := c.Stop()
	if cancel != nil {
		cancel()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-jobsDone.Done():
		return nil
	}
}

// Reconcile converges the chat to the state expected at the current local
// time. Inside the closed window the chat is closed; otherwise it is left as is.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	if !s.Enabled() {
		return nil
	}
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()

	local := s.now().In(s.cfg.Location)
	inWindow := s.cfg.Window.Contains(local)
	s.getLogEntry().WithFields(log.Fields{
		"local_time": local.Format("15:04"),
		"in_window":  inWindow,
	}).Debug("reconciling access state")
	if !inWindow {
		return nil
	}
	return s.transitionLocked(ctx, false)
}

func (s *Scheduler) Close(ctx context.Context) error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()
	return s.transitionLocked(ctx, false)
}

func (s *Scheduler) Open(ctx context.Context) error {
	s.transitionMu.Lock()
	defer s.transitionMu.Unlock()
	return s.transitionLocked(ctx, true)
}

// transitionLocked changes chat permissions, then notifies the chat. A failed
// notification does not undo or fail the transition.
func (s *Scheduler) transitionLocked(ctx context.Context, open bool) error {
	target := StateClosed
	if open {
		target = StateOpen
	}
	entry := s.getLogEntry().WithFields(log.Fields{
		"chat_id": s.cfg.ChatID,
		"state":   target.String(),
	})

	err := s.gateway.SetChatOpen(ctx, s.cfg.ChatID, open)
	observability.RecordAccessTransition(target.String(), err)
	if err != nil {
		entry.WithField("error", err.Error()).Error("cant change chat access")
		return err
	}
	s.state = target

	if _, err := s.gateway.Notify(ctx, s.cfg.ChatID, s.notice(open)); err != nil {
		entry.WithField("error", err.Error()).Warn("cant notify chat about access change")
	}
	entry.Info("chat access changed")
	return nil
}

func (s *Scheduler) notice(open bool) string {
	if open {
		return i18n.Get("☀️ <b>Chat is open!</b> Good morning.", s.cfg.Language)
	}
	return tool.ExecTemplate(i18n.Get("🌙 <b>Chat is closed!</b> Until {{ .until }}.", s.cfg.Language), map[string]any{
		"until": s.cfg.OpenAt.String(),
	})
}

func (s *Scheduler) getLogEntry() *log.Entry {
	return log.WithField("object", "AccessScheduler")
}
