package moderation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/iamwavecut/ngwarden/internal/errors"
	"github.com/iamwavecut/ngwarden/internal/observability"
)

const (
	reportMuteDuration     = 30 * time.Minute
	reportJanitorInterval  = time.Hour
	defaultReportRetention = 24 * time.Hour
)

type FileReportRequest struct {
	ReporterID      int64
	TargetUserID    int64
	TargetMessageID int
	ChatID          int64
}

type ResolveRequest struct {
	Token      string
	ResolverID int64
	// Notice is the message the pressed button belongs to.
	Notice MessageRef
}

// Workflow turns user reports into pending decisions and resolves each at most once.
type Workflow struct {
	store      *reportStore
	gateway    Gateway
	isResolver func(userID int64) bool
	retention  time.Duration
	now        func() time.Time

	runMutex  sync.Mutex
	started   bool
	runCancel context.CancelFunc
	workersWg sync.WaitGroup
}

func NewWorkflow(gateway Gateway, isResolver func(userID int64) bool, retention time.Duration) *Workflow {
	if retention <= 0 {
		retention = defaultReportRetention
	}
	return &Workflow{
		store:      newReportStore(),
		gateway:    gateway,
		isResolver: isResolver,
		retention:  retention,
		now:        time.Now,
	}
}

func (w *Workflow) FileReport(ctx context.Context, req FileReportRequest) (ReportRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return ReportRecord{}, false, err
	}
	key := ReportKey{TargetUserID: req.TargetUserID, MessageID: req.TargetMessageID, ChatID: req.ChatID}
	if err := key.validate(); err != nil {
		return ReportRecord{}, false, err
	}

	rec, created := w.store.create(ReportRecord{
		ID:         uuid.New(),
		Key:        key,
		ReporterID: req.ReporterID,
		CreatedAt:  w.now(),
	})
	w.getLogEntry().WithFields(log.Fields{
		"report_id":   rec.ID,
		"reporter_id": req.ReporterID,
		"target_id":   key.TargetUserID,
		"chat_id":     key.ChatID,
		"created":     created,
	}).Info("report filed")
	return rec, created, nil
}

func (w *Workflow) AttachNotice(key ReportKey, notice MessageRef) error {
	return w.store.attachNotice(key, notice)
}

func (w *Workflow) Get(key ReportKey) (ReportRecord, bool) {
	return w.store.get(key)
}

// Discard forgets the record, e.g. when its hosting notice is deleted.
func (w *Workflow) Discard(key ReportKey) {
	w.store.discard(key)
}

// Resolve applies the outcome encoded in the token. A record that is already
// resolved, or being resolved concurrently, yields ErrStaleResolution and no
// side effect. A gateway failure leaves the record pending.
func (w *Workflow) Resolve(ctx context.Context, req ResolveRequest) (ReportRecord, error) {
	if w.isResolver == nil || !w.isResolver(req.ResolverID) {
		return ReportRecord{}, apperrors.ErrUnauthorized
	}
	token, err := ParseToken(req.Token)
	if err != nil {
		return ReportRecord{}, err
	}
	key, err := w.resolveKey(token, req.Notice)
	if err != nil {
		return ReportRecord{}, err
	}

	ctx, span := observability.Tracer().Start(ctx, "report.resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("report.outcome", string(token.Outcome)),
		attribute.Int64("report.target_user_id", key.TargetUserID),
		attribute.Int64("report.chat_id", key.ChatID),
	)

	entry := w.getLogEntry().WithFields(log.Fields{
		"outcome":     token.Outcome,
		"resolver_id": req.ResolverID,
		"target_id":   key.TargetUserID,
		"chat_id":     key.ChatID,
	})

	rec, err := w.store.claim(key)
	if err != nil {
		observability.RecordReportResolution(string(token.Outcome), err)
		entry.WithField("error", err.Error()).Info("resolution rejected")
		return rec, err
	}
	entry = entry.WithField("report_id", rec.ID)

	if err := Apply(ctx, w.gateway, actionForOutcome(token.Outcome), key.TargetUserID, key.Message()); err != nil {
		w.store.release(key)
		span.RecordError(err)
		span.SetStatus(codes.Error, "enforcement failed")
		observability.RecordReportResolution(string(token.Outcome), err)
		entry.WithField("error", err.Error()).Warn("resolution failed, report stays pending")
		return rec, err
	}

	rec, err = w.store.complete(key, token.Outcome, req.ResolverID, w.now())
	observability.RecordReportResolution(string(token.Outcome), err)
	if err != nil {
		return rec, err
	}
	entry.Info("report resolved")
	return rec, nil
}

func (w *Workflow) resolveKey(token Token, notice MessageRef) (ReportKey, error) {
	noticeKey, hasNotice := ReportKey{}, false
	if !notice.IsZero() {
		noticeKey, hasNotice = w.store.keyByNotice(notice)
	}
	if token.Outcome == OutcomeIgnored {
		if !hasNotice {
			return ReportKey{}, apperrors.ErrNotFound
		}
		return noticeKey, nil
	}
	if hasNotice && noticeKey != token.Key {
		return ReportKey{}, apperrors.PolicyInput("token does not match the report of this notice")
	}
	return token.Key, nil
}

func actionForOutcome(o Outcome) Action {
	switch o {
	case OutcomeMute30:
		return TimedRestriction(reportMuteDuration)
	case OutcomeBan:
		return PermanentBan()
	case OutcomeDelete:
		return DeleteMessage()
	}
	return NoAction
}

func (w *Workflow) Start(ctx context.Context) error {
	w.runMutex.Lock()
	defer w.runMutex.Unlock()
	if w.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.runCancel = cancel

	w.workersWg.Add(1)
	go func() {
		defer w.workersWg.Done()
		ticker := time.NewTicker(reportJanitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				w.purgeTombstones()
			}
		}
	}()

	w.started = true
	return nil
}

func (w *Workflow) Stop(ctx context.Context) error {
	w.runMutex.Lock()
	if !w.started {
		w.runMutex.Unlock()
		return nil
	}
	w.started = false
	cancel := w.runCancel
	w.runMutex.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.workersWg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (w *Workflow) purgeTombstones() int {
	purged := w.store.purgeResolved(w.now().Add(-w.retention))
	if purged > 0 {
		w.getLogEntry().WithField("count", purged).Debug("purged resolved reports")
	}
	return purged
}

// IsStale reports whether err rejects a replayed or concurrent resolution.
func IsStale(err error) bool {
	return errors.Is(err, apperrors.ErrStaleResolution)
}

func (w *Workflow) getLogEntry() *log.Entry {
	return log.WithField("object", "ReportWorkflow")
}
