package moderation

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/iamwavecut/ngwarden/internal/errors"
	"github.com/iamwavecut/ngwarden/internal/observability"
)

// Violation is a classified infraction of one message.
type Violation struct {
	Kind    ViolationKind
	Points  int64
	UserID  int64
	Message MessageRef
	At      time.Time
}

type Escalation struct {
	Score  int64
	Action Action
}

type scoreLedger interface {
	AddPoints(ctx context.Context, userID int64, points int64) (int64, error)
}

type threshold struct {
	minScore int64
	action   Action
}

// Highest bound first, the first satisfied row wins.
var escalationTable = []threshold{
	{minScore: 10, action: PermanentBan()},
	{minScore: 6, action: TimedRestriction(24 * time.Hour)},
	{minScore: 3, action: TimedRestriction(30 * time.Minute)},
}

func ActionForScore(score int64) Action {
	for _, row := range escalationTable {
		if score >= row.minScore {
			return row.action
		}
	}
	return NoAction
}

type Engine struct {
	ledger  scoreLedger
	gateway Gateway
}

func NewEngine(ledger scoreLedger, gateway Gateway) *Engine {
	return &Engine{ledger: ledger, gateway: gateway}
}

// HandleViolation records the violation points and enforces the action for the new score.
// The score update is never rolled back: a gateway failure is returned together with
// a valid Escalation.
func (e *Engine) HandleViolation(ctx context.Context, v Violation) (Escalation, error) {
	if v.Points <= 0 {
		return Escalation{}, apperrors.PolicyInput("violation points must be positive, got %d", v.Points)
	}
	if v.UserID == 0 {
		return Escalation{}, apperrors.PolicyInput("violation without subject user")
	}

	ctx, span := observability.Tracer().Start(ctx, "escalation.handle_violation")
	defer span.End()
	span.SetAttributes(
		attribute.String("violation.kind", string(v.Kind)),
		attribute.Int64("violation.points", v.Points),
		attribute.Int64("user.id", v.UserID),
	)

	entry := e.getLogEntry().WithFields(log.Fields{
		"user_id": v.UserID,
		"chat_id": v.Message.ChatID,
		"kind":    v.Kind,
	})

	score, err := e.ledger.AddPoints(ctx, v.UserID, v.Points)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger update failed")
		return Escalation{}, errors.Wrap(err, "update score")
	}
	observability.RecordViolation(string(v.Kind))

	result := Escalation{Score: score, Action: ActionForScore(score)}
	span.SetAttributes(attribute.Int64("score", score), attribute.String("action", result.Action.String()))
	entry = entry.WithFields(log.Fields{"score": score, "action": result.Action.String()})

	if err := Apply(ctx, e.gateway, result.Action, v.UserID, v.Message); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enforcement failed")
		entry.WithField("error", err.Error()).Warn("enforcement failed, score kept")
		return result, err
	}
	entry.Info("violation handled")
	return result, nil
}

func (e *Engine) getLogEntry() *log.Entry {
	return log.WithField("object", "EscalationEngine")
}
