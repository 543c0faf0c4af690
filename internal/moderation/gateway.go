package moderation

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/iamwavecut/ngwarden/internal/errors"
	"github.com/iamwavecut/ngwarden/internal/observability"
)

// Gateway is the enforcement surface of the messaging platform.
// Implementations own their call timeouts; every failure is a *errors.GatewayError.
type Gateway interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	// Restrict mutes the user for d; d == 0 lifts the restriction.
	Restrict(ctx context.Context, chatID, userID int64, d time.Duration) error
	Ban(ctx context.Context, chatID, userID int64) error
	SetChatOpen(ctx context.Context, chatID int64, open bool) error
	// Notify posts an HTML message to a chat or a user and returns its message ID.
	Notify(ctx context.Context, chatID int64, text string) (int, error)
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

func (r MessageRef) IsZero() bool {
	return r.MessageID == 0
}

type ActionKind string

const (
	ActionNone             ActionKind = "none"
	ActionTimedRestriction ActionKind = "restrict"
	ActionPermanentBan     ActionKind = "ban"
	ActionDeleteMessage    ActionKind = "delete"
)

// Action is an enforcement effect produced by policy and consumed by the gateway.
type Action struct {
	Kind     ActionKind
	Duration time.Duration
}

var NoAction = Action{Kind: ActionNone}

func TimedRestriction(d time.Duration) Action {
	return Action{Kind: ActionTimedRestriction, Duration: d}
}

func PermanentBan() Action {
	return Action{Kind: ActionPermanentBan}
}

func DeleteMessage() Action {
	return Action{Kind: ActionDeleteMessage}
}

func (a Action) String() string {
	if a.Kind == ActionTimedRestriction {
		return fmt.Sprintf("%s(%s)", a.Kind, a.Duration)
	}
	return string(a.Kind)
}

// Apply dispatches the action for userID / message in the target chat.
func Apply(ctx context.Context, gw Gateway, a Action, userID int64, msg MessageRef) error {
	var err error
	switch a.Kind {
	case ActionNone:
		return nil
	case ActionTimedRestriction:
		err = gw.Restrict(ctx, msg.ChatID, userID, a.Duration)
	case ActionPermanentBan:
		err = gw.Ban(ctx, msg.ChatID, userID)
	case ActionDeleteMessage:
		err = gw.DeleteMessage(ctx, msg.ChatID, msg.MessageID)
	default:
		return apperrors.PolicyInput("unknown action %q", a.Kind)
	}
	observability.RecordEnforcement(string(a.Kind), err)
	return apperrors.NewGatewayError(string(a.Kind), err)
}
