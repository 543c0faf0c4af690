package handlers

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngwarden/internal/bot"
	apperrors "github.com/iamwavecut/ngwarden/internal/errors"
	"github.com/iamwavecut/ngwarden/internal/i18n"
	"github.com/iamwavecut/ngwarden/internal/moderation"
)

// handleMessage classifies a chat message. A violating message is deleted and
// scored; the deletion result never affects scoring.
func (m *Moderator) handleMessage(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	if chat.IsPrivate() || m.s.IsAdmin(user.ID) {
		return nil
	}
	if msg.SenderChat != nil && msg.SenderChat.ID == chat.ID {
		return nil
	}

	classification, ok := m.classifier.Classify(bot.ExtractContentFromMessage(msg))
	if !ok {
		return nil
	}

	entry := m.getLogEntry().WithFields(log.Fields{
		"method":  "handleMessage",
		"chat_id": chat.ID,
		"user_id": user.ID,
		"user":    bot.GetUN(user),
		"kind":    classification.Kind,
	})

	if err := m.gateway.DeleteMessage(ctx, chat.ID, msg.MessageID); err != nil {
		entry.WithField("error", err.Error()).Warn("cant delete violating message")
	}

	escalation, err := m.engine.HandleViolation(ctx, moderation.Violation{
		Kind:    classification.Kind,
		Points:  classification.Points,
		UserID:  user.ID,
		Message: moderation.MessageRef{ChatID: chat.ID, MessageID: msg.MessageID},
		At:      time.Unix(int64(msg.Date), 0),
	})
	enforced := err == nil
	if err != nil && !apperrors.IsGateway(err) {
		return errors.WithMessage(err, "handle violation")
	}

	lang := m.s.GetLanguage(ctx, chat.ID, user)
	notice := tool.ExecTemplate(i18n.Get("⚠️ <b>Violation!</b>\nUser: {{ .user }}\nReason: {{ .reason }}\nPoints: +{{ .points }} (total: {{ .total }})", lang), map[string]any{
		"user":   mention(user),
		"reason": violationReason(classification.Kind, lang),
		"points": classification.Points,
		"total":  escalation.Score,
	})
	noticeID, err := m.gateway.Notify(ctx, chat.ID, notice)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant send violation notice")
	} else {
		m.scheduleAfter(m.config.NoticeTTL, func(ctx context.Context) {
			if err := m.gateway.DeleteMessage(ctx, chat.ID, noticeID); err != nil {
				entry.WithField("error", err.Error()).Debug("cant delete violation notice")
			}
		})
	}

	if !enforced || escalation.Action.Kind == moderation.ActionNone {
		return nil
	}
	if _, err := m.gateway.Notify(ctx, chat.ID, punishmentNotice(escalation.Action, user, lang)); err != nil {
		entry.WithField("error", err.Error()).Warn("cant send punishment notice")
	}
	return nil
}

func violationReason(kind moderation.ViolationKind, lang string) string {
	switch kind {
	case moderation.KindBannedContent:
		return i18n.Get("Spam/flood (banned words)", lang)
	case moderation.KindDisallowedLink:
		return i18n.Get("Advertising (forbidden link)", lang)
	}
	return string(kind)
}

func punishmentNotice(action moderation.Action, user *api.User, lang string) string {
	var tpl string
	switch {
	case action.Kind == moderation.ActionPermanentBan:
		tpl = i18n.Get("🚫 User {{ .user }} is banned permanently (10+ points).", lang)
	case action.Duration >= 24*time.Hour:
		tpl = i18n.Get("🔇 User {{ .user }} is muted for 1 day (6+ points).", lang)
	default:
		tpl = i18n.Get("🔇 User {{ .user }} is muted for 30 minutes (3+ points).", lang)
	}
	return tool.ExecTemplate(tpl, map[string]any{"user": mention(user)})
}
