package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngwarden/internal/i18n"
)

const (
	silentFlag         = "-s"
	manualMuteDuration = 30 * time.Minute
)

// handleCommand reports handled == false for commands it does not run, so
// their text still goes through moderation. The text of /report is always
// moderated before the report is filed.
func (m *Moderator) handleCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) (bool, error) {
	switch msg.Command() {
	case "mute", "unmute", "ban":
		if !m.isModerator(ctx, chat, user.ID) {
			return false, nil
		}
		return true, m.restrictionCommand(ctx, msg, chat, user)
	case "info":
		if !m.isModerator(ctx, chat, user.ID) {
			return false, nil
		}
		return true, m.infoCommand(ctx, msg, chat, user)
	case "report":
		if err := m.handleMessage(ctx, msg, chat, user); err != nil {
			return true, err
		}
		return true, m.reportCommand(ctx, msg, chat, user)
	}
	return false, nil
}

func (m *Moderator) restrictionCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	command := msg.Command()
	entry := m.getLogEntry().WithFields(log.Fields{
		"method":  "restrictionCommand",
		"command": command,
		"chat_id": chat.ID,
		"user_id": user.ID,
	})
	lang := m.s.GetLanguage(ctx, chat.ID, user)
	silent := strings.Contains(msg.CommandArguments(), silentFlag)

	target := msg.ReplyToMessage
	if target == nil || target.From == nil {
		if !silent {
			m.reply(msg, i18n.Get("Use this command in reply to a message.", lang))
		}
		return nil
	}

	var (
		err        error
		successTpl string
		failure    string
	)
	switch command {
	case "mute":
		err = m.gateway.Restrict(ctx, chat.ID, target.From.ID, manualMuteDuration)
		successTpl = i18n.Get("🔇 {{ .user }} is muted for 30 minutes.", lang)
		failure = i18n.Get("Mute failed.", lang)
	case "unmute":
		err = m.gateway.Restrict(ctx, chat.ID, target.From.ID, 0)
		successTpl = i18n.Get("🔊 {{ .user }} is unmuted.", lang)
		failure = i18n.Get("Unmute failed.", lang)
	case "ban":
		err = m.gateway.Ban(ctx, chat.ID, target.From.ID)
		successTpl = i18n.Get("🚫 {{ .user }} is banned.", lang)
		failure = i18n.Get("Ban failed.", lang)
	}

	if err != nil {
		entry.WithField("error", err.Error()).Error("manual action failed")
		if !silent {
			m.reply(msg, failure)
		}
		return nil
	}
	entry.WithField("target_id", target.From.ID).Info("manual action applied")
	if !silent {
		m.send(chat.ID, tool.ExecTemplate(successTpl, map[string]any{"user": mention(target.From)}))
	}
	return nil
}

func (m *Moderator) infoCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	lang := m.s.GetLanguage(ctx, chat.ID, user)
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(msg.CommandArguments()), "@"))
	if arg == "" {
		m.reply(msg, i18n.Get("Usage: /info USER_ID", lang))
		return nil
	}
	targetID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || targetID <= 0 {
		m.reply(msg, i18n.Get("⚠️ Please specify the user ID as a number.", lang))
		return nil
	}

	points, err := m.s.GetLedger().GetPoints(ctx, targetID)
	if err != nil {
		return errors.Wrap(err, "get points")
	}
	m.send(chat.ID, tool.ExecTemplate(i18n.Get("ℹ️ User info:\nID: {{ .user_id }}\nViolation points: {{ .points }}", lang), map[string]any{
		"user_id": targetID,
		"points":  points,
	}))
	return nil
}
