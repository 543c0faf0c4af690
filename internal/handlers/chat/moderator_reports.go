package handlers

import (
	"context"
	"errors"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngwarden/internal/bot"
	apperrors "github.com/iamwavecut/ngwarden/internal/errors"
	"github.com/iamwavecut/ngwarden/internal/i18n"
	"github.com/iamwavecut/ngwarden/internal/moderation"
)

func (m *Moderator) reportCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	lang := m.s.GetLanguage(ctx, chat.ID, user)
	target := msg.ReplyToMessage
	if target == nil || target.From == nil || chat.IsPrivate() {
		m.reply(msg, i18n.Get("Use this command in reply to the offending message.", lang))
		return nil
	}
	entry := m.getLogEntry().WithFields(log.Fields{
		"method":      "reportCommand",
		"chat_id":     chat.ID,
		"reporter_id": user.ID,
		"target_id":   target.From.ID,
	})

	rec, created, err := m.reports.FileReport(ctx, moderation.FileReportRequest{
		ReporterID:      user.ID,
		TargetUserID:    target.From.ID,
		TargetMessageID: target.MessageID,
		ChatID:          chat.ID,
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrPolicyInput) {
			m.reply(msg, i18n.Get("Use this command in reply to the offending message.", lang))
			return nil
		}
		return err
	}
	if !created {
		m.reply(msg, i18n.Get("This message has already been reported.", lang))
		return nil
	}

	keyboard, err := reportKeyboard(rec.Key, lang)
	if err != nil {
		m.reports.Discard(rec.Key)
		return err
	}
	text := tool.ExecTemplate(i18n.Get("🚨 <b>Report!</b>\nFrom: {{ .reporter }}\nAgainst: {{ .target }} (ID: {{ .target_id }})\nChat: {{ .chat }}\nText: {{ .text }}", lang), map[string]any{
		"reporter":  mention(user),
		"target":    mention(target.From),
		"target_id": target.From.ID,
		"chat":      api.EscapeText(api.ModeHTML, chat.Title),
		"text":      api.EscapeText(api.ModeHTML, bot.ExtractContentFromMessage(target)),
	})

	delivered := 0
	for _, adminID := range m.config.AdminIDs {
		notice := api.NewMessage(adminID, text)
		notice.ParseMode = api.ModeHTML
		notice.ReplyMarkup = keyboard
		sent, err := m.client.Send(notice)
		if err != nil {
			entry.WithFields(log.Fields{"admin_id": adminID, "error": err.Error()}).Warn("cant deliver report")
			continue
		}
		if err := m.reports.AttachNotice(rec.Key, moderation.MessageRef{ChatID: adminID, MessageID: sent.MessageID}); err != nil {
			entry.WithField("error", err.Error()).Warn("cant attach report notice")
			continue
		}
		delivered++
	}

	if delivered == 0 {
		m.reports.Discard(rec.Key)
		m.send(chat.ID, i18n.Get("Failed to send the report (the admin may have closed private messages).", lang))
		return nil
	}
	entry.WithField("report_id", rec.ID).Info("report delivered")
	m.send(chat.ID, i18n.Get("Report sent to the admins.", lang))
	return nil
}

func reportKeyboard(key moderation.ReportKey, lang string) (api.InlineKeyboardMarkup, error) {
	token := func(o moderation.Outcome) (string, error) {
		return moderation.EncodeToken(moderation.Token{Outcome: o, Key: key})
	}
	mute, err := token(moderation.OutcomeMute30)
	if err != nil {
		return api.InlineKeyboardMarkup{}, err
	}
	ban, err := token(moderation.OutcomeBan)
	if err != nil {
		return api.InlineKeyboardMarkup{}, err
	}
	del, err := token(moderation.OutcomeDelete)
	if err != nil {
		return api.InlineKeyboardMarkup{}, err
	}
	ignore, err := token(moderation.OutcomeIgnored)
	if err != nil {
		return api.InlineKeyboardMarkup{}, err
	}
	return api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(i18n.Get("Mute 30m", lang), mute),
			api.NewInlineKeyboardButtonData(i18n.Get("Ban", lang), ban),
		),
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(i18n.Get("Delete message", lang), del),
			api.NewInlineKeyboardButtonData(i18n.Get("Ignore", lang), ignore),
		),
	), nil
}

func (m *Moderator) handleReportCallback(ctx context.Context, cb *api.CallbackQuery) error {
	if cb.From == nil || cb.Message == nil {
		return nil
	}
	lang := m.s.GetLanguage(ctx, cb.Message.Chat.ID, cb.From)
	entry := m.getLogEntry().WithFields(log.Fields{
		"method":      "handleReportCallback",
		"resolver_id": cb.From.ID,
		"data":        cb.Data,
	})
	notice := moderation.MessageRef{ChatID: cb.Message.Chat.ID, MessageID: cb.Message.MessageID}

	rec, err := m.reports.Resolve(ctx, moderation.ResolveRequest{
		Token:      cb.Data,
		ResolverID: cb.From.ID,
		Notice:     notice,
	})
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUnauthorized):
		m.answerCallback(cb, i18n.Get("Only admins can resolve reports.", lang))
		return nil
	case moderation.IsStale(err):
		m.answerCallback(cb, i18n.Get("This report is already resolved.", lang))
		m.dropButtons(notice)
		return nil
	case errors.Is(err, apperrors.ErrNotFound):
		m.answerCallback(cb, i18n.Get("Button data error.", lang))
		m.dropButtons(notice)
		return nil
	case errors.Is(err, apperrors.ErrPolicyInput):
		m.answerCallback(cb, i18n.Get("Button data error.", lang))
		return nil
	default:
		entry.WithField("error", err.Error()).Error("report resolution failed")
		m.answerCallback(cb, tool.ExecTemplate(i18n.Get("Action failed: {{ .error }}", lang), map[string]any{
			"error": err.Error(),
		}))
		return nil
	}

	decision := decisionLabel(rec.Outcome, lang)
	text := api.EscapeText(api.ModeHTML, cb.Message.Text) + "\n\n" + tool.ExecTemplate(i18n.Get("✅ <b>Decision: {{ .decision }}</b>", lang), map[string]any{
		"decision": decision,
	})
	edit := api.NewEditMessageText(notice.ChatID, notice.MessageID, text)
	edit.ParseMode = api.ModeHTML
	if _, err := m.client.Send(edit); err != nil {
		entry.WithField("error", err.Error()).Warn("cant update report notice")
	}

	if rec.Outcome == moderation.OutcomeIgnored {
		m.answerCallback(cb, i18n.Get("Report ignored.", lang))
		return nil
	}
	m.answerCallback(cb, i18n.Get("Done.", lang))

	var chatNotice string
	switch rec.Outcome {
	case moderation.OutcomeMute30:
		chatNotice = i18n.Get("🔇 User {{ .user_id }} is muted by report.", lang)
	case moderation.OutcomeBan:
		chatNotice = i18n.Get("🚫 User {{ .user_id }} is banned by report.", lang)
	default:
		return nil
	}
	text = tool.ExecTemplate(chatNotice, map[string]any{"user_id": rec.Key.TargetUserID})
	if _, err := m.gateway.Notify(ctx, rec.Key.ChatID, text); err != nil {
		entry.WithField("error", err.Error()).Warn("cant notify chat about report decision")
	}
	return nil
}

func decisionLabel(o moderation.Outcome, lang string) string {
	switch o {
	case moderation.OutcomeMute30:
		return i18n.Get("Mute 30 min", lang)
	case moderation.OutcomeBan:
		return i18n.Get("Ban", lang)
	case moderation.OutcomeDelete:
		return i18n.Get("Message deleted", lang)
	}
	return i18n.Get("Ignore", lang)
}

func (m *Moderator) answerCallback(cb *api.CallbackQuery, text string) {
	if _, err := m.client.Request(api.NewCallback(cb.ID, text)); err != nil {
		m.getLogEntry().WithField("error", err.Error()).Warn("cant answer callback")
	}
}

func (m *Moderator) dropButtons(notice moderation.MessageRef) {
	edit := api.NewEditMessageReplyMarkup(notice.ChatID, notice.MessageID, api.InlineKeyboardMarkup{
		InlineKeyboard: [][]api.InlineKeyboardButton{},
	})
	if _, err := m.client.Request(edit); err != nil {
		m.getLogEntry().WithField("error", err.Error()).Debug("cant drop report buttons")
	}
}
