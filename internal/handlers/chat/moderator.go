package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngwarden/internal/bot"
	"github.com/iamwavecut/ngwarden/internal/moderation"
	"github.com/iamwavecut/ngwarden/internal/policy/permissions"
)

const defaultNoticeTTL = 10 * time.Second

type botAPI interface {
	Send(c api.Chattable) (api.Message, error)
	Request(c api.Chattable) (*api.APIResponse, error)
	GetChatMember(config api.GetChatMemberConfig) (api.ChatMember, error)
}

type violationHandler interface {
	HandleViolation(ctx context.Context, v moderation.Violation) (moderation.Escalation, error)
}

type reportWorkflow interface {
	FileReport(ctx context.Context, req moderation.FileReportRequest) (moderation.ReportRecord, bool, error)
	AttachNotice(key moderation.ReportKey, notice moderation.MessageRef) error
	Resolve(ctx context.Context, req moderation.ResolveRequest) (moderation.ReportRecord, error)
	Discard(key moderation.ReportKey)
}

type Config struct {
	AdminIDs []int64
	// NoticeTTL is how long violation notices stay in the chat.
	NoticeTTL time.Duration
}

// Moderator scans chat messages, serves admin commands and routes user reports.
type Moderator struct {
	s          bot.Service
	client     botAPI
	classifier moderation.Classifier
	engine     violationHandler
	reports    reportWorkflow
	gateway    moderation.Gateway
	config     Config

	mu         sync.Mutex
	started    bool
	runtimeCtx context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewModerator(
	s bot.Service,
	client botAPI,
	classifier moderation.Classifier,
	engine violationHandler,
	reports reportWorkflow,
	gateway moderation.Gateway,
	config Config,
) *Moderator {
	if config.NoticeTTL <= 0 {
		config.NoticeTTL = defaultNoticeTTL
	}
	m := &Moderator{
		s:          s,
		client:     client,
		classifier: classifier,
		engine:     engine,
		reports:    reports,
		gateway:    gateway,
		config:     config,
	}
	m.getLogEntry().Debug("created new moderator")
	return m
}

func (m *Moderator) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	if u.CallbackQuery != nil {
		if !moderation.IsReportToken(u.CallbackQuery.Data) {
			return true, nil
		}
		return false, m.handleReportCallback(ctx, u.CallbackQuery)
	}

	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	if msg == nil || chat == nil || user == nil {
		return true, nil
	}

	if u.Message != nil && msg.IsCommand() {
		handled, err := m.handleCommand(ctx, msg, chat, user)
		if handled {
			return false, err
		}
	}
	return true, m.handleMessage(ctx, msg, chat, user)
}

func (m *Moderator) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}
	m.runtimeCtx, m.cancel = context.WithCancel(ctx)
	m.started = true
	return nil
}

func (m *Moderator) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (m *Moderator) scheduleAfter(delay time.Duration, task func(ctx context.Context)) {
	runCtx := m.getRuntimeContext()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-runCtx.Done():
			return
		case <-timer.C:
			task(runCtx)
		}
	}()
}

func (m *Moderator) getRuntimeContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.runtimeCtx != nil {
		return m.runtimeCtx
	}
	return context.Background()
}

// isModerator accepts configured admins and chat admins allowed to restrict members.
func (m *Moderator) isModerator(ctx context.Context, chat *api.Chat, userID int64) bool {
	if m.s.IsAdmin(userID) {
		return true
	}
	if chat == nil || chat.IsPrivate() || ctx.Err() != nil {
		return false
	}
	member, err := m.client.GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{ChatID: chat.ID},
			UserID:     userID,
		},
	})
	if err != nil {
		m.getLogEntry().WithFields(log.Fields{
			"chat_id": chat.ID,
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("cant get chat member")
		return false
	}
	return permissions.CanModerate(&member)
}

func (m *Moderator) send(chatID int64, text string) {
	msg := api.NewMessage(chatID, text)
	msg.ParseMode = api.ModeHTML
	if _, err := m.client.Send(msg); err != nil {
		m.getLogEntry().WithField("error", err.Error()).Warn("cant send message")
	}
}

func (m *Moderator) reply(to *api.Message, text string) {
	msg := api.NewMessage(to.Chat.ID, text)
	msg.ParseMode = api.ModeHTML
	msg.ReplyParameters.MessageID = to.MessageID
	msg.ReplyParameters.ChatID = to.Chat.ID
	msg.ReplyParameters.AllowSendingWithoutReply = true
	msg.MessageThreadID = to.MessageThreadID
	if _, err := m.client.Send(msg); err != nil {
		m.getLogEntry().WithField("error", err.Error()).Warn("cant send reply")
	}
}

func (m *Moderator) getLogEntry() *log.Entry {
	return log.WithField("object", "Moderator")
}

func mention(user *api.User) string {
	if user == nil {
		return ""
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, user.ID, api.EscapeText(api.ModeHTML, bot.GetFullName(user)))
}
