package moderation

import (
	"context"
	"sync"
	"time"
)

type gatewayCall struct {
	Op        string
	ChatID    int64
	UserID    int64
	MessageID int
	Duration  time.Duration
	Open      bool
	Text      string
}

type stubGateway struct {
	mu    sync.Mutex
	calls []gatewayCall
	// fail is consulted per call; a non-nil return fails that call.
	fail   func(op string) error
	nextID int
}

func (g *stubGateway) record(c gatewayCall) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, c)
	if g.fail != nil {
		return g.fail(c.Op)
	}
	return nil
}

func (g *stubGateway) Calls() []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gatewayCall(nil), g.calls...)
}

func (g *stubGateway) setFail(fn func(op string) error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = fn
}

func (g *stubGateway) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	return g.record(gatewayCall{Op: "delete", ChatID: chatID, MessageID: messageID})
}

func (g *stubGateway) Restrict(_ context.Context, chatID, userID int64, d time.Duration) error {
	return g.record(gatewayCall{Op: "restrict", ChatID: chatID, UserID: userID, Duration: d})
}

func (g *stubGateway) Ban(_ context.Context, chatID, userID int64) error {
	return g.record(gatewayCall{Op: "ban", ChatID: chatID, UserID: userID})
}

func (g *stubGateway) SetChatOpen(_ context.Context, chatID int64, open bool) error {
	return g.record(gatewayCall{Op: "set_open", ChatID: chatID, Open: open})
}

func (g *stubGateway) Notify(_ context.Context, chatID int64, text string) (int, error) {
	if err := g.record(gatewayCall{Op: "notify", ChatID: chatID, Text: text}); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	return g.nextID, nil
}
