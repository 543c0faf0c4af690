package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamwavecut/ngwarden/internal/ledger"
	"github.com/iamwavecut/ngwarden/internal/moderation"
)

const (
	testChatID  = int64(-100)
	testAdminID = int64(1)
)

type fakeService struct {
	scores ledger.Ledger
	admins map[int64]bool
}

func (s *fakeService) GetLedger() ledger.Ledger { return s.scores }

func (s *fakeService) IsAdmin(userID int64) bool { return s.admins[userID] }

func (s *fakeService) GetLanguage(context.Context, int64, *api.User) string { return "en" }

type fakeClient struct {
	mu       sync.Mutex
	sent     []api.Chattable
	requests []api.Chattable
	nextID   int
	failTo   map[int64]bool
	member   api.ChatMember
}

func (c *fakeClient) Send(ch api.Chattable) (api.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg, ok := ch.(api.MessageConfig); ok && c.failTo[msg.ChatID] {
		return api.Message{}, errors.New("Forbidden: bot can't initiate conversation with a user")
	}
	c.sent = append(c.sent, ch)
	c.nextID++
	return api.Message{MessageID: c.nextID}, nil
}

func (c *fakeClient) Request(ch api.Chattable) (*api.APIResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, ch)
	return &api.APIResponse{Ok: true}, nil
}

func (c *fakeClient) GetChatMember(api.GetChatMemberConfig) (api.ChatMember, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.member, nil
}

func (c *fakeClient) messages() []api.MessageConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []api.MessageConfig
	for _, ch := range c.sent {
		if msg, ok := ch.(api.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (c *fakeClient) edits() []api.EditMessageTextConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []api.EditMessageTextConfig
	for _, ch := range c.sent {
		if edit, ok := ch.(api.EditMessageTextConfig); ok {
			out = append(out, edit)
		}
	}
	return out
}

func (c *fakeClient) callbackAnswers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, ch := range c.requests {
		if cb, ok := ch.(api.CallbackConfig); ok {
			out = append(out, cb.Text)
		}
	}
	return out
}

type gatewayCall struct {
	op        string
	chatID    int64
	userID    int64
	messageID int
	duration  time.Duration
	text      string
}

type fakeGateway struct {
	mu     sync.Mutex
	calls  []gatewayCall
	failOp map[string]bool
	nextID int
}

func (g *fakeGateway) record(c gatewayCall) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, c)
	if g.failOp[c.op] {
		return errors.New(c.op + " failed")
	}
	return nil
}

func (g *fakeGateway) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	return g.record(gatewayCall{op: "delete", chatID: chatID, messageID: messageID})
}

func (g *fakeGateway) Restrict(_ context.Context, chatID, userID int64, d time.Duration) error {
	return g.record(gatewayCall{op: "restrict", chatID: chatID, userID: userID, duration: d})
}

func (g *fakeGateway) Ban(_ context.Context, chatID, userID int64) error {
	return g.record(gatewayCall{op: "ban", chatID: chatID, userID: userID})
}

func (g *fakeGateway) SetChatOpen(_ context.Context, chatID int64, _ bool) error {
	return g.record(gatewayCall{op: "set_open", chatID: chatID})
}

func (g *fakeGateway) Notify(_ context.Context, chatID int64, text string) (int, error) {
	if err := g.record(gatewayCall{op: "notify", chatID: chatID, text: text}); err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	return 1000 + g.nextID, nil
}

func (g *fakeGateway) byOp(op string) []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []gatewayCall
	for _, c := range g.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

type fixture struct {
	moderator *Moderator
	client    *fakeClient
	gateway   *fakeGateway
	scores    *ledger.Memory
	workflow  *moderation.Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	scores := ledger.NewMemory()
	svc := &fakeService{scores: scores, admins: map[int64]bool{testAdminID: true}}
	client := &fakeClient{failTo: map[int64]bool{}, member: api.ChatMember{Status: "member"}}
	gw := &fakeGateway{failOp: map[string]bool{}}
	workflow := moderation.NewWorkflow(gw, svc.IsAdmin, 0)
	classifier := moderation.NewRuleClassifier(moderation.Rules{
		BannedWords:    []string{"casino"},
		AllowedDomains: []string{"youtube.com"},
	})
	m := NewModerator(svc, client, classifier, moderation.NewEngine(scores, gw), workflow, gw, Config{
		AdminIDs:  []int64{testAdminID},
		NoticeTTL: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() {
		_ = m.Stop(context.Background())
		cancel()
	})
	return &fixture{moderator: m, client: client, gateway: gw, scores: scores, workflow: workflow}
}

var groupChat = api.Chat{ID: testChatID, Type: "supergroup", Title: "Test chat"}

func messageUpdate(id int, from *api.User, text string) *api.Update {
	msg := &api.Message{
		MessageID: id,
		Date:      int(time.Now().Unix()),
		Chat:      groupChat,
		From:      from,
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		cmd := strings.SplitN(text, " ", 2)[0]
		msg.Entities = []api.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return &api.Update{UpdateID: id, Message: msg}
}

func (f *fixture) handle(t *testing.T, u *api.Update) bool {
	t.Helper()
	var chat *api.Chat
	var user *api.User
	switch {
	case u.Message != nil:
		chat, user = &u.Message.Chat, u.Message.From
	case u.CallbackQuery != nil:
		chat, user = &u.CallbackQuery.Message.Chat, u.CallbackQuery.From
	}
	proceed, err := f.moderator.Handle(context.Background(), u, chat, user)
	require.NoError(t, err)
	return proceed
}

func points(t *testing.T, f *fixture, userID int64) int64 {
	t.Helper()
	total, err := f.scores.GetPoints(context.Background(), userID)
	require.NoError(t, err)
	return total
}

var spammer = &api.User{ID: 42, FirstName: "Spam", LastName: "Bot"}

func TestViolatingMessageIsDeletedScoredAndNoticed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(t, messageUpdate(10, spammer, "buy now http://spam.example"))

	assert.Equal(t, int64(2), points(t, f, spammer.ID))
	deletes := f.gateway.byOp("delete")
	require.NotEmpty(t, deletes)
	assert.Equal(t, 10, deletes[0].messageID)

	notices := f.gateway.byOp("notify")
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].text, "Advertising (forbidden link)")
	assert.Contains(t, notices[0].text, "Points: +2 (total: 2)")
	assert.Contains(t, notices[0].text, `<a href="tg://user?id=42">Spam Bot</a>`)

	require.Eventually(t, func() bool {
		return len(f.gateway.byOp("delete")) == 2
	}, time.Second, 5*time.Millisecond, "violation notice is removed after its TTL")
	assert.Equal(t, 1001, f.gateway.byOp("delete")[1].messageID)
}

func TestCleanAndAdminMessagesAreIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.True(t, f.handle(t, messageUpdate(1, spammer, "hello http://youtube.com/x")))
	f.handle(t, messageUpdate(2, &api.User{ID: testAdminID}, "casino"))

	assert.Empty(t, f.gateway.byOp("delete"))
	assert.Zero(t, points(t, f, spammer.ID))
	assert.Zero(t, points(t, f, testAdminID))
}

func TestDeletionFailureDoesNotSuppressScoring(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.gateway.failOp["delete"] = true

	f.handle(t, messageUpdate(3, spammer, "casino"))

	assert.Equal(t, int64(1), points(t, f, spammer.ID))
	assert.Len(t, f.gateway.byOp("notify"), 1)
}

func TestThresholdTriggersPunishment(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(t, messageUpdate(1, spammer, "http://a.example"))
	f.handle(t, messageUpdate(2, spammer, "casino"))

	restricts := f.gateway.byOp("restrict")
	require.Len(t, restricts, 1)
	assert.Equal(t, 30*time.Minute, restricts[0].duration)
	notices := f.gateway.byOp("notify")
	require.Len(t, notices, 3)
	assert.Contains(t, notices[2].text, "is muted for 30 minutes (3+ points)")
}

func TestPunishmentFailureSkipsPunishmentNotice(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.gateway.failOp["ban"] = true
	require.NoError(t, func() error {
		_, err := f.scores.AddPoints(context.Background(), spammer.ID, 9)
		return err
	}())

	f.handle(t, messageUpdate(1, spammer, "casino"))

	assert.Equal(t, int64(10), points(t, f, spammer.ID))
	assert.Len(t, f.gateway.byOp("ban"), 1)
	assert.Len(t, f.gateway.byOp("notify"), 1)
}

func replyCommand(id int, from *api.User, text string, target *api.Message) *api.Update {
	u := messageUpdate(id, from, text)
	u.Message.ReplyToMessage = target
	return u
}

func TestMuteCommand(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	target := &api.Message{MessageID: 5, Chat: groupChat, From: spammer, Text: "hi"}

	assert.True(t, f.handle(t, replyCommand(6, &api.User{ID: 7}, "/mute", target)), "a member's command goes on to moderation")
	assert.Empty(t, f.gateway.byOp("restrict"))

	f.handle(t, replyCommand(7, &api.User{ID: testAdminID}, "/mute", target))
	restricts := f.gateway.byOp("restrict")
	require.Len(t, restricts, 1)
	assert.Equal(t, gatewayCall{op: "restrict", chatID: testChatID, userID: spammer.ID, duration: 30 * time.Minute}, restricts[0])
	msgs := f.client.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "is muted for 30 minutes.")

	f.handle(t, replyCommand(8, &api.User{ID: testAdminID}, "/unmute -s", target))
	assert.Equal(t, time.Duration(0), f.gateway.byOp("restrict")[1].duration)
	assert.Len(t, f.client.messages(), 1, "silent flag suppresses the confirmation")
}

func TestRestrictionCommandNeedsReply(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(t, messageUpdate(1, &api.User{ID: testAdminID}, "/ban"))
	msgs := f.client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Use this command in reply to a message.", msgs[0].Text)

	f.handle(t, messageUpdate(2, &api.User{ID: testAdminID}, "/ban -s"))
	assert.Len(t, f.client.messages(), 1)
	assert.Empty(t, f.gateway.byOp("ban"))
}

func TestChatAdministratorCanBan(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.client.member = api.ChatMember{Status: "administrator", CanRestrictMembers: true}
	target := &api.Message{MessageID: 5, Chat: groupChat, From: spammer}

	f.handle(t, replyCommand(9, &api.User{ID: 77}, "/ban", target))
	assert.Len(t, f.gateway.byOp("ban"), 1)
}

func TestInfoCommand(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_, err := f.scores.AddPoints(context.Background(), 42, 4)
	require.NoError(t, err)

	f.handle(t, messageUpdate(1, &api.User{ID: testAdminID}, "/info 42"))
	f.handle(t, messageUpdate(2, &api.User{ID: testAdminID}, "/info @nick"))
	f.handle(t, messageUpdate(3, &api.User{ID: testAdminID}, "/info"))

	msgs := f.client.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "ℹ️ User info:\nID: 42\nViolation points: 4", msgs[0].Text)
	assert.Equal(t, "⚠️ Please specify the user ID as a number.", msgs[1].Text)
	assert.Equal(t, "Usage: /info USER_ID", msgs[2].Text)
}

func TestUnknownCommandIsModerated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(t, messageUpdate(1, spammer, "/start casino"))
	assert.Equal(t, int64(1), points(t, f, spammer.ID))
}

func TestModeratorCommandsFromMembersAreModerated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	target := &api.Message{MessageID: 5, Chat: groupChat, From: &api.User{ID: 77}, Text: "hi"}

	assert.True(t, f.handle(t, replyCommand(1, spammer, "/mute buy now http://spam.example", target)))
	assert.True(t, f.handle(t, messageUpdate(2, spammer, "/info casino")))

	assert.Equal(t, int64(3), points(t, f, spammer.ID))
	for _, c := range f.gateway.byOp("restrict") {
		assert.Equal(t, spammer.ID, c.userID, "a member's /mute must not restrict its target")
	}
	deleted := map[int]bool{}
	for _, c := range f.gateway.byOp("delete") {
		deleted[c.messageID] = true
	}
	assert.True(t, deleted[1])
	assert.True(t, deleted[2])
}

func TestReportTextIsModerated(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(t, messageUpdate(1, spammer, "/report casino http://spam.example"))
	assert.Equal(t, int64(1), points(t, f, spammer.ID))

	target := &api.Message{MessageID: 50, Chat: groupChat, From: &api.User{ID: 77}, Text: "hi"}
	f.handle(t, replyCommand(2, spammer, "/report see http://spam.example", target))
	assert.Equal(t, int64(3), points(t, f, spammer.ID))

	_, filed := f.workflow.Get(moderation.ReportKey{TargetUserID: 77, MessageID: 50, ChatID: testChatID})
	assert.True(t, filed)
}

func fileReport(t *testing.T, f *fixture) api.MessageConfig {
	t.Helper()
	target := &api.Message{MessageID: 50, Chat: groupChat, From: spammer, Text: "<spam>"}
	reporter := &api.User{ID: 9, FirstName: "Reporter"}
	assert.False(t, f.handle(t, replyCommand(51, reporter, "/report", target)))

	var dm api.MessageConfig
	for _, msg := range f.client.messages() {
		if msg.ChatID == testAdminID {
			dm = msg
		}
	}
	require.NotEmpty(t, dm.Text)
	return dm
}

func callbackUpdate(data string, from *api.User, notice api.MessageConfig, noticeID int) *api.Update {
	return &api.Update{CallbackQuery: &api.CallbackQuery{
		ID:   "cb",
		From: from,
		Data: data,
		Message: &api.Message{
			MessageID: noticeID,
			Chat:      api.Chat{ID: testAdminID, Type: "private"},
			Text:      notice.Text,
		},
	}}
}

func TestReportFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	dm := fileReport(t, f)
	assert.Contains(t, dm.Text, "Text: &lt;spam&gt;")
	keyboard, ok := dm.ReplyMarkup.(api.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, keyboard.InlineKeyboard, 2)
	banData := *keyboard.InlineKeyboard[0][1].CallbackData
	assert.Equal(t, "rep_ban_42_50_-100", banData)
	assert.Equal(t, "rep_ignore", *keyboard.InlineKeyboard[1][1].CallbackData)

	msgs := f.client.messages()
	assert.Equal(t, "Report sent to the admins.", msgs[len(msgs)-1].Text)

	// the DM was the first message sent, so it got ID 1
	admin := &api.User{ID: testAdminID}
	f.handle(t, callbackUpdate(banData, admin, dm, 1))
	f.handle(t, callbackUpdate(banData, admin, dm, 1))

	require.Len(t, f.gateway.byOp("ban"), 1)
	edits := f.client.edits()
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0].Text, "✅ <b>Decision: Ban</b>")
	assert.Equal(t, []string{"Done.", "This report is already resolved."}, f.client.callbackAnswers())

	chatNotices := f.gateway.byOp("notify")
	require.Len(t, chatNotices, 1)
	assert.Equal(t, "🚫 User 42 is banned by report.", chatNotices[0].text)
}

func TestReportIgnoreAndUnauthorized(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	dm := fileReport(t, f)

	f.handle(t, callbackUpdate("rep_ignore", &api.User{ID: 9}, dm, 1))
	f.handle(t, callbackUpdate("rep_ignore", &api.User{ID: testAdminID}, dm, 1))
	f.handle(t, callbackUpdate("rep_bogus", &api.User{ID: testAdminID}, dm, 1))

	assert.Equal(t, []string{"Only admins can resolve reports.", "Report ignored.", "Button data error."}, f.client.callbackAnswers())
	assert.Empty(t, f.gateway.byOp("ban"))
	assert.Empty(t, f.gateway.byOp("restrict"))
	assert.Empty(t, f.gateway.byOp("delete"))
}

func TestReportDuplicateAndUndeliverable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.client.failTo[testAdminID] = true
	target := &api.Message{MessageID: 60, Chat: groupChat, From: spammer}

	f.handle(t, replyCommand(61, &api.User{ID: 9}, "/report", target))
	msgs := f.client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Failed to send the report (the admin may have closed private messages).", msgs[0].Text)

	_, ok := f.workflow.Get(moderation.ReportKey{TargetUserID: spammer.ID, MessageID: 60, ChatID: testChatID})
	assert.False(t, ok, "undelivered reports are discarded")

	f.client.failTo[testAdminID] = false
	f.handle(t, replyCommand(62, &api.User{ID: 9}, "/report", target))
	f.handle(t, replyCommand(63, &api.User{ID: 10}, "/report", target))
	msgs = f.client.messages()
	assert.Equal(t, "This message has already been reported.", msgs[len(msgs)-1].Text)
}

func TestReportNeedsReply(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.handle(t, messageUpdate(1, &api.User{ID: 9}, "/report"))
	msgs := f.client.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Use this command in reply to the offending message.", msgs[0].Text)
}
