// Package telegram implements the enforcement gateway on top of the Bot API.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"golang.org/x/time/rate"

	apperrors "github.com/iamwavecut/ngwarden/internal/errors"
)

const (
	MsgNoPrivileges = "not enough rights"

	defaultRequestTimeout = 10 * time.Second
	defaultRequestRate    = 25
)

type botAPI interface {
	Request(c api.Chattable) (*api.APIResponse, error)
	Send(c api.Chattable) (api.Message, error)
}

// Operations performs moderation calls with a bounded timeout and an outbound rate limit.
type Operations struct {
	bot     botAPI
	timeout time.Duration
	limiter *rate.Limiter
}

func NewOperations(bot botAPI, timeout time.Duration, perSecond float64) *Operations {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if perSecond <= 0 {
		perSecond = defaultRequestRate
	}
	return &Operations{
		bot:     bot,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
	}
}

func (o *Operations) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return o.request(ctx, "delete", api.NewDeleteMessage(chatID, messageID))
}

// Restrict mutes the user for d. A zero d lifts every restriction; the lift
// goes through dependent permissions so media rights follow the text right.
func (o *Operations) Restrict(ctx context.Context, chatID, userID int64, d time.Duration) error {
	config := api.RestrictChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
		Permissions: &api.ChatPermissions{},

		UseIndependentChatPermissions: true,
	}
	op := "restrict"
	if d > 0 {
		config.UntilDate = time.Now().Add(d).Unix()
	} else {
		op = "unrestrict"
		config.Permissions = fullPermissions()
		config.UseIndependentChatPermissions = false
	}
	return o.request(ctx, op, config)
}

func (o *Operations) Ban(ctx context.Context, chatID, userID int64) error {
	config := api.BanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
	}
	return o.request(ctx, "ban", config)
}

func (o *Operations) SetChatOpen(ctx context.Context, chatID int64, open bool) error {
	permissions := &api.ChatPermissions{}
	if open {
		permissions = fullPermissions()
	}
	config := api.SetChatPermissionsConfig{
		ChatConfig:  api.ChatConfig{ChatID: chatID},
		Permissions: permissions,
	}
	return o.request(ctx, "set_chat_permissions", config)
}

// Notify sends an HTML message and returns its ID.
func (o *Operations) Notify(ctx context.Context, chatID int64, text string) (int, error) {
	msg := api.NewMessage(chatID, text)
	msg.ParseMode = api.ModeHTML

	var sent api.Message
	err := o.call(ctx, "notify", func() error {
		var err error
		sent, err = o.bot.Send(msg)
		return err
	})
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (o *Operations) request(ctx context.Context, op string, c api.Chattable) error {
	return o.call(ctx, op, func() error {
		_, err := o.bot.Request(c)
		return err
	})
}

// call runs fn under the rate limit and the request timeout. fn keeps running
// after a timeout; its late result is dropped.
func (o *Operations) call(ctx context.Context, op string, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if err := o.limiter.Wait(ctx); err != nil {
		return apperrors.NewGatewayError(op, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case <-ctx.Done():
		return apperrors.NewGatewayError(op, ctx.Err())
	case err := <-done:
		return withPrivilegeError(err, op)
	}
}

func withPrivilegeError(err error, op string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), MsgNoPrivileges) {
		return apperrors.NewGatewayError(op, fmt.Errorf("%w: %s", apperrors.ErrNoPrivileges, err.Error()))
	}
	return apperrors.NewGatewayError(op, err)
}

func fullPermissions() *api.ChatPermissions {
	return &api.ChatPermissions{
		CanSendMessages:       true,
		CanSendAudios:         true,
		CanSendDocuments:      true,
		CanSendPhotos:         true,
		CanSendVideos:         true,
		CanSendVideoNotes:     true,
		CanSendVoiceNotes:     true,
		CanSendPolls:          true,
		CanSendOtherMessages:  true,
		CanAddWebPagePreviews: true,
		CanInviteUsers:        true,
	}
}
