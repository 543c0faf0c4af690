package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngwarden/internal/ledger"
)

type ServiceLedger interface {
	GetLedger() ledger.Ledger
}

// Service is the shared state handlers are built from.
type Service interface {
	ServiceLedger
	IsAdmin(userID int64) bool
	GetLanguage(ctx context.Context, chatID int64, user *api.User) string
}

// Handler processes one update. Returning proceed == false stops the chain.
type Handler interface {
	Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error)
}
