package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngwarden/internal/config"
	"github.com/iamwavecut/ngwarden/internal/i18n"
	"github.com/iamwavecut/ngwarden/internal/ledger"
)

type service struct {
	ledger ledger.Ledger
	cfg    config.Config
}

func NewService(scores ledger.Ledger, cfg config.Config) *service {
	return &service{
		ledger: scores,
		cfg:    cfg,
	}
}

func (s *service) GetLedger() ledger.Ledger {
	return s.ledger
}

func (s *service) IsAdmin(userID int64) bool {
	return s.cfg.IsAdmin(userID)
}

// GetLanguage returns the configured language; the bot manages a single chat.
func (s *service) GetLanguage(_ context.Context, _ int64, _ *api.User) string {
	if !i18n.IsSupported(s.cfg.DefaultLanguage) {
		return "en"
	}
	return s.cfg.DefaultLanguage
}
