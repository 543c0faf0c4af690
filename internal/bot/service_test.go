package bot_test

import (
	"context"
	"testing"

	"github.com/iamwavecut/ngwarden/internal/bot"
	"github.com/iamwavecut/ngwarden/internal/config"
	"github.com/iamwavecut/ngwarden/internal/ledger"
)

func TestServiceAccessors(t *testing.T) {
	t.Parallel()

	scores := ledger.NewMemory()
	service := bot.NewService(scores, config.Config{AdminIDs: []int64{7}, DefaultLanguage: "ru"})

	if service.GetLedger() != scores {
		t.Fatalf("unexpected ledger")
	}
	if !service.IsAdmin(7) || service.IsAdmin(8) {
		t.Fatalf("unexpected admin check")
	}
	if lang := service.GetLanguage(context.Background(), -1, nil); lang != "ru" {
		t.Fatalf("unexpected language: %q", lang)
	}
}

func TestServiceFallsBackToEnglish(t *testing.T) {
	t.Parallel()

	service := bot.NewService(ledger.NewMemory(), config.Config{DefaultLanguage: "xx"})
	if lang := service.GetLanguage(context.Background(), -1, nil); lang != "en" {
		t.Fatalf("unexpected language: %q", lang)
	}
}
