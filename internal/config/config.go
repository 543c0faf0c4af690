package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string  `env:"TOKEN,required"`
		DefaultLanguage  string  `env:"LANG,default=en"`
		LogLevel         int     `env:"LOG_LEVEL,default=4"`
		DotPath          string  `env:"DOT_PATH,default=~/.ngwarden"`
		AdminIDs         []int64 `env:"ADMIN_IDS,required"`
		Workers          int     `env:"WORKERS,default=16"`
		MetricsAddr      string  `env:"METRICS_ADDR"`
		Moderation       Moderation
		Ledger           Ledger
		Schedule         Schedule
		Gateway          Gateway
	}

	Moderation struct {
		BannedWords     []string      `env:"BANNED_WORDS,default=плохоеслово,мат,запрещенка"`
		AllowedDomains  []string      `env:"ALLOWED_DOMAINS,default=youtube.com,youtu.be,twitch.tv,t.me"`
		RulesPath       string        `env:"RULES_PATH"`
		NoticeTTL       time.Duration `env:"NOTICE_TTL,default=10s"`
		ReportRetention time.Duration `env:"REPORT_RETENTION,default=24h"`
	}

	Ledger struct {
		Backend  string `env:"LEDGER_BACKEND,default=sqlite"`
		RedisURL string `env:"REDIS_URL,default=redis://localhost:6379/0"`
	}

	Schedule struct {
		ChatID      int64  `env:"CHAT_ID"`
		Timezone    string `env:"TIMEZONE,required"`
		CloseAt     string `env:"CLOSE_AT,default=23:00"`
		OpenAt      string `env:"OPEN_AT,default=07:00"`
		WindowStart string `env:"WINDOW_START"`
		WindowEnd   string `env:"WINDOW_END"`
	}

	Gateway struct {
		RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=10s"`
		RequestRate    float64       `env:"REQUEST_RATE,default=25"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg, err := LoadWith(context.Background(), envconfig.OsLookuper())
		if err != nil {
			globalErr = err
			return
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

// LoadWith reads NG_ prefixed variables from the given lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	envcfg := envconfig.Config{
		Lookuper: envconfig.PrefixLookuper("NG_", lookuper),
		Target:   cfg,
	}
	if err := envconfig.ProcessWith(ctx, &envcfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	dotPath, err := homedir.Expand(cfg.DotPath)
	if err != nil {
		return nil, fmt.Errorf("expand dot path: %w", err)
	}
	cfg.DotPath = dotPath
	if cfg.Schedule.WindowStart == "" {
		cfg.Schedule.WindowStart = cfg.Schedule.CloseAt
	}
	if cfg.Schedule.WindowEnd == "" {
		cfg.Schedule.WindowEnd = cfg.Schedule.OpenAt
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return cfg, nil
}

func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
