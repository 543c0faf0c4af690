package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngwarden/internal/access"
	"github.com/iamwavecut/ngwarden/internal/bot"
	"github.com/iamwavecut/ngwarden/internal/config"
	"github.com/iamwavecut/ngwarden/internal/db/sqlite"
	handlers "github.com/iamwavecut/ngwarden/internal/handlers/chat"
	"github.com/iamwavecut/ngwarden/internal/infra"
	"github.com/iamwavecut/ngwarden/internal/infrastructure/telegram"
	"github.com/iamwavecut/ngwarden/internal/ledger"
	"github.com/iamwavecut/ngwarden/internal/lifecycle"
	"github.com/iamwavecut/ngwarden/internal/moderation"
	"github.com/iamwavecut/ngwarden/internal/observability"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetFormatter(&config.ConsoleFormatter{})
	log.SetReportCaller(true)
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	if err := run(cfg); err != nil {
		log.WithError(err).Errorln("exiting")
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}
}

// run owns every resource it opens, so each error path releases them.
func run(cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownObservability, err := observability.Init(ctx, cfg.MetricsAddr)
	if err != nil {
		return errors.Wrap(err, "initialize observability")
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if err := shutdownObservability(stopCtx); err != nil {
			log.WithError(err).Errorln("cant shutdown observability")
		}
	}()

	workDir, err := infra.GetWorkDir(cfg.DotPath)
	if err != nil {
		return errors.Wrap(err, "prepare work dir")
	}
	dbClient, err := sqlite.NewSQLiteClient(ctx, workDir, "ngwarden.db")
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer func() { _ = dbClient.Close() }()

	scores, err := ledger.Open(ctx, cfg.Ledger.Backend, dbClient, cfg.Ledger.RedisURL)
	if err != nil {
		return errors.Wrap(err, "open score ledger")
	}
	if redisLedger, ok := scores.(*ledger.Redis); ok {
		defer func() { _ = redisLedger.Close() }()
	}

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		return errors.Wrap(err, "initialize bot api")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	gateway := telegram.NewOperations(botAPI, cfg.Gateway.RequestTimeout, cfg.Gateway.RequestRate)

	rules, err := moderation.LoadRules(cfg.Moderation.RulesPath, moderation.Rules{
		BannedWords:    cfg.Moderation.BannedWords,
		AllowedDomains: cfg.Moderation.AllowedDomains,
	})
	if err != nil {
		return errors.Wrap(err, "load moderation rules")
	}
	engine := moderation.NewEngine(scores, gateway)
	reports := moderation.NewWorkflow(gateway, cfg.IsAdmin, cfg.Moderation.ReportRetention)

	scheduleCfg, err := access.ConfigFrom(cfg.Schedule, cfg.DefaultLanguage)
	if err != nil {
		return errors.Wrap(err, "configure access schedule")
	}
	scheduler := access.NewScheduler(scheduleCfg, gateway)
	if !scheduler.Enabled() {
		log.Warnln("no chat id configured, access schedule disabled")
	}

	service := bot.NewService(scores, cfg)
	moderator := handlers.NewModerator(
		service,
		botAPI,
		moderation.NewRuleClassifier(rules),
		engine,
		reports,
		gateway,
		handlers.Config{AdminIDs: cfg.AdminIDs, NoticeTTL: cfg.Moderation.NoticeTTL},
	)
	updateProcessor := bot.NewUpdateProcessor(moderator)

	components := lifecycle.NewRuntime()
	components.Register("reports", reports)
	components.Register("moderator", moderator)
	if scheduler.Enabled() {
		components.Register("scheduler", scheduler)
	}
	if err := components.Start(ctx); err != nil {
		return errors.Wrap(err, "start components")
	}
	defer func() {
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()
		if err := components.Stop(stopCtx); err != nil {
			log.WithError(err).Errorln("cant stop components")
		}
	}()

	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updateConfig.AllowedUpdates = []string{"message", "edited_message", "callback_query"}
	updateChan, errorChan := bot.GetUpdatesChans(ctx, botAPI, updateConfig)

	go infra.GoRecoverable(-1, "process_updates", func() {
		if err := updateProcessor.Run(ctx, updateChan, cfg.Workers); err != nil && ctx.Err() == nil {
			log.WithError(err).Errorln("update processing stopped")
		}
		cancel()
	})

	select {
	case err := <-errorChan:
		if err != nil && ctx.Err() == nil {
			return errors.Wrap(err, "get updates")
		}
	case <-infra.MonitorExecutable(ctx):
		log.Warnln("executable file was modified")
	case <-ctx.Done():
		log.Infoln("shutting down")
	}
	return nil
}
