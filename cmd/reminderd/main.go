package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"pereryv/internal/config"
	"pereryv/internal/events"
	"pereryv/internal/export"
	"pereryv/internal/history"
	"pereryv/internal/notify"
	"pereryv/internal/reminder"
	"pereryv/internal/schedule"
	"pereryv/internal/server"
	"pereryv/internal/settings"
	"pereryv/internal/statecache"
)

var rootCmd = &cobra.Command{
	Use:   "reminderd",
	Short: "Break reminder daemon",
	Long: `Reminderd nags you to take breaks on a fixed interval, restricted to
configured active hours. It persists its settings, records reminder history,
and exposes a local control API.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	flags := rootCmd.Flags()
	flags.String("config", "", "path to the daemon YAML config")
	flags.Float64("interval-minutes", settings.Defaults().IntervalMinutes, "minutes between reminders")
	flags.String("message", settings.Defaults().Message, "reminder popup message")
	flags.String("quick-close-confirm-text", settings.Defaults().QuickCloseConfirmText, "confirmation text shown when closing a popup too quickly")
	flags.String("active-hours", settings.Defaults().ActiveHours, "active hour ranges, e.g. \"9-12/13-18\" (empty means always)")
	flags.String("title", settings.Defaults().Title, "reminder popup title")
	flags.Int("window-width", settings.Defaults().WindowWidth, "popup width hint")
	flags.Int("window-height", settings.Defaults().WindowHeight, "popup height hint")
	flags.Bool("show-on-start", settings.Defaults().ShowOnStart, "show a reminder right after startup")
	flags.String("log-file", "", "append logs to this file in addition to stdout")
	flags.String("pid-file", "", "write the daemon pid to this file")
	flags.String("tray-icon", "", "tray icon path hint for desktop front ends")
	flags.Bool("hide-control-window", false, "hide-control-window hint for desktop front ends")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	flags := cmd.Flags()

	logFile, _ := flags.GetString("log-file")
	logger, closeLog, err := newLogger(logFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if closeLog != nil {
		defer closeLog()
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		return err
	}

	if pidFile, _ := flags.GetString("pid-file"); pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
			logger.Error().Err(err).Str("path", pidFile).Msg("failed to write pid file")
			return err
		}
		defer os.Remove(pidFile)
	}

	store := settings.NewStore(cfg.SettingsFile, logger)
	current := store.Load(settings.Defaults())
	if err := applyFlagOverrides(flags, &current); err != nil {
		logger.Error().Err(err).Msg("invalid command line settings")
		return err
	}
	if err := current.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid settings")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()

	db, err := history.New(cfg.History.Path)
	if err != nil {
		logger.Error().Err(err).Msg("open history db error")
		return err
	}
	defer db.Close()
	history.AttachRecorder(bus, db, logger)

	maint := history.NewMaintenance(db, cfg.History.Path, history.MaintenanceConfig{
		RetentionDays:       cfg.History.RetentionDays,
		MaxEvents:           int64(cfg.History.MaxEvents),
		Interval:            24 * time.Hour,
		BackupEnabled:       cfg.Backup.Enabled,
		BackupPath:          cfg.Backup.Path,
		BackupRetentionDays: cfg.Backup.RetentionDays,
	}, logger)
	go maint.Start(ctx)

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	cache := statecache.New(rdb, "", 0)

	presenter := reminder.MultiPresenter{reminder.LogPresenter{Logger: logger}}
	var tg *notify.Telegram
	if cfg.Telegram.BotToken != "" {
		tgCfg := notify.DefaultTelegramConfig()
		tgCfg.BotToken = cfg.Telegram.BotToken
		tgCfg.ChatID = cfg.Telegram.ChatID
		tgCfg.Debug = cfg.Telegram.Debug
		tg, err = notify.NewTelegram(tgCfg, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create telegram presenter error")
			return err
		}
		presenter = append(presenter, tg)
	}

	metrics := reminder.NewMetrics("reminderd")

	svc := reminder.New(reminder.DefaultConfig(), current, presenter, store, cache, bus, metrics, logger)

	var sender export.DocumentSender
	if tg != nil && cfg.Export.SendToChat {
		sender = tg
	}
	exporter := export.NewService(export.Config{
		Dir:        cfg.Export.Dir,
		SendToChat: sender != nil,
	}, db, export.NewExcelizeWriter, sender, bus, logger)

	pingers := []server.Pinger{db}
	if cache.Enabled() {
		pingers = append(pingers, cache)
	}
	go server.StartHealthServer(ctx, cfg.Monitoring.HealthCheckPort, logger, pingers...)
	if cfg.Monitoring.PrometheusEnabled {
		go server.StartMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	api := server.NewHTTPServer(cfg.Control.ListenAddr, cfg.Control.AuthToken, svc, db, exporter, logger)
	go api.Start(ctx)

	logger.Info().
		Str("active_hours", current.HoursSummary()).
		Float64("interval_minutes", current.IntervalMinutes).
		Msg("reminderd started")
	svc.Run(ctx)

	logger.Info().Msg("reminderd stopped")
	return nil
}

func newLogger(logFile string) (zerolog.Logger, func(), error) {
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if logFile == "" {
		return zerolog.New(console).With().Timestamp().Logger(), nil, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}
	writer := zerolog.MultiLevelWriter(console, f)
	logger := zerolog.New(writer).With().Timestamp().Logger()
	return logger, func() { _ = f.Close() }, nil
}

// loadConfig reads the YAML config named by --config or REMINDERD_CONFIG.
// Without either, a missing default file falls back to built-in defaults.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	path, _ := flags.GetString("config")
	if path == "" {
		path = os.Getenv("REMINDERD_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("configs/config.yaml"); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// applyFlagOverrides layers explicitly set CLI flags over the persisted
// settings. Flags left at their defaults do not override saved values.
func applyFlagOverrides(flags *pflag.FlagSet, s *settings.Settings) error {
	if flags.Changed("interval-minutes") {
		s.IntervalMinutes, _ = flags.GetFloat64("interval-minutes")
	}
	if flags.Changed("message") {
		s.Message, _ = flags.GetString("message")
	}
	if flags.Changed("quick-close-confirm-text") {
		s.QuickCloseConfirmText, _ = flags.GetString("quick-close-confirm-text")
	}
	if flags.Changed("active-hours") {
		text, _ := flags.GetString("active-hours")
		if _, err := schedule.ParseHours(text); err != nil {
			return fmt.Errorf("invalid --active-hours: %w", err)
		}
		s.ActiveHours = text
	}
	if flags.Changed("title") {
		s.Title, _ = flags.GetString("title")
	}
	if flags.Changed("window-width") {
		s.WindowWidth, _ = flags.GetInt("window-width")
	}
	if flags.Changed("window-height") {
		s.WindowHeight, _ = flags.GetInt("window-height")
	}
	if flags.Changed("show-on-start") {
		s.ShowOnStart, _ = flags.GetBool("show-on-start")
	}
	if flags.Changed("tray-icon") {
		s.TrayIconPath, _ = flags.GetString("tray-icon")
	}
	if flags.Changed("hide-control-window") {
		s.HideControlWindow, _ = flags.GetBool("hide-control-window")
	}
	return nil
}
