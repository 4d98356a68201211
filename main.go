// Command dialogue-tender translates on-screen Japanese game dialogue for a
// live stream. It:
//   - Loads configuration (env + optional translator.yaml) and initializes
//     structured logging, metrics and tracing.
//   - Builds the translation service: frame capture, OCR or vision
//     translation, and the dialogue box detector.
//   - Fans overlay changes out to the browser overlay hub, the log, an
//     optional Twitch chat mirror and an optional Postgres history table.
//   - Starts background jobs: debug image retention and, when configured,
//     live auto-start driven by the Twitch Helix streams endpoint.
//   - Exposes the HTTP control surface with /healthz, /readyz and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/dialogue-tender/capture"
	"github.com/onnwee/dialogue-tender/chat"
	"github.com/onnwee/dialogue-tender/config"
	"github.com/onnwee/dialogue-tender/db"
	"github.com/onnwee/dialogue-tender/imageutil"
	"github.com/onnwee/dialogue-tender/ocr"
	"github.com/onnwee/dialogue-tender/ocr/tesseract"
	"github.com/onnwee/dialogue-tender/overlay"
	"github.com/onnwee/dialogue-tender/server"
	"github.com/onnwee/dialogue-tender/telemetry"
	"github.com/onnwee/dialogue-tender/translation"
	"github.com/onnwee/dialogue-tender/twitchapi"
	"github.com/onnwee/dialogue-tender/vision"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateVisionReady(); err != nil {
		// The control surface still comes up; /readyz reports the gap.
		slog.Warn("vision API not configured, translations will fail", slog.Any("err", err))
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing("dialogue-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newService(cfg)
	if err != nil {
		slog.Error("failed to build translation service", slog.Any("err", err))
		os.Exit(1)
	}

	source, push, err := newFrameSource(cfg)
	if err != nil {
		slog.Error("failed to build frame source", slog.Any("err", err))
		os.Exit(1)
	}

	hub := overlay.NewHub()
	sinks := overlay.Multi{hub, overlay.LogSink{}}

	var history *db.HistoryStore
	if cfg.DBDsn != "" {
		database, err := openHistoryDB(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("translation history unavailable", slog.Any("err", err), slog.String("component", "db"))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		history = db.NewHistoryStore(database)
		sinks = append(sinks, db.HistorySink{Store: history})
		slog.Info("translation history enabled", slog.String("session_id", history.Session().String()), slog.String("component", "db"))
	} else {
		slog.Info("translation history disabled (DB_DSN not set)")
	}

	if cfg.ChatMirror {
		if err := cfg.ValidateChatReady(); err != nil {
			slog.Warn("chat mirror disabled", slog.Any("err", err))
		} else {
			mirror := chat.Connect(ctx, cfg.TwitchChannel, cfg.TwitchBotUsername, cfg.TwitchOAuthToken, cfg.ChatMirrorMinInterval)
			registerChatCommands(ctx, mirror, svc, source, &sinks)
			sinks = append(sinks, mirror)
		}
	}

	if cfg.DialogueBox != "" {
		box := cfg.DialogueBox
		svc.Configure(translation.Patch{DialogueBox: &box})
	}

	go translation.StartDebugRetentionJob(ctx, cfg.DebugDir, translation.RetentionPolicy{
		KeepLast: cfg.DebugRetentionKeep,
		MaxAge:   cfg.DebugRetentionMaxAge,
		DryRun:   cfg.DebugRetentionDryRun,
		Interval: cfg.DebugRetentionInterval,
	})

	if cfg.LiveAutoStart {
		if err := cfg.ValidateLiveReady(); err != nil {
			slog.Warn("live auto-start disabled", slog.Any("err", err))
		} else {
			go watchLive(ctx, cfg, svc, source, sinks)
		}
	}

	if cfg.AutoStart {
		if _, err := svc.Start(ctx, source, sinks); err != nil {
			slog.Error("auto-start failed", slog.Any("err", err))
		}
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		err := server.Start(ctx, cfg.HTTPAddr, server.Deps{
			Service: svc,
			Source:  source,
			Sink:    sinks,
			Hub:     hub,
			History: history,
			Push:    push,
			Config:  cfg,
		})
		if err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	svc.Stop(shutdownCtx, true)
}

func newService(cfg *config.Config) (*translation.Service, error) {
	vc := &vision.Client{
		APIKey:           cfg.AnthropicAPIKey,
		BaseURL:          cfg.VisionBaseURL,
		Model:            cfg.VisionModel,
		TranslateTimeout: cfg.VisionTranslateTimeout,
		DetectTimeout:    cfg.VisionDetectTimeout,
		MaxRetries:       cfg.VisionMaxRetries,
	}
	tcfg := translation.Config{
		PollInterval:      cfg.PollInterval,
		ChangeThreshold:   cfg.ChangeThreshold,
		DetectionInterval: cfg.DetectionInterval,
		DebugMode:         cfg.DebugMode,
		DebugDir:          cfg.DebugDir,
		Mode:              translation.Mode(cfg.Mode),
		AutoDetect:        cfg.AutoDetect,
	}
	return translation.New(tcfg, translation.Deps{
		OCR:        ocr.NewClient(tesseract.New(cfg.OCRLanguage)),
		Translator: vc,
		Detector:   vc,
	})
}

// newFrameSource returns the configured capture source. The push source is
// also returned so the HTTP layer can feed it.
func newFrameSource(cfg *config.Config) (translation.FrameSource, *capture.Static, error) {
	switch cfg.CaptureSource {
	case config.CaptureFile:
		return capture.File{Path: cfg.CaptureFile}, nil, nil
	case config.CapturePush:
		push := &capture.Static{}
		return push, push, nil
	default:
		screen := capture.Screen{Display: cfg.CaptureDisplay}
		if cfg.CaptureRegion != "" {
			box, err := imageutil.ParseBox(cfg.CaptureRegion)
			if err != nil {
				return nil, nil, fmt.Errorf("CAPTURE_REGION: %w", err)
			}
			screen.Region = box.Rect()
		}
		return screen, nil, nil
	}
}

func openHistoryDB(ctx context.Context, dsn string) (*sql.DB, error) {
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return database, nil
}

// registerChatCommands lets the broadcaster and moderators drive the service
// with !translate force|start|stop. sinks is read at call time so the mirror
// itself is included once it has been appended.
func registerChatCommands(ctx context.Context, m *chat.Mirror, svc *translation.Service, src translation.FrameSource, sinks *overlay.Multi) {
	m.Handle("force", func() { svc.ForceTranslate() })
	m.Handle("start", func() {
		if _, err := svc.Start(ctx, src, *sinks); err != nil {
			slog.Warn("chat start failed", slog.Any("err", err), slog.String("component", "chat_mirror"))
		}
	})
	m.Handle("stop", func() { svc.Stop(ctx, true) })
}

// watchLive starts the service when the channel goes live and stops it when
// the stream ends.
func watchLive(ctx context.Context, cfg *config.Config, svc *translation.Service, src translation.FrameSource, sink overlay.Sink) {
	helix := &twitchapi.HelixClient{
		TokenSource: twitchapi.NewAppTokenSource(ctx, cfg.TwitchClientID, cfg.TwitchClientSecret, "", nil),
		ClientID:    cfg.TwitchClientID,
	}
	twitchapi.WatchLive(ctx, helix, cfg.TwitchChannel, cfg.LivePollInterval, func(ev twitchapi.LiveEvent) {
		if ev.Live {
			res, err := svc.Start(ctx, src, sink)
			if err != nil {
				slog.Error("live auto-start failed", slog.Any("err", err), slog.String("component", "live_watcher"))
				return
			}
			attrs := []any{slog.String("status", res.Status), slog.String("component", "live_watcher")}
			if ev.Stream != nil {
				attrs = append(attrs, slog.String("title", ev.Stream.Title), slog.String("game", ev.Stream.GameName))
			}
			slog.Info("channel live, translation started", attrs...)
			return
		}
		res := svc.Stop(ctx, true)
		slog.Info("channel offline, translation stopped", slog.String("status", res.Status), slog.String("component", "live_watcher"))
	})
}
