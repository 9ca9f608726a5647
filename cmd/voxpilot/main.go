// Command voxpilot runs the voice-driven browser assistant: it drives a
// Chrome instance, listens for the long-press gesture on the page,
// captures speech, talks to the backend over the realtime channel, and
// executes the commands that come back.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/voxpilot/activation"
	"github.com/hazyhaar/voxpilot/admin"
	"github.com/hazyhaar/voxpilot/browser"
	"github.com/hazyhaar/voxpilot/capture"
	"github.com/hazyhaar/voxpilot/config"
	"github.com/hazyhaar/voxpilot/domact"
	"github.com/hazyhaar/voxpilot/fallback"
	"github.com/hazyhaar/voxpilot/feedback"
	"github.com/hazyhaar/voxpilot/realtime"
	"github.com/hazyhaar/voxpilot/session"
	"github.com/hazyhaar/voxpilot/trace"
	"github.com/hazyhaar/voxpilot/wire"
)

func main() {
	configPath := flag.String("config", "", "path to voxpilot.yaml")
	mcpTransport := flag.String("mcp", "", "MCP transport: stdio or empty")
	flag.Parse()

	logLevel := env("LOG_LEVEL", "info")
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
		if err != nil {
			slog.Error("config", "error", err)
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}

	// Session event store (optional).
	var store *trace.Store
	if cfg.Trace.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Trace.Path), 0o755); err != nil {
			slog.Error("trace dir", "error", err)
			os.Exit(1)
		}
		db, err := sql.Open("sqlite", cfg.Trace.Path)
		if err != nil {
			slog.Error("trace db", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store = trace.NewStore(db)
		if err := store.Init(); err != nil {
			slog.Error("trace init", "error", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	// Browser.
	mgr := browser.NewManager(browser.Config{
		RemoteURL:         cfg.Browser.Remote,
		Headful:           cfg.Browser.Headful,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		Logger:            logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		slog.Error("browser start", "error", err)
		os.Exit(1)
	}
	defer mgr.Close()

	tab, err := browser.OpenTab(ctx, mgr, cfg.Browser.StartURL)
	if err != nil {
		slog.Error("open tab", "error", err)
		os.Exit(1)
	}
	defer tab.Close()

	// Realtime channel.
	channel := realtime.New(realtime.Config{
		URL: cfg.Backend.WebSocketURL,
		Handshake: func() ([]byte, error) {
			url, err := tab.URL(ctx)
			if err != nil {
				url = cfg.Browser.StartURL
			}
			return wire.EncodeInit("voxpilot", url)
		},
		BaseDelay:            cfg.Backend.BaseDelay,
		MaxDelay:             cfg.Backend.MaxDelay,
		MaxReconnectAttempts: cfg.Backend.MaxReconnectAttempts,
		Logger:               logger,
	})
	defer channel.Close()

	// Capture, execution, feedback.
	mic := browser.NewMicSource(tab, 0)
	defer mic.Close()
	recorder := capture.NewRecorder(mic,
		capture.WithMaxSegment(cfg.Capture.MaxSegment),
		capture.WithRecorderLogger(logger))

	executor := domact.NewExecutor(tab, domact.WithLogger(logger))
	speaker := feedback.NewSpeaker(tab, feedback.WithLogger(logger))

	// HTTP fallback for when the channel is exhausted.
	var fb *fallback.Client
	if cfg.Backend.AudioURL != "" {
		fb = fallback.New(fallback.Config{
			AudioURL:   cfg.Backend.AudioURL,
			AnalyzeURL: cfg.Backend.AnalyzeURL,
			Logger:     logger,
		})
	}

	// Dispatcher.
	opts := []session.DispatcherOption{session.WithPages(tab)}
	if store != nil {
		opts = append(opts, session.WithTracer(store))
	}
	if fb != nil {
		opts = append(opts, session.WithFallback(fb))
	}
	dispatcher := session.NewDispatcher(session.Config{
		AutoAnalyze: cfg.Session.AutoAnalyze,
		SettleDelay: cfg.Session.SettleDelay,
		Logger:      logger,
	}, channel, recorder, executor, speaker, opts...)
	defer dispatcher.Close()

	// Activation gesture fed from the page.
	detector := activation.New(func(e activation.Edge) {
		dispatcher.HandleEdge(ctx, e)
	}, activation.WithThreshold(cfg.Activation.LongPressThreshold))
	defer detector.Close()

	err = tab.InstallBindings(ctx, cfg.Activation.KeyCode, browser.EventHandlers{
		OnKeyDown:  func(editable, repeat bool) { detector.KeyDown(editable) },
		OnKeyUp:    detector.KeyUp,
		OnNavigate: func(url string) { dispatcher.HandleNavigation(ctx, url) },
	})
	if err != nil {
		slog.Error("install bindings", "error", err)
		os.Exit(1)
	}

	// Event pumps.
	go func() {
		for ev := range channel.Events() {
			dispatcher.HandleChannelEvent(ctx, ev)
		}
	}()
	go func() {
		for seg := range recorder.Segments() {
			if fb != nil && channel.State() == realtime.StateExhausted {
				resp, err := fb.UploadAudio(ctx, seg.Data)
				if err != nil {
					slog.Warn("fallback upload", "error", err)
					continue
				}
				dispatcher.HandleChannelEvent(ctx, realtime.Event{
					Kind:    realtime.EventMessage,
					Payload: resp,
				})
				continue
			}
			dispatcher.HandleSegment(ctx, seg)
		}
	}()

	if err := channel.Connect(ctx); err != nil {
		slog.Warn("initial connect", "error", err)
	}
	if cfg.Browser.StartURL != "" {
		dispatcher.HandleNavigation(ctx, cfg.Browser.StartURL)
	}

	// Optional MCP surface.
	if *mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "voxpilot",
			Version: "1.0.0",
		}, nil)
		dispatcher.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil {
				slog.Error("mcp stdio", "error", err)
			}
		}()
	}

	// Admin surface.
	adminSrv := &http.Server{
		Addr: cfg.Admin.Listen,
		Handler: admin.NewRouter(admin.Config{
			TokenHash: cfg.Admin.TokenHash,
			Logger:    logger,
		}, dispatcher, channel, eventSource(store)),
	}
	go func() {
		slog.Info("admin listening", "addr", cfg.Admin.Listen)
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("admin server", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("admin shutdown", "error", err)
	}
}

// eventSource keeps a nil *trace.Store from becoming a non-nil
// interface.
func eventSource(store *trace.Store) admin.EventSource {
	if store == nil {
		return nil
	}
	return store
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
