package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yok-tottii/echocap/internal/api"
	"github.com/yok-tottii/echocap/internal/audio"
	"github.com/yok-tottii/echocap/internal/clipboard"
	"github.com/yok-tottii/echocap/internal/config"
	"github.com/yok-tottii/echocap/internal/hotkey"
	"github.com/yok-tottii/echocap/internal/logger"
	"github.com/yok-tottii/echocap/internal/notification"
	"github.com/yok-tottii/echocap/internal/observe"
	"github.com/yok-tottii/echocap/internal/playback"
	"github.com/yok-tottii/echocap/internal/preflight"
	"github.com/yok-tottii/echocap/internal/recognition"
	"github.com/yok-tottii/echocap/internal/recording"
	"github.com/yok-tottii/echocap/internal/server"
	"github.com/yok-tottii/echocap/internal/store"
	"github.com/yok-tottii/echocap/internal/tray"
	"github.com/yok-tottii/echocap/internal/vad"
)

type runOptions struct {
	noTray   bool
	noHotkey bool
	paused   bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture the audio output and serve the control UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runApp(cmd.Context(), cfg, ctx.configPath, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noTray, "no-tray", false, "Run without the system tray icon")
	cmd.Flags().BoolVar(&opts.noHotkey, "no-hotkey", false, "Do not register the global hotkey")
	cmd.Flags().BoolVar(&opts.paused, "paused", false, "Start without listening")
	return cmd
}

// App wires the capture pipeline to its control surfaces
type App struct {
	config     *config.Config
	configPath string

	log         *logger.Logger
	provider    *observe.Provider
	metrics     *observe.Metrics
	store       *store.Store
	transcriber *recognition.Transcriber
	pipeline    *recording.Pipeline
	player      *playback.Service
	notifier    *notification.NotificationManager
	server      *server.Server
	trayMgr     *tray.Manager
	checker     *preflight.Checker

	hotkeyMu sync.Mutex
	hotkeys  *hotkey.Manager

	ctx    context.Context
	cancel context.CancelFunc
}

func runApp(parent context.Context, cfg *config.Config, configPath string, opts runOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app := &App{config: cfg, configPath: configPath, ctx: ctx, cancel: cancel}
	defer app.close()
	if err := app.init(); err != nil {
		return err
	}

	slog.Info("echocap started", "version", version, "config", configPath, "session", app.store.Recordings().Dir())

	if !opts.paused {
		if err := app.pipeline.Start(ctx); err != nil {
			// no loopback device is fatal at startup
			return fmt.Errorf("failed to start listening: %w", err)
		}
		app.notifier.ListeningStarted()
	} else if err := app.checkCapture(); err != nil {
		return err
	}

	if err := app.server.Start(); err != nil {
		return err
	}
	fmt.Printf("echocap %s\n  UI:      %s\n  Data:    %s\n", version, app.server.URL(), app.store.Root())

	if !opts.noHotkey {
		if err := app.registerHotkey(app.binding()); err != nil {
			slog.Warn("global hotkey unavailable", "err", err)
		} else {
			fmt.Printf("  Hotkey:  %s\n", app.binding())
		}
	}

	if !opts.noTray {
		app.trayMgr = tray.NewManager(tray.Config{
			OnReady: func() {
				// shutdown may have run before the tray loop started
				if ctx.Err() != nil {
					app.trayMgr.Quit()
				}
			},
			OnToggle: app.toggle,
			OnOpenUI: app.openUI,
			OnQuit:   cancel,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.watchState(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.shutdown()
		return nil
	})

	if app.trayMgr == nil {
		return ignoreCanceled(g.Wait())
	}

	// Run blocks on the main thread until Quit
	app.trayMgr.Run()
	cancel()
	return ignoreCanceled(g.Wait())
}

func (a *App) init() error {
	cfg := a.config

	lc, err := cfg.LoggerOptions()
	if err != nil {
		return err
	}
	a.log, err = logger.New(lc)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	slog.SetDefault(a.log.Slog())

	a.provider, err = observe.InitProvider(observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	a.metrics, err = observe.NewMetrics(a.provider.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	dataDir, err := cfg.DataPath()
	if err != nil {
		return err
	}
	a.store, err = store.Open(dataDir, time.Now())
	if err != nil {
		return err
	}

	classifier, err := vad.New(cfg.VADOptions())
	if err != nil {
		return err
	}

	recognizer, err := recognition.New(cfg.RecognitionOptions())
	if err != nil {
		return err
	}
	a.transcriber = recognition.NewTranscriber(recognizer, cfg.TranscribeOptions())

	snap := cfg.Clone()
	a.notifier = notification.NewNotificationManager("echocap")
	a.notifier.SetEnabled(snap.Notifications)

	rc := recording.DefaultConfig()
	rc.Segment = cfg.SegmentOptions()
	rc.Trim = cfg.TrimOptions()

	encoder := audio.NewFFmpegEncoder(snap.Encoder.FFmpegPath, snap.Encoder.MP3Bitrate)
	popts := []recording.Option{
		recording.WithMetrics(a.metrics),
		recording.WithRecordHook(a.onRecord),
	}
	if encoder.Available() {
		popts = append(popts, recording.WithEncoder(encoder))
	} else {
		slog.Warn("ffmpeg not found, utterances are kept as WAV only", "path", encoder.Path)
	}
	a.pipeline = recording.New(rc, a.openCapture, classifier, a.transcriber, a.store, popts...)

	a.player = playback.New(cfg.PlaybackOptions(), playback.WithMetrics(a.metrics))
	a.checker = newChecker(cfg, encoder)

	a.server = server.New(serverConfig(snap))
	a.server.Use(observe.Middleware(a.metrics))
	if err := a.server.RegisterAPIHandler("GET /metrics", a.provider.Handler()); err != nil {
		return err
	}

	handler := api.New(api.Deps{
		Store:           a.store,
		Listener:        a.pipeline,
		Player:          a.player,
		Clipboard:       clipboard.NewManager(),
		Config:          cfg,
		ConfigPath:      a.configPath,
		BaseContext:     a.ctx,
		ListDevices:     audio.ListDevicesOnce,
		Preflight:       a.checker.Run,
		OnHotkeyChanged: a.registerHotkey,
		OnConfigChanged: a.applyConfig,
	})
	handler.RegisterRoutes(a.server.GetMux())
	return nil
}

func serverConfig(cfg *config.Config) server.Config {
	sc := server.DefaultConfig()
	sc.Port = cfg.Server.Port
	return sc
}

// newChecker builds the startup checks from the configuration
func newChecker(cfg *config.Config, encoder *audio.FFmpegEncoder) *preflight.Checker {
	snap := cfg.Clone()
	dataDir, err := cfg.DataPath()
	if err != nil {
		dataDir = snap.DataDir
	}

	c := &preflight.Checker{
		DataDir:        dataDir,
		CaptureMatch:   snap.Capture.DeviceMatch,
		PlaybackDevice: snap.Playback.DeviceName,
		OpenAIKey:      snap.Transcriber.OpenAIAPIKey != "",
		Encoder:        encoder,
		ListDevices:    audio.ListDevicesOnce,
	}
	for _, name := range append([]string{snap.Transcriber.Backend}, snap.Transcriber.Fallback...) {
		switch name {
		case recognition.BackendWhisper:
			c.WhisperURL = snap.Transcriber.WhisperURL
		case recognition.BackendOpenAI:
			c.UsesOpenAI = true
		}
	}
	return c
}

// openCapture opens the loopback source with the current capture settings
func (a *App) openCapture() (audio.FrameReader, error) {
	src, err := audio.OpenLoopback(a.config.CaptureOptions())
	if err != nil {
		if errors.Is(err, audio.ErrDeviceUnavailable) {
			a.notifier.DeviceNotFound()
		}
		return nil, err
	}
	slog.Info("capturing", "device", src.Device().Name)
	return src, nil
}

// resolveLoopback is replaced in tests
var resolveLoopback = audio.ResolveLoopback

// checkCapture checks for a loopback device without opening a stream
func (a *App) checkCapture() error {
	dev, err := resolveLoopback(a.config.CaptureOptions().DeviceMatch)
	if err != nil {
		if errors.Is(err, audio.ErrDeviceUnavailable) {
			a.notifier.DeviceNotFound()
		}
		return fmt.Errorf("no capture device: %w", err)
	}
	slog.Info("capture device available", "device", dev.Name)
	return nil
}

// onRecord runs on the capture goroutine after each persisted utterance
func (a *App) onRecord(ev recording.Event) {
	if ev.Result.OK() {
		a.notifier.UtteranceSaved(ev.Record.Text)
		return
	}
	a.notifier.TranscriptionFailed(ev.Result.Err.Error())
}

func (a *App) toggle() {
	wasListening := a.pipeline.Listening()
	if err := a.pipeline.Toggle(a.ctx); err != nil {
		slog.Error("failed to toggle listening", "err", err)
		return
	}
	if wasListening {
		a.notifier.ListeningStopped()
	} else {
		a.notifier.ListeningStarted()
	}
}

func (a *App) binding() hotkey.Binding {
	h := a.config.Clone().Hotkey
	return hotkey.Binding{Ctrl: h.Ctrl, Shift: h.Shift, Alt: h.Alt, Key: h.Key}
}

// registerHotkey replaces the current global hotkey with b
func (a *App) registerHotkey(b hotkey.Binding) error {
	a.hotkeyMu.Lock()
	defer a.hotkeyMu.Unlock()

	if a.hotkeys != nil {
		if err := a.hotkeys.Close(); err != nil {
			slog.Warn("failed to release previous hotkey", "err", err)
		}
	}

	m := hotkey.New()
	if err := m.Register(b); err != nil {
		return err
	}
	for _, c := range hotkey.CheckConflicts(m.Binding()) {
		slog.Warn("hotkey may conflict with a system shortcut", "binding", m.Binding().String(), "conflict", c.Name)
	}
	a.hotkeys = m

	go func(events <-chan hotkey.Event) {
		for ev := range events {
			if ev.Type == hotkey.Pressed {
				a.toggle()
			}
		}
	}(m.Events())

	slog.Info("hotkey registered", "binding", m.Binding().String())
	return nil
}

// applyConfig pushes settings that take effect without a restart
func (a *App) applyConfig(cfg *config.Config) {
	snap := cfg.Clone()
	a.notifier.SetEnabled(snap.Notifications)
	if level, err := logger.ParseLevel(snap.Log.Level); err == nil {
		a.log.SetLevel(level)
	}
}

// watchState mirrors the pipeline state on the tray icon
func (a *App) watchState(ctx context.Context) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.trayMgr != nil {
				a.trayMgr.SetState(trayState(a.pipeline.State()))
			}
		}
	}
}

func trayState(s recording.State) tray.State {
	return tray.StateFor(
		s != recording.Stopped,
		s == recording.Recording,
		s == recording.Processing,
	)
}

func (a *App) openUI() {
	url := a.server.URL()
	go func() {
		if err := openBrowser(url); err != nil {
			slog.Error("failed to open browser", "url", url, "err", err)
			fmt.Printf("Open %s in your browser\n", url)
		}
	}()
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// shutdown stops capture first so an in-flight utterance is persisted
func (a *App) shutdown() {
	slog.Info("shutting down")

	if err := a.pipeline.Stop(); err != nil && !errors.Is(err, recording.ErrNotListening) {
		slog.Error("failed to stop listening", "err", err)
	}
	if err := a.server.Stop(); err != nil {
		slog.Error("failed to stop HTTP server", "err", err)
	}

	a.hotkeyMu.Lock()
	if a.hotkeys != nil {
		a.hotkeys.Close()
	}
	a.hotkeyMu.Unlock()

	a.player.Wait()
	if a.trayMgr != nil {
		a.trayMgr.Quit()
	}
}

func (a *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if a.transcriber != nil {
		a.transcriber.Close()
	}
	if a.provider != nil {
		a.provider.Shutdown(ctx)
	}
	if a.log != nil {
		a.log.Close()
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
