// Package companion wires the conversation session to real devices and
// services and manages their lifecycle.
//
// Every provider is optional. Without speech recognition credentials the
// session accepts typed input only; without speech synthesis it replies in
// text; without language model credentials the rule tier answers.
package companion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-companion/internal/config"
	"github.com/teslashibe/go-companion/internal/tui"
	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/calibration"
	"github.com/teslashibe/go-companion/pkg/convlog"
	"github.com/teslashibe/go-companion/pkg/inference"
	"github.com/teslashibe/go-companion/pkg/playback"
	"github.com/teslashibe/go-companion/pkg/recognition"
	"github.com/teslashibe/go-companion/pkg/response"
	"github.com/teslashibe/go-companion/pkg/session"
	"github.com/teslashibe/go-companion/pkg/tts"
	"github.com/teslashibe/go-companion/pkg/voice"
	"github.com/teslashibe/go-companion/pkg/web"
)

// App owns every component of a running companion.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// Front-ends
	terminal bool
	serve    bool

	// Conversation log
	writer *convlog.AsyncWriter

	// Response tiers
	primary   inference.Provider
	secondary inference.Provider
	pipeline  *response.Pipeline

	// Voice output
	player *playback.Controller

	// Voice input
	calibrator *calibration.Calibrator
	recognizer *recognition.Adapter

	session *session.Orchestrator
	server  *web.Server

	closers  []io.Closer
	shutdown sync.Once
}

// Option configures an App.
type Option func(*App)

// WithTerminal runs the terminal front-end in Run.
func WithTerminal(on bool) Option {
	return func(a *App) { a.terminal = on }
}

// WithServer serves the HTTP front-end in Run. Default: true.
func WithServer(on bool) Option {
	return func(a *App) { a.serve = on }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an App from a validated configuration.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		logger: slog.Default(),
		serve:  true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if !a.terminal && !a.serve {
		return nil, errors.New("companion: no front-end enabled")
	}
	a.logger = a.logger.With("component", "companion.app")
	return a, nil
}

// Init builds every component. Components whose credentials are missing
// are skipped with a warning; only storage and session failures are fatal.
func (a *App) Init(ctx context.Context) error {
	if err := a.initStore(); err != nil {
		return fmt.Errorf("conversation log: %w", err)
	}

	a.initResponse(ctx)

	if err := a.initSpeech(); err != nil {
		a.logger.Warn("voice output disabled", "error", err)
	}

	if err := a.initRecognition(ctx); err != nil {
		a.logger.Warn("voice input disabled", "error", err)
	}

	if err := a.initSession(); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	if a.serve {
		a.server = web.NewServer(a.session,
			web.WithAddr(a.cfg.Server.Addr),
			web.WithStaticDir(a.cfg.Server.StaticDir),
			web.WithLogger(a.logger),
		)
	}
	return nil
}

func (a *App) initStore() error {
	store, err := convlog.Open(a.cfg.Store.Backend, a.cfg.Store.Path)
	if err != nil {
		return err
	}
	a.writer = convlog.NewAsyncWriter(store, convlog.WithLogger(a.logger))
	a.logger.Info("conversation log ready", "backend", a.cfg.Store.Backend)
	return nil
}

func (a *App) initResponse(ctx context.Context) {
	rc := a.cfg.Response

	if rc.Primary.APIKey != "" {
		p, err := inference.NewGemini(ctx, providerOptions(rc.Primary, a.logger)...)
		if err != nil {
			a.logger.Warn("primary tier unavailable", "error", err)
		} else {
			a.primary = p
			a.closers = append(a.closers, p)
		}
	}

	if rc.Secondary.BaseURL != "" {
		p, err := inference.NewClient(providerOptions(rc.Secondary, a.logger)...)
		if err != nil {
			a.logger.Warn("secondary tier unavailable", "error", err)
		} else {
			a.secondary = p
			a.closers = append(a.closers, p)
		}
	}

	opts := []response.Option{
		response.WithConfig(a.cfg.VoiceConfig()),
		response.WithLogger(a.logger),
	}
	if a.primary != nil {
		opts = append(opts, response.WithPrimary(a.primary))
	}
	if a.secondary != nil {
		opts = append(opts, response.WithSecondary(a.secondary))
	}
	a.pipeline = response.New(opts...)

	a.logger.Info("response pipeline ready",
		"primary", a.primary != nil,
		"secondary", a.secondary != nil,
	)
}

func providerOptions(pc config.ProviderConfig, logger *slog.Logger) []inference.Option {
	opts := []inference.Option{inference.WithLogger(logger)}
	if pc.APIKey != "" {
		opts = append(opts, inference.WithAPIKey(pc.APIKey))
	}
	if pc.BaseURL != "" {
		opts = append(opts, inference.WithBaseURL(pc.BaseURL))
	}
	if pc.Model != "" {
		opts = append(opts, inference.WithModel(pc.Model))
	}
	if pc.Temperature > 0 {
		opts = append(opts, inference.WithTemperature(pc.Temperature))
	}
	if pc.MaxTokens > 0 {
		opts = append(opts, inference.WithMaxTokens(pc.MaxTokens))
	}
	return opts
}

// initSpeech builds the ElevenLabs then OpenAI synthesis chain.
func (a *App) initSpeech() error {
	var providers []tts.Provider
	lang := a.cfg.Session.Language

	if sc := a.cfg.TTS.ElevenLabs; sc.APIKey != "" {
		p, err := tts.NewElevenLabs(speechOptions(tts.ProviderElevenLabs, sc, lang, a.logger)...)
		if err != nil {
			a.logger.Warn("elevenlabs unavailable", "error", err)
		} else {
			providers = append(providers, p)
		}
	}
	if sc := a.cfg.TTS.OpenAI; sc.APIKey != "" {
		p, err := tts.NewOpenAI(speechOptions(tts.ProviderOpenAI, sc, lang, a.logger)...)
		if err != nil {
			a.logger.Warn("openai speech unavailable", "error", err)
		} else {
			providers = append(providers, p)
		}
	}
	if len(providers) == 0 {
		return errors.New("no speech provider configured")
	}

	chain, err := tts.NewChainWithLogger(a.logger, providers...)
	if err != nil {
		return err
	}

	sinkCfg := a.cfg.Audio
	sinkCfg.SampleRate = tts.PCM24.SampleRate
	sinkCfg.Channels = tts.PCM24.Channels
	sink, err := audioio.NewSink(sinkCfg, a.logger)
	if err != nil {
		chain.Close()
		return fmt.Errorf("speaker: %w", err)
	}

	a.closers = append(a.closers, chain)
	a.player = playback.New(chain, sink, playback.WithLogger(a.logger))
	a.logger.Info("voice output ready", "providers", len(providers))
	return nil
}

func speechOptions(provider string, sc config.SpeechConfig, lang string, logger *slog.Logger) []tts.Option {
	name := sc.Voice
	if name == "" {
		name = tts.DefaultVoice(provider)
	}
	opts := []tts.Option{
		tts.WithAPIKey(sc.APIKey),
		tts.WithVoice(tts.ResolveVoice(provider, name)),
		tts.WithLogger(logger),
	}
	if sc.Model != "" {
		opts = append(opts, tts.WithModel(sc.Model))
	}
	if provider == tts.ProviderElevenLabs && lang != "" {
		opts = append(opts, tts.WithLanguage(voice.Language(lang).Base()))
	}
	return opts
}

// initRecognition builds the native realtime capability and the cloud
// fallback over the same microphone.
func (a *App) initRecognition(ctx context.Context) error {
	vc := a.cfg.VoiceConfig()
	open := audioio.Opener(a.cfg.Audio, a.logger)
	rc := a.cfg.Recognition

	var native, cloud recognition.Capability

	if rc.Realtime.Enabled && rc.Realtime.APIKey != "" {
		native = recognition.NewRealtime(open, recognition.RealtimeConfig{
			APIKey:     rc.Realtime.APIKey,
			URL:        rc.Realtime.URL,
			Model:      rc.Realtime.Model,
			SoundLevel: vc.SoundAmplitude,
			Logger:     a.logger,
		})
	}

	transcriber, err := a.transcriber(ctx)
	if err != nil {
		a.logger.Warn("cloud transcription unavailable", "provider", rc.Cloud.Provider, "error", err)
	}
	if transcriber != nil {
		cloud = recognition.NewCloud(open, transcriber,
			recognition.WithRecordLimit(vc.CloudRecordLimit),
			recognition.WithSoundLevel(vc.SoundAmplitude),
			recognition.WithCloudLogger(a.logger),
		)
	}

	if native == nil && cloud == nil {
		return errors.New("no recognition service configured")
	}

	opts := []recognition.Option{
		recognition.WithConfig(vc),
		recognition.WithDefaultLanguage(voice.Language(a.cfg.Session.Language)),
		recognition.WithLogger(a.logger),
	}
	if native != nil {
		opts = append(opts, recognition.WithNative(native))
	}
	if cloud != nil {
		opts = append(opts, recognition.WithCloud(cloud))
	}
	a.recognizer = recognition.NewAdapter(opts...)
	a.calibrator = calibration.New(open,
		calibration.FromConfig(vc),
		calibration.WithProcessing(a.cfg.Audio.Processing()),
		calibration.WithLogger(a.logger),
	)

	a.logger.Info("voice input ready", "native", native != nil, "cloud", cloud != nil)
	return nil
}

func (a *App) transcriber(ctx context.Context) (recognition.Transcriber, error) {
	cc := a.cfg.Recognition.Cloud
	switch cc.Provider {
	case "google":
		if cc.Google.APIKey == "" && cc.Google.CredentialsFile == "" {
			return nil, nil
		}
		g, err := recognition.NewGoogleSpeech(ctx, recognition.GoogleSpeechConfig{
			APIKey:          cc.Google.APIKey,
			CredentialsFile: cc.Google.CredentialsFile,
			Model:           cc.Google.Model,
			Logger:          a.logger,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		if cc.Whisper.APIKey == "" && cc.Whisper.BaseURL == "" {
			return nil, nil
		}
		return recognition.NewWhisper(recognition.WhisperConfig{
			BaseURL: cc.Whisper.BaseURL,
			APIKey:  cc.Whisper.APIKey,
			Model:   cc.Whisper.Model,
			Logger:  a.logger,
		}), nil
	}
}

func (a *App) initSession() error {
	sc := a.cfg.Session
	opts := []session.Option{
		session.WithConfig(a.cfg.VoiceConfig()),
		session.WithResponder(a.pipeline),
		session.WithMessageLog(a.writer),
		session.WithHistory(a.writer),
		session.WithAutoListen(sc.AutoListen),
		session.WithVoiceOutput(sc.VoiceOutput),
		session.WithForceCloud(sc.ForceCloud),
		session.WithLogger(a.logger),
	}
	if sc.Language != "" {
		opts = append(opts, session.WithLanguage(voice.Language(sc.Language)))
	}
	if a.recognizer != nil {
		opts = append(opts, session.WithRecognizer(a.recognizer), session.WithCalibrator(a.calibrator))
	}
	if a.player != nil {
		opts = append(opts, session.WithSpeaker(a.player))
	}

	s, err := session.New(opts...)
	if err != nil {
		return err
	}
	a.session = s
	return nil
}

// Session returns the running session. Nil before Init.
func (a *App) Session() *session.Orchestrator { return a.session }

// Server returns the HTTP front-end. Nil before Init or when disabled.
func (a *App) Server() *web.Server { return a.server }

// Run serves the enabled front-ends until ctx is cancelled or the
// terminal exits.
func (a *App) Run(ctx context.Context) error {
	if a.session == nil {
		return errors.New("companion: Run called before Init")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	running := 0

	if a.server != nil {
		running++
		go func() {
			err := a.server.Start(ctx)
			if ctx.Err() != nil {
				err = nil
			}
			errc <- err
		}()
	}
	if a.terminal {
		running++
		go func() {
			errc <- tui.Run(ctx, a.session, tui.WithLogger(a.logger))
			// Quitting the terminal ends the app.
			cancel()
		}()
	}

	a.logger.Info("companion running",
		"addr", a.cfg.Server.Addr,
		"terminal", a.terminal,
		"language", a.session.Status().Language,
	)

	var errs []error
	for ; running > 0; running-- {
		if err := <-errc; err != nil {
			errs = append(errs, err)
			cancel()
		}
	}
	return errors.Join(errs...)
}

// Shutdown stops the session, flushes the conversation log and releases
// every provider. Safe to call more than once.
func (a *App) Shutdown() {
	a.shutdown.Do(a.stop)
}

func (a *App) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if a.session != nil {
			if err := a.session.Close(); err != nil {
				a.logger.Warn("session close failed", "error", err)
			}
		} else {
			if a.player != nil {
				a.player.Close()
			}
			if a.writer != nil {
				a.writer.Close()
			}
		}
		for _, c := range a.closers {
			if err := c.Close(); err != nil {
				a.logger.Warn("close failed", "error", err)
			}
		}
	}()

	select {
	case <-done:
		a.logger.Info("companion stopped")
	case <-ctx.Done():
		a.logger.Warn("shutdown timed out")
	}
}
