// Companion - voice conversation companion with a web and terminal front-end.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-companion/internal/config"
	"github.com/teslashibe/go-companion/internal/log"
	"github.com/teslashibe/go-companion/pkg/audioio"
	"github.com/teslashibe/go-companion/pkg/companion"
)

type flags struct {
	configPath string
	addr       string
	terminal   bool
	noWeb      bool
	lang       string
	logLevel   string
	logFile    string
	audio      string
	store      string
	forceCloud bool
	autoListen bool
}

func main() {
	f := parseFlags()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fatalf("❌ Configuration error: %v", err)
	}
	applyFlags(cfg, f)
	if err := cfg.Validate(); err != nil {
		fatalf("❌ Configuration error: %v", err)
	}

	out, closeLog, err := logOutput(f)
	if err != nil {
		fatalf("❌ Log file: %v", err)
	}
	defer closeLog()
	logger := log.Setup(log.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: out})

	app, err := companion.New(cfg,
		companion.WithTerminal(f.terminal),
		companion.WithServer(!f.noWeb),
		companion.WithLogger(logger),
	)
	if err != nil {
		fatalf("❌ Configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		fatalf("❌ Initialization failed: %v", err)
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
}

// parseFlags parses command line flags.
func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&f.addr, "addr", "", "HTTP listen address (overrides config)")
	flag.BoolVar(&f.terminal, "tui", false, "Run the terminal front-end")
	flag.BoolVar(&f.noWeb, "no-web", false, "Disable the HTTP front-end")
	flag.StringVar(&f.lang, "lang", "", "Recognition language tag, e.g. en-US")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&f.logFile, "log-file", "", "Write logs to file (default companion.log with -tui)")
	flag.StringVar(&f.audio, "audio", "", "Audio backend: auto, command, mock")
	flag.StringVar(&f.store, "store", "", "Conversation log backend: sqlite, json, memory")
	flag.BoolVar(&f.forceCloud, "force-cloud", false, "Always use cloud transcription")
	flag.BoolVar(&f.autoListen, "auto-listen", false, "Listen again after each reply")
	flag.Parse()
	return f
}

// applyFlags layers explicitly set flags over the loaded config.
func applyFlags(cfg *config.Config, f flags) {
	set := map[string]bool{}
	flag.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if f.lang != "" {
		cfg.Session.Language = f.lang
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.audio != "" {
		cfg.Audio.Backend = audioio.Backend(f.audio)
	}
	if f.store != "" {
		cfg.Store.Backend = f.store
	}
	if set["force-cloud"] {
		cfg.Session.ForceCloud = f.forceCloud
	}
	if set["auto-listen"] {
		cfg.Session.AutoListen = f.autoListen
	}
}

// logOutput keeps logs off the terminal while the TUI owns it.
func logOutput(f flags) (io.Writer, func(), error) {
	path := f.logFile
	if path == "" && f.terminal {
		path = "companion.log"
	}
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { file.Close() }, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
