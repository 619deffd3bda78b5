package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"llamad/internal/config"
	"llamad/internal/controller"
	"llamad/internal/engine"
)

// newBinding is swapped out in tests.
var newBinding = engine.NewLlama

type globalOpts struct {
	configPath string
	logLevel   string
	logJSON    bool
	stderr     io.Writer
}

// engineFlags are shared by every command that drives the engine.
type engineFlags struct {
	modelsDir         string
	contextSize       int
	threads           int
	maxPromptTokens   int
	maxTokens         int
	unloadOnFatalEval bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{stderr: os.Stderr}
	root := &cobra.Command{
		Use:           "llamad",
		Short:         "Serve a local llama.cpp model over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("LLAMAD_CONFIG"), "Config file (.yaml, .yml, .json, .toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults LLAMAD_LOG_LEVEL or info)")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Emit JSON logs instead of console output")

	root.AddCommand(newServeCmd(opts), newGenerateCmd(opts), newModelsCmd(opts))
	return root
}

func (e *engineFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&e.modelsDir, "models-dir", "", "Directory to scan for *.gguf model files (defaults LLAMAD_MODELS_DIR or ~/models/llm)")
	fs.IntVar(&e.contextSize, "context-size", 0, "Context window in tokens")
	fs.IntVar(&e.threads, "threads", 0, "Compute threads (0 = logical CPU count)")
	fs.IntVar(&e.maxPromptTokens, "max-prompt-tokens", 0, "Reject prompts longer than this many tokens")
	fs.IntVar(&e.maxTokens, "max-tokens", 0, "Maximum tokens generated per request")
	fs.BoolVar(&e.unloadOnFatalEval, "unload-on-fatal-eval", false, "Unload the model after a fatal evaluation error")
}

// resolveConfig layers the config file, environment and explicitly set flags
// (in that order of increasing precedence) over the defaults.
func resolveConfig(cmd *cobra.Command, opts *globalOpts, ef *engineFlags) (config.Config, error) {
	var cfg config.Config
	if opts.configPath != "" {
		c, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	if v := os.Getenv("LLAMAD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("LLAMAD_MODELS_DIR"); v != "" {
		cfg.ModelsDir = v
	}
	if v := os.Getenv("LLAMAD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := splitCSV(os.Getenv("LLAMAD_CORS_ORIGINS")); len(v) > 0 {
		cfg.CORSOrigins = v
	}

	fs := cmd.Flags()
	if fs.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if ef != nil {
		if fs.Changed("models-dir") {
			cfg.ModelsDir = ef.modelsDir
		}
		if fs.Changed("context-size") {
			cfg.ContextSize = ef.contextSize
		}
		if fs.Changed("threads") {
			cfg.Threads = ef.threads
		}
		if fs.Changed("max-prompt-tokens") {
			cfg.MaxPromptTokens = ef.maxPromptTokens
		}
		if fs.Changed("max-tokens") {
			cfg.MaxTokens = ef.maxTokens
		}
		if fs.Changed("unload-on-fatal-eval") {
			cfg.UnloadOnFatalEval = ef.unloadOnFatalEval
		}
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

func newLogger(opts *globalOpts, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	var w io.Writer = opts.stderr
	if !opts.logJSON {
		w = zerolog.ConsoleWriter{Out: opts.stderr, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

func controllerConfig(cfg config.Config, log *zerolog.Logger) controller.Config {
	return controller.Config{
		Binding:           newBinding(),
		ContextSize:       cfg.ContextSize,
		Threads:           cfg.Threads,
		MaxPromptTokens:   cfg.MaxPromptTokens,
		MaxTokens:         cfg.MaxTokens,
		StreamBuffer:      cfg.StreamBuffer,
		UnloadOnFatalEval: cfg.UnloadOnFatalEval,
		Logger:            log,
	}
}

// splitCSV splits a comma-separated list, trimming blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
