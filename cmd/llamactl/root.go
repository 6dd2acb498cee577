package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llamactl/internal/common/logging"
	"llamactl/internal/config"
	"llamactl/internal/inproc"
	"llamactl/internal/notify"
	"llamactl/internal/pipeline"
)

// globals carries the persistent flags and the configuration resolved from them.
type globals struct {
	configPath string
	home       string
	logLevel   string
	logFormat  string

	cfg config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "llamactl",
		Short:         "Install llama.cpp, fetch LLaMA weights and run completions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.resolve(cmd, os.Getenv)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Config file (.yaml, .yml, .json or .toml)")
	pf.StringVar(&g.home, "home", "", "Installation directory (default ~/llama.cpp)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: trace|debug|info|warn|error|off")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: console|json")

	root.AddCommand(newInstallCmd(g), newQueryCmd(g), newInstalledCmd(g), newServeCmd(g))
	return root
}

// resolve layers file, environment and flags, in that order of increasing
// precedence, over the defaults.
func (g *globals) resolve(cmd *cobra.Command, getenv func(string) string) error {
	var cfg config.Config
	if g.configPath != "" {
		var err error
		if cfg, err = config.Load(g.configPath); err != nil {
			return err
		}
	}
	cfg, err := config.ApplyEnv(cfg, getenv)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("home") {
		cfg.Home = g.home
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = g.logFormat
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	g.cfg = cfg
	g.log = logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	return nil
}

// newPipeline builds a pipeline for the resolved configuration. gen may be nil.
func (g *globals) newPipeline(sink notify.Sink, gen pipeline.Generator) (*pipeline.Pipeline, error) {
	return pipeline.New(pipeline.Options{
		Home:             g.cfg.Home,
		SourceURL:        g.cfg.SourceURL,
		WeightsURL:       g.cfg.WeightsURL,
		PythonArchiveURL: g.cfg.PythonArchiveURL,
		Shell:            g.cfg.Shell,
		Generator:        gen,
		Sink:             sink,
		Logger:           g.log,
	})
}

// generator returns the in-process backend when configured. The second
// return value releases the loaded model.
func (g *globals) generator() (pipeline.Generator, func(), error) {
	if g.cfg.QueryBackend != config.BackendInproc {
		return nil, func() {}, nil
	}
	if !inproc.Available() {
		return nil, nil, fmt.Errorf("query_backend %q: %w", config.BackendInproc, inproc.ErrUnavailable)
	}
	gen := inproc.New(g.cfg.InprocContext, g.cfg.InprocThreads, g.log)
	return gen, func() { _ = gen.Close() }, nil
}
