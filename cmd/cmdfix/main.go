package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"cmdfix/internal/config"
	"cmdfix/internal/diag"
	"cmdfix/internal/engine"
	"cmdfix/internal/fifo"
	"cmdfix/internal/llm"
	"cmdfix/internal/render"
	"cmdfix/internal/run"
	"cmdfix/internal/shellexec"
	"cmdfix/internal/tools"
	"cmdfix/internal/version"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	exitCode := 0
	root := newRootCmd(&exitCode)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	// The process always mirrors the wrapped command's exit status.
	os.Exit(exitCode)
}

func newRootCmd(exitCode *int) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cmdfix <command> [args...]",
		Short:         "cmdfix - run a command and stream an LLM-suggested fix when it fails",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args, " ")
			cfg, err := config.Load(cmd)
			if err != nil {
				return err
			}

			logger := buildLogger(cfg)
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			commandResult, spawnErr := shellexec.Run(ctx, command, 0)
			if spawnErr != nil {
				commandResult.Stderr += spawnErr.Error()
			}
			fmt.Fprint(os.Stdout, commandResult.Stdout)
			fmt.Fprint(os.Stderr, commandResult.Stderr)
			*exitCode = commandResult.ExitCode
			if commandResult.ExitCode == 0 {
				return nil
			}

			apiKey := os.Getenv("CMDFIX_API_KEY")
			if apiKey == "" {
				apiKey = os.Getenv("OPENAI_API_KEY")
			}
			mockMode := os.Getenv("CMDFIX_MOCK_LLM") == "1"
			if apiKey == "" && !mockMode {
				fmt.Fprintln(os.Stderr, "CMDFIX_API_KEY is required")
				return nil
			}

			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()

			details := diag.Gather(ctx, command, commandResult, cfg.ToolMaxBytes)
			if err := diag.WriteLast(details, diag.DefaultLastErrorPath()); err != nil {
				logger.Warn("failed to write last-error record", zap.Error(err))
			}

			registry := tools.DefaultRegistry()
			dispatcher := tools.NewDispatcher(registry, tools.Meta{
				Timeout:        cfg.ToolTimeout,
				MaxOutputBytes: cfg.ToolMaxBytes,
			}, logger)

			var client llm.Client
			if mockMode {
				client = llm.NewMockClient()
			} else {
				client = llm.NewOpenAIClient(apiKey, cfg.BaseURL)
			}

			historyLines := cfg.HistoryLines
			if cfg.NoHistory {
				historyLines = 0
			}
			messages := run.InitialMessages(details, historyLines, cfg.Engine == "twocall")

			var eng engine.Engine
			if cfg.Engine == "twocall" {
				eng = engine.NewTwoCallEngine(client, cfg.Model, messages, registry.OpenAITools())
			} else {
				eng = engine.NewStreamEngine(client, cfg.Model, messages, registry.OpenAITools())
			}

			var sink run.Sink
			pipe, err := fifo.Open(fifo.Options{
				Path:        cfg.FifoPath,
				NonBlocking: cfg.FifoNonBlocking,
				OpenTimeout: cfg.FifoOpenTimeout,
			}, logger)
			if err != nil {
				// Delivery degrades; the run still happens.
				logger.Warn("suggestion stream unavailable", zap.Error(err))
			} else {
				sink = pipe
			}

			var renderer render.Renderer
			if !cfg.Quiet {
				renderer = render.NewStderrRenderer(os.Stderr, cfg.Verbose, cfg.Quiet)
			}

			ctrl := run.NewController(eng, dispatcher, sink, renderer, logger, cfg.MaxSteps)
			result, runErr := ctrl.Run(ctx, command, commandResult.ExitCode, cfg.Model)
			if cfg.PersistRuns {
				persistRun(logger, result)
			}
			if runErr != nil {
				logger.Error("suggestion run did not complete", zap.Error(runErr))
			}
			return nil
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().String("model", config.DefaultModel, "Model name")
	cmd.Flags().String("engine", config.DefaultEngine, "Engine protocol (stream or twocall)")
	cmd.Flags().String("base-url", "", "OpenAI-compatible API base URL")
	cmd.Flags().Int("max-steps", config.DefaultMaxSteps, "Maximum tool-call batches")
	cmd.Flags().String("timeout", config.DefaultTimeout.String(), "Overall run timeout (e.g. 120s)")
	cmd.Flags().String("tool-timeout", config.DefaultToolTimeout.String(), "Per tool-call timeout")
	cmd.Flags().String("fifo-path", config.DefaultFifoPath, "Named pipe for suggestion delivery")
	cmd.Flags().Bool("fifo-nonblock", true, "Open the pipe non-blocking with a bounded wait for a consumer")
	cmd.Flags().String("fifo-open-timeout", config.DefaultFifoOpenTimeout.String(), "How long to wait for a pipe consumer")
	cmd.Flags().Int("history-lines", config.DefaultHistoryLines, "Number of shell history lines to include")
	cmd.Flags().Bool("no-history", false, "Disable shell history context")
	cmd.Flags().Bool("quiet", false, "Suppress progress output")
	cmd.Flags().Bool("verbose", false, "Enable verbose progress and logging")
	cmd.Flags().String("log-file", "", "Write structured logs to a file")

	return cmd
}

func buildLogger(cfg config.Config) *zap.Logger {
	if cfg.LogFile != "" {
		zcfg := zap.NewProductionConfig()
		zcfg.OutputPaths = []string{cfg.LogFile}
		zcfg.ErrorOutputPaths = []string{cfg.LogFile}
		if cfg.Verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		if logger, err := zcfg.Build(); err == nil {
			return logger
		}
	}
	if cfg.Verbose {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	return zap.NewNop()
}

func persistRun(logger *zap.Logger, result run.Result) {
	home, err := os.UserHomeDir()
	if err != nil {
		logger.Warn("failed to get home dir", zap.Error(err))
		return
	}
	path := filepath.Join(home, ".local", "share", "cmdfix", "runs")
	if err := os.MkdirAll(path, 0o755); err != nil {
		logger.Warn("failed to create run directory", zap.Error(err))
		return
	}
	file := filepath.Join(path, result.RunID+".json")
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Warn("failed to marshal run record", zap.Error(err))
		return
	}
	if err := os.WriteFile(file, payload, 0o600); err != nil {
		logger.Warn("failed to write run record", zap.Error(err))
	}
}
