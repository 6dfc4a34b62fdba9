// Command terminal-agent is an interactive chat front end: it assembles a
// supervisor agent from configuration and streams its events to the
// terminal.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/cobra"

	"github.com/jupyter-naas/abi-sub005/agent"
	"github.com/jupyter-naas/abi-sub005/checkpoint"
	"github.com/jupyter-naas/abi-sub005/config"
	"github.com/jupyter-naas/abi-sub005/core"
	"github.com/jupyter-naas/abi-sub005/intent"
	qdrantindex "github.com/jupyter-naas/abi-sub005/intent/qdrant"
	"github.com/jupyter-naas/abi-sub005/logging"
	"github.com/jupyter-naas/abi-sub005/model"
	anthropicmodel "github.com/jupyter-naas/abi-sub005/model/anthropic"
	openaimodel "github.com/jupyter-naas/abi-sub005/model/openai"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var devMode bool

	cmd := &cobra.Command{
		Use:   "terminal-agent",
		Short: "Chat with a supervisor agent from the terminal",
		Long: `terminal-agent assembles a supervisor agent from configuration
(model provider, optional Postgres persistence, optional Qdrant intent index)
and runs an interactive chat loop. Type /reset for a fresh thread, /exit to
quit.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if devMode {
				cfg.DevMode = true
			}
			return runChat(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().BoolVar(&devMode, "dev", false, "enable the developer prompt and read_makefile tool")
	return cmd
}

func runChat(ctx context.Context, cfg *config.Config) error {
	logger := buildLogger(cfg)

	a, err := buildAgent(ctx, cfg, logger)
	if err != nil {
		return err
	}

	fmt.Printf("Connected to %s. /reset starts a new thread, /exit quits.\n", a.Name())

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			a.Reset()
			fmt.Println("Started a new conversation thread.")
			continue
		}

		for ev := range a.StreamInvoke(ctx, line) {
			printEvent(ev)
		}
	}
	return scanner.Err()
}

func printEvent(ev core.StreamEvent) {
	switch ev.Event {
	case core.EventToolUsage:
		fmt.Printf("  [tools] %s\n", ev.Data)
	case core.EventToolResponse:
		fmt.Printf("  [result] %s\n", ev.Data)
	case core.EventMessage:
		fmt.Println(ev.Data)
	case core.EventError:
		fmt.Fprintln(os.Stderr, "  [error]", ev.Data)
	}
}

func buildLogger(cfg *config.Config) *logging.RouterLogger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     parseLevel(cfg.Logging.Level),
		Format:    cfg.Logging.Format,
		Output:    os.Stderr,
		Component: "terminal-agent",
	})
}

func parseLevel(level string) logging.LogLevel {
	switch level {
	case "debug":
		return logging.LogLevelDebug
	case "warn":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	default:
		return logging.LogLevelInfo
	}
}

// buildAgent wires the configured model, checkpoint store and, when the
// provider can embed, the intent pipeline.
func buildAgent(ctx context.Context, cfg *config.Config, logger logging.Logger) (*agent.Agent, error) {
	chatModel, err := buildModel(cfg)
	if err != nil {
		return nil, err
	}
	store := buildCheckpointer(ctx, cfg, logger)

	baseOpts := func(o *agent.Options) {
		o.SystemPrompt = cfg.Supervisor.SystemPrompt
		o.Checkpointer = store
		o.Logger = logger
		o.DevMode = cfg.DevMode
	}

	if cfg.Model.Provider != "openai" {
		return agent.New(cfg.Supervisor.Name, "terminal supervisor", chatModel, baseOpts)
	}

	// OpenAI can embed, so the supervisor gets intent routing.
	embedder := buildEmbedder(cfg)
	intentAgent, err := agent.NewIntentAgent(ctx, cfg.Supervisor.Name, "terminal supervisor", chatModel,
		func(o *agent.IntentOptions) {
			baseOpts(&o.Options)
			o.Embedder = embedder
			o.Threshold = cfg.Intent.Threshold
			o.ThresholdNeighbor = cfg.Intent.ThresholdNeighbor
			o.Index = buildIndex(ctx, cfg, logger)
		})
	if err != nil {
		return nil, err
	}
	return intentAgent.Agent, nil
}

func buildModel(cfg *config.Config) (model.ChatModel, error) {
	switch cfg.Model.Provider {
	case "openai":
		client := openaisdk.NewClient(clientOptions(cfg.Model.OpenAIAPIKey)...)
		return openaimodel.NewFromClient(&client, func(o *openaimodel.Options) {
			if cfg.Model.Name != "" {
				o.Model = cfg.Model.Name
			}
			o.Temperature = cfg.Model.Temperature
		}), nil
	case "anthropic":
		return anthropicmodel.New(func(o *anthropicmodel.Options) {
			if cfg.Model.Name != "" {
				o.Model = anthropic.Model(cfg.Model.Name)
			}
			o.Temperature = cfg.Model.Temperature
			o.APIKey = cfg.Model.AnthropicAPIKey
		}), nil
	case "mock":
		return model.NewMockModel("mock", "mock"), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
}

func clientOptions(apiKey string) []option.RequestOption {
	if apiKey == "" {
		return nil
	}
	return []option.RequestOption{option.WithAPIKey(apiKey)}
}

func buildEmbedder(cfg *config.Config) intent.Embedder {
	client := openaisdk.NewClient(clientOptions(cfg.Model.OpenAIAPIKey)...)
	return openaimodel.NewEmbedderFromClient(&client)
}

// buildIndex returns a Qdrant index when enabled and reachable, nil
// otherwise so the mapper falls back to its in-memory index.
func buildIndex(ctx context.Context, cfg *config.Config, logger logging.Logger) intent.Index {
	if !cfg.Qdrant.Enabled {
		return nil
	}
	index, err := qdrantindex.New(ctx, func(o *qdrantindex.Options) {
		o.Host = cfg.Qdrant.Host
		o.Port = cfg.Qdrant.Port
		o.APIKey = cfg.Qdrant.APIKey
		o.UseTLS = cfg.Qdrant.UseTLS
		o.Collection = cfg.Qdrant.Collection
		o.Logger = logger
	})
	if err != nil {
		logger.Warn("terminal.qdrant_unavailable", "error", err.Error(), "fallback", "memory index")
		return nil
	}
	return index
}

func buildCheckpointer(ctx context.Context, cfg *config.Config, logger logging.Logger) checkpoint.Store {
	if cfg.Postgres.URL == "" {
		return checkpoint.NewMemoryStore()
	}
	store, err := checkpoint.NewPostgresStore(ctx, cfg.Postgres.URL)
	if err != nil {
		logger.Warn("terminal.postgres_unavailable", "error", err.Error(), "fallback", "memory")
		return checkpoint.NewMemoryStore()
	}
	if err := store.Setup(ctx); err != nil {
		logger.Warn("terminal.postgres_setup_failed", "error", err.Error(), "fallback", "memory")
		store.Close()
		return checkpoint.NewMemoryStore()
	}
	return store
}
