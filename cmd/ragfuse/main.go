// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/ragfuse"
	"github.com/poiesic/ragfuse/ai"
	"github.com/poiesic/ragfuse/config"
	"github.com/poiesic/ragfuse/core"
	"github.com/poiesic/ragfuse/search"
)

const configKey = "config"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(nil).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error (%s): %v\n", core.Classify(err), err)
		stop()
		os.Exit(1)
	}
}

// newApp builds the CLI. A nil provider selects the OpenAI-compatible
// services named in the configuration.
func newApp(provider ai.AIProvider) *cli.App {
	return &cli.App{
		Name:  "ragfuse",
		Usage: "Hybrid retrieval and answer engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error); defaults to the config value",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file",
				Value:   "ragfuse.yaml",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB corpus directory (overrides storage.path)",
			},
			&cli.BoolFlag{
				Name:  "memory",
				Usage: "Keep the corpus in memory only",
			},
		},
		Before: loadConfig,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Chunk, embed and index text",
				ArgsUsage: "[file...]",
				Action:    withEngine(provider, ingestCommand),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "text",
						Aliases: []string{"t"},
						Usage:   "Text to ingest",
					},
					&cli.StringFlag{
						Name:  "file",
						Usage: "File to ingest; - reads stdin",
					},
					&cli.StringFlag{
						Name:    "mode",
						Aliases: []string{"m"},
						Usage:   "Chunking mode (fixed, paragraph)",
					},
					&cli.IntFlag{
						Name:  "size",
						Usage: "Chunk size in characters",
					},
					&cli.IntFlag{
						Name:  "overlap",
						Usage: "Chunk overlap in characters",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Answer a question from the indexed corpus",
				ArgsUsage: "<question>",
				Action:    withEngine(provider, queryCommand),
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "trace",
						Usage: "Log every pipeline state and intermediate ranking",
					},
				},
			},
			{
				Name:   "docs",
				Usage:  "List all indexed chunks",
				Action: withEngine(provider, docsCommand),
			},
			{
				Name:   "reembed",
				Usage:  "Reembed every chunk with the configured embedding model",
				Action: withEngine(provider, reembedCommand),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name (overrides ai.embedding_model)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to embed in each batch",
					},
				},
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration",
				Action: configCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "write",
						Usage: "Write the configuration to this path instead of printing it",
					},
				},
			},
		},
	}
}

// loadConfig reads .env and the config file, applies global flags and installs the logger.
func loadConfig(c *cli.Context) error {
	if err := config.LoadEnvFiles(); err != nil {
		return err
	}
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("db") {
		cfg.Storage.Path = c.String("db")
	}
	if c.Bool("memory") {
		cfg.Storage.Path = ""
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := setupLogger(cfg.LogLevel); err != nil {
		return err
	}
	c.App.Metadata = map[string]any{configKey: cfg}
	return nil
}

func setupLogger(levelStr string) error {
	// Map string to slog.Level
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

type engineAction func(c *cli.Context, e *ragfuse.Engine) error

// withEngine opens an engine for the duration of action.
func withEngine(provider ai.AIProvider, action engineAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg := configFrom(c)
		if c.Command.Name == "reembed" {
			if c.IsSet("embedding-model") {
				cfg.AI.EmbeddingModel = c.String("embedding-model")
			}
			if c.IsSet("batch-size") {
				cfg.Ingestion.BatchSize = c.Int("batch-size")
			}
		}

		opts := []ragfuse.Option{ragfuse.WithConfig(cfg)}
		if provider != nil {
			opts = append(opts, ragfuse.WithProvider(provider))
		}
		engine, err := ragfuse.Open(c.Context, opts...)
		if err != nil {
			return err
		}
		defer engine.Close()
		return action(c, engine)
	}
}

func ingestCommand(c *cli.Context, e *ragfuse.Engine) error {
	text, err := ingestText(c)
	if err != nil {
		return err
	}

	req := e.NewRequest(text)
	if c.IsSet("mode") {
		req.Mode = c.String("mode")
	}
	if c.IsSet("size") {
		req.ChunkSize = c.Int("size")
	}
	if c.IsSet("overlap") {
		req.ChunkOverlap = c.Int("overlap")
	}

	result, err := e.Ingest(c.Context, req)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, result)
}

// ingestText returns the --text value, or the contents of --file or the
// argument files joined by blank lines.
func ingestText(c *cli.Context) (string, error) {
	if c.IsSet("text") {
		return c.String("text"), nil
	}

	paths := c.Args().Slice()
	if c.IsSet("file") {
		paths = append([]string{c.String("file")}, paths...)
	}
	if len(paths) == 0 {
		return "", fmt.Errorf("%w: %w", core.ErrInput, core.ErrNoText)
	}

	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		var data []byte
		var err error
		if p == "-" {
			data, err = io.ReadAll(c.App.Reader)
		} else {
			data, err = os.ReadFile(p)
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", p, err)
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n\n"), nil
}

func queryCommand(c *cli.Context, e *ragfuse.Engine) error {
	query := strings.Join(c.Args().Slice(), " ")

	var monitor search.QueryMonitor
	if c.Bool("trace") {
		monitor = search.NewLogMonitor(slog.Default())
	}
	result, err := e.QueryWithMonitor(c.Context, query, monitor)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, result)
}

func docsCommand(c *cli.Context, e *ragfuse.Engine) error {
	return writeJSON(c.App.Writer, e.Documents())
}

func reembedCommand(c *cli.Context, e *ragfuse.Engine) error {
	result, err := e.Reembed(c.Context, c.App.ErrWriter)
	if err != nil {
		return err
	}
	return writeJSON(c.App.Writer, result)
}

func configCommand(c *cli.Context) error {
	cfg := configFrom(c)
	if path := c.String("write"); path != "" {
		return config.Save(path, cfg)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = c.App.Writer.Write(data)
	return err
}

func writeJSON(w io.Writer, v any) error {
	if w == nil {
		return errors.New("no output writer")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
