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
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/recall"
	"github.com/poiesic/recall/chunker"
	"github.com/poiesic/recall/config"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/memory"
	"github.com/poiesic/recall/reindex"
	"github.com/poiesic/recall/tasks"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "recall",
		Usage: "Hybrid semantic memory over documents and notes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML settings file",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
			},
			&cli.StringFlag{
				Name:  "vectors",
				Usage: "Path to the vector index directory",
			},
			&cli.Uint64Flag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Id of the user to act as",
				EnvVars: []string{"RECALL_USER"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "user",
				Usage:     "Create a user",
				ArgsUsage: "<name>",
				Action:    userCommand,
			},
			{
				Name:      "group",
				Usage:     "Create a group, or add a member to one",
				ArgsUsage: "<name>",
				Action:    groupCommand,
				Flags: []cli.Flag{
					&cli.Uint64SliceFlag{
						Name:  "member",
						Usage: "Id of a user to add; repeatable",
					},
					&cli.Uint64Flag{
						Name:  "join",
						Usage: "Add the members to this existing group instead of creating one",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "Turn a text file, or a JSON document of pages, into a memory store",
				ArgsUsage: "<file>",
				Action:    ingestCommand,
			},
			{
				Name:      "search",
				Usage:     "Search visible memories",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum score for a result",
					},
					&cli.Uint64Flag{
						Name:  "group",
						Usage: "Search only this group's memories",
					},
					&cli.BoolFlag{
						Name:  "personal",
						Usage: "With --group, also search your own memories",
					},
					&cli.Uint64Flag{
						Name:  "store",
						Usage: "Search only this store",
					},
				},
			},
			{
				Name:   "stores",
				Usage:  "List visible memory stores",
				Action: storesCommand,
			},
			{
				Name:   "remember",
				Usage:  "Create a memory, routed to the best store unless --store is given",
				Action: rememberCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "title",
						Usage:    "Memory title",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "content",
						Usage:    "Memory content",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "description",
						Usage: "One sentence description; synthesized when empty",
					},
					&cli.Uint64Flag{
						Name:  "store",
						Usage: "Store to add the memory to",
					},
					&cli.StringSliceFlag{
						Name:  "tag",
						Usage: "Tag; repeatable",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the vector index from the database",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of memories to process in each batch",
						Value: reindex.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N memories",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "restart",
						Usage: "Ignore any checkpoint left by an interrupted run",
					},
				},
			},
		},
	}
}

// loadSettings reads the settings file, then the environment, then the global flags.
func loadSettings(c *cli.Context) (*config.Settings, error) {
	s, err := config.Load(c.String("config"), c.IsSet("config"))
	if err != nil {
		return nil, err
	}
	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if c.IsSet("db") {
		s.DBPath = c.String("db")
	}
	if c.IsSet("vectors") {
		s.VectorPath = c.String("vectors")
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

func openEngine(c *cli.Context) (*recall.Engine, error) {
	s, err := loadSettings(c)
	if err != nil {
		return nil, err
	}
	return recall.Open(s, recall.WithLogger(slog.Default()))
}

func currentCaller(ctx context.Context, c *cli.Context, e *recall.Engine) (core.Caller, error) {
	id := c.Uint64("user")
	if id == 0 {
		return core.Caller{}, fmt.Errorf("--user is required")
	}
	return e.Caller(ctx, core.ID(id))
}

func userCommand(c *cli.Context) error {
	name := strings.TrimSpace(c.Args().First())
	if name == "" {
		return fmt.Errorf("user name is required")
	}
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	user, err := e.CreateUser(c.Context, name)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	fmt.Printf("%d\t%s\n", user.Id, user.Name)
	return nil
}

func groupCommand(c *cli.Context) error {
	name := strings.TrimSpace(c.Args().First())
	join := core.ID(c.Uint64("join"))
	if name == "" && join == 0 {
		return fmt.Errorf("group name is required")
	}
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	members := make([]core.ID, 0, len(c.Uint64Slice("member")))
	for _, m := range c.Uint64Slice("member") {
		members = append(members, core.ID(m))
	}

	if join != 0 {
		for _, m := range members {
			if err := e.AddGroupMember(c.Context, join, m); err != nil {
				return fmt.Errorf("failed to add user %d to group %d: %w", m, join, err)
			}
		}
		return nil
	}

	group, err := e.CreateGroup(c.Context, name, members...)
	if err != nil {
		return fmt.Errorf("failed to create group: %w", err)
	}
	fmt.Printf("%d\t%s\n", group.Id, group.Name)
	return nil
}

// readDocument loads path as a JSON document of pages when it ends in .json and
// as flat text otherwise.
func readDocument(path string) (doc chunker.Document, paged bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return chunker.Document{}, false, err
	}
	source := filepath.Base(path)
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return chunker.Document{Source: source, Pages: []chunker.Page{{Text: string(data)}}}, false, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return chunker.Document{}, false, fmt.Errorf("parsing %s: %w", path, err)
	}
	if doc.Source == "" {
		doc.Source = source
	}
	if len(doc.Pages) == 0 {
		return chunker.Document{}, false, fmt.Errorf("%s has no pages", path)
	}
	return doc, true, nil
}

func ingestCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("file is required")
	}
	doc, paged, err := readDocument(path)
	if err != nil {
		return err
	}

	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()
	caller, err := currentCaller(c.Context, c, e)
	if err != nil {
		return err
	}

	var id string
	if paged {
		id, err = e.Ingest(caller, doc)
	} else {
		id, err = e.IngestText(caller, doc.Source, doc.Pages[0].Text)
	}
	if err != nil {
		return fmt.Errorf("failed to queue ingestion: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Ingesting %s (task %s)\n", doc.Source, id)

	status, err := e.Tasks().Wait(c.Context, id)
	if err != nil {
		return err
	}
	if status.State != tasks.StateCompleted {
		return fmt.Errorf("ingestion failed: %s", status.Error)
	}
	fmt.Printf("store %s\n", status.Result)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is required")
	}
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()
	caller, err := currentCaller(c.Context, c, e)
	if err != nil {
		return err
	}

	results, err := e.Memory().Search(c.Context, caller, memory.SearchOptions{
		Query:           query,
		Limit:           c.Int("limit"),
		Threshold:       float32(c.Float64("threshold")),
		GroupID:         core.ID(c.Uint64("group")),
		IncludePersonal: c.Bool("personal"),
		StoreID:         core.ID(c.Uint64("store")),
		Monitor:         &memory.LogMonitor{Logger: slog.Default()},
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Printf("Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Printf("%d: [%0.3f] %s (memory %d, store %q)\n", i, hit.Score, hit.Memory.Title, hit.Memory.Id, hit.Store.Title)
		fmt.Printf("   %s\n", hit.Memory.Description)
	}
	return nil
}

func storesCommand(c *cli.Context) error {
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()
	caller, err := currentCaller(c.Context, c, e)
	if err != nil {
		return err
	}

	stores, err := e.Memory().ListStores(c.Context, caller)
	if err != nil {
		return err
	}
	for _, s := range stores {
		fmt.Printf("%d\t%s\t%s\t%s\n", s.Id, s.Owner, s.Title, s.Description)
	}
	return nil
}

func rememberCommand(c *cli.Context) error {
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()
	caller, err := currentCaller(c.Context, c, e)
	if err != nil {
		return err
	}

	m, err := e.Memory().CreateMemory(c.Context, caller, &core.Memory{
		StoreId:     core.ID(c.Uint64("store")),
		Title:       c.String("title"),
		Description: c.String("description"),
		Content:     c.String("content"),
		Tags:        c.StringSlice("tag"),
		RefType:     core.RefNone,
	})
	if err != nil {
		return fmt.Errorf("failed to create memory: %w", err)
	}
	fmt.Printf("memory %d in store %d\n", m.Id, m.StoreId)
	return nil
}

func reindexCommand(c *cli.Context) error {
	cfg := &reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
		Restart:        c.Bool("restart"),
	}
	if cfg.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if cfg.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if cfg.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()
	caller, err := currentCaller(c.Context, c, e)
	if err != nil {
		return err
	}

	id, err := e.Reindex(caller, cfg, os.Stderr)
	if err != nil {
		return err
	}
	status, err := e.Tasks().Wait(c.Context, id)
	if err != nil {
		return err
	}
	if status.State != tasks.StateCompleted {
		return fmt.Errorf("reindex failed: %s", status.Error)
	}
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
