package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v2"

	"github.com/halcyonhealth/chatvault"
	"github.com/halcyonhealth/chatvault/core"
	"github.com/halcyonhealth/chatvault/storage"
)

// envConfig carries store settings from the environment. Flags take
// precedence over environment values.
type envConfig struct {
	DBPath           string `envconfig:"CHATVAULT_DB_PATH" default:"chatvault-data"`
	CapacityBytes    int64  `envconfig:"CHATVAULT_CAPACITY_BYTES"`
	MaxConversations int    `envconfig:"CHATVAULT_MAX_CONVERSATIONS"`
	MaxMessages      int    `envconfig:"CHATVAULT_MAX_MESSAGES"`
}

func main() {
	app := &cli.App{
		Name:   "chatvault",
		Usage:  "Inspect and manage an on-device AI chat conversation store",
		Before: setupLogger,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the store directory (overrides CHATVAULT_DB_PATH)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List stored conversations, most recently updated first",
				Action: listCommand,
			},
			{
				Name:      "show",
				Usage:     "Print one conversation with its full message history",
				ArgsUsage: "<id>",
				Action:    showCommand,
			},
			{
				Name:      "search",
				Usage:     "Search titles, summaries, last messages and tags",
				ArgsUsage: "<query>",
				Action:    searchCommand,
			},
			{
				Name:      "delete",
				Usage:     "Delete one conversation by id",
				ArgsUsage: "<id>",
				Action:    deleteCommand,
			},
			{
				Name:   "clear",
				Usage:  "Delete every stored conversation",
				Action: clearCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Skip the safety check",
					},
				},
			},
			{
				Name:   "export",
				Usage:  "Export all conversations as a JSON snapshot",
				Action: exportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Write the snapshot to a file instead of stdout",
					},
				},
			},
			{
				Name:      "import",
				Usage:     "Import a JSON snapshot, regenerating all identifiers",
				ArgsUsage: "<file>",
				Action:    importCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show store usage statistics",
				Action: statsCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// openDatabase resolves configuration and opens the store.
func openDatabase(c *cli.Context) (*chatvault.Database, error) {
	// A missing .env file is fine; the environment may carry the values.
	_ = godotenv.Load(".env")

	var cfg envConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("invalid environment configuration: %w", err)
	}

	path := cfg.DBPath
	if flagPath := c.String("db"); flagPath != "" {
		path = flagPath
	}

	var opts []chatvault.DatabaseOption
	if cfg.CapacityBytes > 0 {
		opts = append(opts, chatvault.WithCapacityBytes(cfg.CapacityBytes))
	}
	if cfg.MaxConversations > 0 {
		opts = append(opts, chatvault.WithMaxConversations(cfg.MaxConversations))
	}
	if cfg.MaxMessages > 0 {
		opts = append(opts, chatvault.WithMaxMessages(cfg.MaxMessages))
	}
	opts = append(opts, chatvault.WithLogger(slog.Default()))

	return chatvault.NewDatabase(path, opts...)
}

func listCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	summaries := db.Conversations().Summaries(context.Background())
	if len(summaries) == 0 {
		fmt.Println("no conversations stored")
		return nil
	}
	for _, s := range summaries {
		printSummary(s)
	}
	return nil
}

func showCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("conversation id is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	conv, err := db.Conversations().Get(context.Background(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("no conversation with id %s", id)
		}
		return err
	}

	fmt.Printf("%s\n", conv.Title)
	fmt.Printf("id: %s\n", conv.ID)
	fmt.Printf("created: %s  updated: %s\n",
		conv.CreatedAt.Format(time.RFC3339), conv.UpdatedAt.Format(time.RFC3339))
	if len(conv.Tags) > 0 {
		fmt.Printf("tags: %s\n", strings.Join(conv.Tags, ", "))
	}
	if conv.TotalMessages > len(conv.Messages) {
		fmt.Printf("messages: %d stored of %d total\n", len(conv.Messages), conv.TotalMessages)
	}
	fmt.Println()
	for _, m := range conv.Messages {
		fmt.Printf("[%s] %s\n", m.Sender, m.Text)
	}
	return nil
}

func searchCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	matches := db.Conversations().Search(context.Background(), c.Args().First())
	if len(matches) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, s := range matches {
		printSummary(s)
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("conversation id is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	existed, err := db.Conversations().Delete(context.Background(), id)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("no conversation with id %s", id)
	}
	fmt.Printf("deleted %s\n", id)
	return nil
}

func clearCommand(c *cli.Context) error {
	if !c.Bool("force") {
		return fmt.Errorf("refusing to delete all conversations without --force")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Conversations().ClearAll(context.Background()); err != nil {
		return err
	}
	fmt.Println("store cleared")
	return nil
}

func exportCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	out := os.Stdout
	if path := c.String("out"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return db.Porter().WriteJSON(context.Background(), out)
}

func importCommand(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("snapshot file is required")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := db.Porter().ReadJSON(context.Background(), f)
	if err != nil {
		return err
	}

	fmt.Printf("imported %d conversation(s)\n", result.Imported)
	for _, importErr := range result.Errors {
		fmt.Fprintf(os.Stderr, "record %d (%s): %s\n",
			importErr.Index, importErr.Title, importErr.Reason)
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("%d record(s) failed to import", len(result.Errors))
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Usage(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("used:     %d bytes\n", stats.UsedBytes)
	fmt.Printf("capacity: %d bytes\n", stats.CapacityBytes)
	fmt.Printf("usage:    %.1f%%\n", stats.PercentUsed)
	return nil
}

func printSummary(s core.ConversationSummary) {
	fmt.Printf("%s  %s\n", s.ID, s.Title)
	fmt.Printf("    updated %s, %d message(s)", s.UpdatedAt.Format(time.RFC3339), s.MessageCount)
	if len(s.Tags) > 0 {
		fmt.Printf(", tags: %s", strings.Join(s.Tags, ", "))
	}
	fmt.Println()
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

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(logger)

	return nil
}
