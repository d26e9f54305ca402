package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/birbparty/pio-go/internal/database"
	"github.com/birbparty/pio-go/internal/queue"
	"github.com/birbparty/pio-go/internal/relay"
	"github.com/birbparty/pio-go/internal/storage"
	"github.com/birbparty/pio-go/sdk"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "pio:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "pio",
		Usage:   "talk to a PredictionIO event server and engine",
		Version: sdk.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: sdk.DefaultEventURL, EnvVars: []string{"PIO_EVENT_URL"}, Usage: "event server base URL"},
			&cli.StringFlag{Name: "engine-url", Value: sdk.DefaultEngineURL, EnvVars: []string{"PIO_ENGINE_URL"}, Usage: "engine base URL"},
			&cli.StringFlag{Name: "access-key", EnvVars: []string{"PIO_ACCESS_KEY"}, Usage: "application access key"},
			&cli.IntFlag{Name: "connections", Value: 4, EnvVars: []string{"PIO_MAX_CONNECTIONS"}, Usage: "maximum concurrent connections"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, EnvVars: []string{"PIO_TIMEOUT"}, Usage: "per-request timeout"},
			&cli.BoolFlag{Name: "fasthttp", EnvVars: []string{"PIO_FASTHTTP"}, Usage: "use the fasthttp transport"},
			&cli.StringFlag{Name: "log-level", Value: "warn", EnvVars: []string{"LOG_LEVEL"}, Usage: "log level"},
		},
		Commands: []*cli.Command{
			statusCommand(),
			sendCommand(),
			getCommand(),
			deleteCommand(),
			importCommand(),
			queryCommand(),
			publishCommand(),
			archiveCommand(),
			replayCommand(),
		},
	}
}

func newLogger(c *cli.Context) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(c.App.ErrWriter)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(c.String("log-level")); err == nil {
		logger.SetLevel(level)
	}
	return logger
}

func clientConfig(c *cli.Context, baseURL string) *sdk.Config {
	config := sdk.DefaultConfig().
		WithBaseURL(baseURL).
		WithAccessKey(c.String("access-key")).
		WithMaxConcurrentConnections(c.Int("connections")).
		WithTimeout(c.Duration("timeout")).
		WithLogger(newLogger(c))
	if c.Bool("fasthttp") {
		config.WithFastHTTP()
	}
	return config
}

func eventClient(c *cli.Context) (*sdk.EventClient, error) {
	return sdk.NewEventClient(clientConfig(c, c.String("url")))
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "check that the event server (or engine) is up",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "engine", Usage: "check the engine instead"},
		},
		Action: func(c *cli.Context) error {
			var status string
			var err error
			if c.Bool("engine") {
				client, cerr := sdk.NewEngineClient(clientConfig(c, c.String("engine-url")))
				if cerr != nil {
					return cerr
				}
				defer client.Close()
				status, err = client.Status(c.Context)
			} else {
				client, cerr := eventClient(c)
				if cerr != nil {
					return cerr
				}
				defer client.Close()
				status, err = client.Status(c.Context)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, status)
			return nil
		},
	}
}

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "create one event",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "event", Required: true},
			&cli.StringFlag{Name: "entity-type", Required: true},
			&cli.StringFlag{Name: "entity-id", Required: true},
			&cli.StringFlag{Name: "target-type"},
			&cli.StringFlag{Name: "target-id"},
			&cli.StringFlag{Name: "properties", Usage: "JSON object"},
			&cli.StringFlag{Name: "time", Usage: "ISO-8601 event time, default now"},
		},
		Action: func(c *cli.Context) error {
			event, err := eventFromFlags(c)
			if err != nil {
				return err
			}
			client, err := eventClient(c)
			if err != nil {
				return err
			}
			defer client.Close()

			id, err := client.CreateEvent(c.Context, event)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, id)
			return nil
		},
	}
}

func eventFromFlags(c *cli.Context) (*sdk.Event, error) {
	event := &sdk.Event{
		Event:            c.String("event"),
		EntityType:       c.String("entity-type"),
		EntityID:         c.String("entity-id"),
		TargetEntityType: c.String("target-type"),
		TargetEntityID:   c.String("target-id"),
		EventTime:        time.Now(),
	}
	if raw := c.String("properties"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &event.Properties); err != nil {
			return nil, fmt.Errorf("invalid --properties: %w", err)
		}
	}
	if raw := c.String("time"); raw != "" {
		t, err := sdk.ParseTime(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --time: %w", err)
		}
		event.EventTime = t
	}
	return event, event.Validate()
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "fetch an event by id",
		ArgsUsage: "<event-id>",
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return cli.Exit("event id required", 2)
			}
			client, err := eventClient(c)
			if err != nil {
				return err
			}
			defer client.Close()

			event, err := client.GetEvent(c.Context, id)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(c.App.Writer)
			enc.SetIndent("", "  ")
			return enc.Encode(event)
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "delete an event by id",
		ArgsUsage: "<event-id>",
		Action: func(c *cli.Context) error {
			id := c.Args().First()
			if id == "" {
				return cli.Exit("event id required", 2)
			}
			client, err := eventClient(c)
			if err != nil {
				return err
			}
			defer client.Close()
			return client.DeleteEvent(c.Context, id)
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "import events from a file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Required: true},
			&cli.StringFlag{Name: "format", Value: "events", Usage: "events (JSONL) or ratings (user item rating)"},
			&cli.IntFlag{Name: "batch", Value: relay.MaxBatchSize, Usage: "events per batch request"},
			&cli.StringSliceFlag{Name: "category", Usage: "item category for the ratings format"},
		},
		Action: func(c *cli.Context) error {
			batch := c.Int("batch")
			if batch < 1 || batch > relay.MaxBatchSize {
				return cli.Exit(fmt.Sprintf("--batch must be between 1 and %d", relay.MaxBatchSize), 2)
			}
			f, err := os.Open(c.String("file"))
			if err != nil {
				return err
			}
			defer f.Close()

			client, err := eventClient(c)
			if err != nil {
				return err
			}
			defer client.Close()

			var report *importReport
			switch c.String("format") {
			case "events":
				report, err = importEvents(c.Context, client, f, batch)
			case "ratings":
				report, err = importRatings(c.Context, client, f, sdk.ItemProperties{Categories: c.StringSlice("category")})
			default:
				return cli.Exit(fmt.Sprintf("unknown format %q", c.String("format")), 2)
			}
			if report != nil {
				printReport(c.App.Writer, report)
			}
			if err != nil {
				return err
			}
			if len(report.Failures) > 0 {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "send a query to the engine",
		ArgsUsage: "<json>",
		Action: func(c *cli.Context) error {
			var query map[string]interface{}
			if err := json.Unmarshal([]byte(c.Args().First()), &query); err != nil {
				return cli.Exit(fmt.Sprintf("query must be a JSON object: %v", err), 2)
			}
			client, err := sdk.NewEngineClient(clientConfig(c, c.String("engine-url")))
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.SendQuery(c.Context, query)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, string(result.Raw()))
			return nil
		},
	}
}

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "queue events from a JSONL file for the relay",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Required: true},
			&cli.StringFlag{Name: "source", Value: "pio-cli"},
		},
		Action: func(c *cli.Context) error {
			f, err := os.Open(c.String("file"))
			if err != nil {
				return err
			}
			defer f.Close()

			queueConfig, err := queue.NewConfigFromEnv()
			if err != nil {
				return err
			}
			client, err := queue.NewClient(queueConfig, newLogger(c))
			if err != nil {
				return err
			}
			defer client.Close()

			published := 0
			err = sdk.ReadEvents(f, func(line int, event *sdk.Event) error {
				if _, err := client.PublishEvent(c.Context, event, c.String("source")); err != nil {
					return fmt.Errorf("line %d: %w", line, err)
				}
				published++
				return nil
			})
			fmt.Fprintf(c.App.Writer, "published %d\n", published)
			return err
		},
	}
}

func archiveCommand() *cli.Command {
	return &cli.Command{
		Name:  "archive",
		Usage: "upload an exported JSONL file to object storage",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Required: true},
			&cli.StringFlag{Name: "name", Usage: "export name, default the file name"},
		},
		Action: func(c *cli.Context) error {
			path := c.String("file")
			name := c.String("name")
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}

			count := 0
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := sdk.ReadEvents(f, func(int, *sdk.Event) error { count++; return nil }); err != nil {
				return fmt.Errorf("not an event export: %w", err)
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return err
			}

			spacesConfig, err := storage.NewSpacesConfigFromEnv()
			if err != nil {
				return err
			}
			spaces, err := storage.NewSpacesClient(spacesConfig)
			if err != nil {
				return err
			}
			key, err := spaces.UploadExport(c.Context, name, count, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "uploaded %d events to %s\n", count, key)
			return nil
		},
	}
}

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:  "replay",
		Usage: "submit relay dead letters to the event server",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 100},
			&cli.BoolFlag{Name: "dry-run", Usage: "list what would be replayed"},
		},
		Action: func(c *cli.Context) error {
			dbConfig, err := database.NewConfigFromEnv()
			if err != nil {
				return err
			}
			db, err := database.NewDB(c.Context, dbConfig)
			if err != nil {
				return err
			}
			defer db.Close()

			client, err := eventClient(c)
			if err != nil {
				return err
			}
			defer client.Close()

			report, err := replayDeadLetters(c.Context, database.NewDeadLetterRepository(db), client, c.Int("limit"), c.Bool("dry-run"), c.App.Writer)
			if report != nil {
				fmt.Fprintf(c.App.Writer, "replayed %d, skipped %d, failed %d\n", report.Replayed, report.Skipped, report.Failed)
			}
			return err
		},
	}
}
