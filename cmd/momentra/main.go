// Command momentra runs the scheduling assistant: an HTTP API for the web
// client plus a small CLI for direct use against the same database.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"momentra/pkg/config"
	"momentra/pkg/httpapi"
	"momentra/pkg/ics"
	"momentra/pkg/model"
	"momentra/pkg/parse"
	"momentra/pkg/schedule"
	"momentra/pkg/store"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "momentra",
		Usage: "Turn natural-language plans into a conflict-free schedule.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "momentra.yaml",
				Usage:   "Path to the YAML config file (created on first run).",
				EnvVars: []string{"MOMENTRA_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "user",
				Value:   "local",
				Usage:   "Owner ID for CLI operations.",
				EnvVars: []string{"MOMENTRA_USER"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			addCommand(),
			tasksCommand(),
			exportCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

// env is everything a command needs, assembled from the config file.
type env struct {
	cfg   *config.Config
	store *store.Store
	sched *schedule.Scheduler
	jobs  *parse.Service
	log   *slog.Logger
}

func setup(c *cli.Context) (*env, error) {
	logger := setupLogger(os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	workStart, workEnd, err := cfg.WindowMinutes()
	if err != nil {
		return nil, fmt.Errorf("invalid working hours: %w", err)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	sched := schedule.New(st, schedule.Prefs{
		DefaultDuration: time.Duration(cfg.DefaultDurationMin) * time.Minute,
		Buffer:          time.Duration(cfg.BufferMin) * time.Minute,
		WorkStart:       workStart,
		WorkEnd:         workEnd,
	}, logger)
	jobs := parse.NewService(st, parse.NewRuleParser(), loc, logger)

	return &env{cfg: cfg, store: st, sched: sched, jobs: jobs, log: logger}, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "Override the configured listen address."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.store.Close()

			addr := e.cfg.Listen
			if c.IsSet("listen") {
				addr = c.String("listen")
			}
			srv := httpapi.New(e.jobs, e.sched, e.store, e.log)
			return srv.ListenAndServe(addr)
		},
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Parse a plan and commit what schedules cleanly.",
		ArgsUsage: "\"dinner with anna tomorrow at 7pm\"",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Commit even when events conflict."},
		},
		Action: func(c *cli.Context) error {
			text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if text == "" {
				return fmt.Errorf("nothing to add; pass the plan as arguments")
			}
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.store.Close()
			owner := c.String("user")

			job, err := e.jobs.CreateJob(owner, text, time.Now().Format(time.RFC3339))
			if err != nil {
				return err
			}
			_, cands, err := e.jobs.ParseJob(c.Context, owner, job.ID)
			if err != nil {
				return err
			}
			if len(cands) == 0 {
				fmt.Println("Could not find a schedulable event in that.")
				return nil
			}

			var selected []string
			for _, cand := range cands {
				if cand.CommandType == model.CommandCreateTask {
					selected = append(selected, cand.ID)
				}
			}
			out, err := e.sched.Accept(owner, job.ID, selected, c.Bool("force"))
			if err != nil {
				return err
			}

			for _, t := range out.TasksCreated {
				fmt.Printf("Scheduled %q  %s - %s\n", t.Title,
					t.Start.Format("Mon 15:04"), t.End.Format("15:04"))
			}
			for _, cand := range out.Remaining {
				if cand.Parameters.Message != "" {
					fmt.Printf("Held back: %s\n", cand.Parameters.Message)
					for _, opt := range cand.Parameters.Options {
						fmt.Printf("  - %s\n", opt.Label)
					}
				} else {
					fmt.Printf("Held back: %q needs more detail\n", cand.Description)
				}
			}
			return nil
		},
	}
}

func tasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "List the schedule for the coming days.",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Value: 7, Usage: "How many days ahead to list."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.store.Close()

			from := time.Now().UTC().Truncate(24 * time.Hour)
			to := from.AddDate(0, 0, c.Int("days"))
			tasks, err := e.store.ListTasks(c.String("user"), from, to)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Println("Nothing scheduled.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, t := range tasks {
				marker := ""
				if !t.Blocking {
					marker = "(free)"
				}
				fmt.Fprintf(w, "%s\t%s - %s\t%s\t%s\n",
					t.Start.Format("Mon Jan 2"),
					t.Start.Format("15:04"), t.End.Format("15:04"),
					t.Title, marker)
			}
			return w.Flush()
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the schedule as an iCalendar feed.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "Output file; stdout when omitted."},
		},
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.store.Close()

			tasks, err := e.store.ListTasks(c.String("user"),
				time.Time{}, time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC))
			if err != nil {
				return err
			}
			feed := ics.Feed(tasks)

			if out := c.String("out"); out != "" {
				return os.WriteFile(out, []byte(feed), 0o644)
			}
			fmt.Print(feed)
			return nil
		},
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
