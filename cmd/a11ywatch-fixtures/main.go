// Command a11ywatch-fixtures loads seed data into, or dumps it from, the
// configured database.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"a11ywatch/internal/config"
	"a11ywatch/internal/fixture"
	"a11ywatch/internal/result"
	"a11ywatch/internal/storage/backend"
	"a11ywatch/internal/task"
)

const usage = `usage: a11ywatch-fixtures [flags] load|dump FILE

  load FILE   replace all tasks and results with the contents of FILE
  dump FILE   write every task and result to FILE

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	flags := flag.NewFlagSet("a11ywatch-fixtures", flag.ContinueOnError)
	flags.SetOutput(errOut)
	configPath := flags.StringP("config", "c", os.Getenv("CONFIG_FILE"), "JSON or JSONC config file")
	driver := flags.String("db-driver", "", "database driver: sqlite, postgres or mysql")
	dbURL := flags.String("db-url", "", "database file, URL or DSN")
	flags.Usage = func() {
		fmt.Fprint(errOut, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.NArg() != 2 {
		flags.Usage()
		return 2
	}
	command, path := flags.Arg(0), flags.Arg(1)

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	if flags.Changed("db-driver") {
		cfg.DatabaseDriver = *driver
	}
	if flags.Changed("db-url") {
		cfg.DatabaseURL = *dbURL
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	ctx := context.Background()

	store, err := backend.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer store.Close()

	tasks := task.New(store, logger)
	results := result.New(store, logger)

	switch command {
	case "load":
		set, err := fixture.Read(path)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		if err := fixture.Load(ctx, tasks, results, set); err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		fmt.Fprintf(out, "loaded %d tasks and %d results from %s\n", len(set.Tasks), len(set.Results), path)
	case "dump":
		set, err := fixture.Dump(ctx, tasks, results)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		if err := fixture.Write(path, set); err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		fmt.Fprintf(out, "dumped %d tasks and %d results to %s\n", len(set.Tasks), len(set.Results), path)
	default:
		fmt.Fprintf(errOut, "unknown command %q\n", command)
		flags.Usage()
		return 2
	}
	return 0
}
