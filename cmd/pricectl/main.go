// pricectl - operator CLI for TLD retail pricing
//
// Usage:
//
//	pricectl sync --mode existing
//	pricectl sync --mode selected --ext .id --ext .com
//	pricectl compare --live
//	pricectl export --output pricing.csv
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/urfave/cli/v2"

	"github.com/simaogato/tldpricing-backend/internal/app"
	"github.com/simaogato/tldpricing-backend/internal/config"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "pricectl",
		Usage:     "Derive, reconcile and inspect TLD retail prices",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				EnvVars: []string{"TLDPRICING_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
		},

		Commands: []*cli.Command{
			syncCommand(),
			deriveCommand(),
			importCommand(),
			compareCommand(),
			showCommand(),
			statsCommand(),
			exportCommand(),
			migrateCommand(),
		},
	}
}

// loadConfig resolves the config file plus the global overrides
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if level := c.String("log-level"); level != "" {
		cfg.LogLevel = level
	}
	cfg.LogFormat = "console"
	return cfg, nil
}

// withApp wires the application for one command and closes it afterwards
func withApp(c *cli.Context, opts app.Options, adjust func(*config.Config), fn func(*app.App) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if adjust != nil {
		adjust(&cfg)
	}

	logger := app.NewLogger(cfg, c.App.ErrWriter)
	a, err := app.New(c.Context, cfg, logger, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}
