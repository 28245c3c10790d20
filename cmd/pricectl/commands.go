package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/simaogato/tldpricing-backend/internal/adapter/presenter"
	"github.com/simaogato/tldpricing-backend/internal/app"
	"github.com/simaogato/tldpricing-backend/internal/config"
	"github.com/simaogato/tldpricing-backend/internal/domain"
	"github.com/simaogato/tldpricing-backend/internal/usecase/pricesync"
	"github.com/simaogato/tldpricing-backend/internal/usecase/report"
)

// =============================================================================
// SYNC
// =============================================================================

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Fetch the upstream snapshot and reconcile stored prices",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Value:   string(pricesync.ModeAll),
				Usage:   "Which extensions to reconcile (all, existing, selected)",
			},
			&cli.StringSliceFlag{
				Name:    "ext",
				Aliases: []string{"e"},
				Usage:   "Extension to reconcile in selected mode (repeatable)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Override the configured worker count",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the result as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			mode, err := pricesync.ParseMode(c.String("mode"))
			if err != nil {
				return err
			}

			adjust := func(cfg *config.Config) {
				if w := c.Int("workers"); w > 0 {
					cfg.Workers = w
				}
			}

			return withApp(c, app.Options{}, adjust, func(a *app.App) error {
				result, err := a.Sync.Sync(c.Context, mode, a.Policy, normalizeAll(c.StringSlice("ext")))
				if err != nil {
					return err
				}

				out := c.App.Writer
				if c.Bool("json") {
					return writeJSON(out, presenter.Sync(result))
				}

				fmt.Fprintf(out, "Run %s (%s)\n", result.RunID, result.Mode)
				fmt.Fprintf(out, "  processed: %d\n  updated:   %d\n  created:   %d\n  promos:    %d\n",
					result.ProcessedCount, result.UpdatedCount, result.CreatedCount, result.PromoCount)
				if result.Cancelled {
					fmt.Fprintln(out, "  cancelled before every extension was reconciled")
				}
				for _, e := range result.Errors {
					fmt.Fprintf(out, "  error: %s\n", e)
				}
				if len(result.Errors) > 0 {
					return cli.Exit(fmt.Sprintf("%d errors during sync", len(result.Errors)), 2)
				}
				return nil
			})
		},
	}
}

// =============================================================================
// DERIVE
// =============================================================================

func deriveCommand() *cli.Command {
	return &cli.Command{
		Name:  "derive",
		Usage: "Print the retail prices the current policy would derive, without touching the store",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "ext",
				Aliases: []string{"e"},
				Usage:   "Only show these extensions (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			inMemory := func(cfg *config.Config) {
				cfg.StorageBackend = config.StorageBackendMemory
				cfg.CacheBackend = config.CacheBackendMemory
				cfg.KafkaBrokers = nil
			}

			return withApp(c, app.Options{SkipMigrations: true}, inMemory, func(a *app.App) error {
				entries, err := a.Source.FetchSnapshot(c.Context)
				if err != nil {
					return err
				}

				wanted := make(map[string]bool)
				for _, ext := range normalizeAll(c.StringSlice("ext")) {
					wanted[ext] = true
				}

				derived, failures := a.Sync.Pipeline.DeriveBatch(entries, a.Policy, a.Clock.Now())

				w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "EXTENSION\tREGISTER\tRENEW\tTRANSFER\tPROMO")
				for _, set := range derived {
					if len(wanted) > 0 && !wanted[set.Extension] {
						continue
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						set.Extension,
						money(set.Register.Final, set.Register.Currency),
						money(set.Renew.Final, set.Renew.Currency),
						money(set.Transfer.Final, set.Transfer.Currency),
						promoSummary(set),
					)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				for _, failure := range failures {
					fmt.Fprintf(c.App.ErrWriter, "skipped: %v\n", failure)
				}
				return nil
			})
		},
	}
}

// =============================================================================
// IMPORT
// =============================================================================

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Create empty pricing rows for extensions that are not stored yet",
		ArgsUsage: "[extension...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "from-upstream",
				Usage: "Import every extension of the upstream snapshot",
			},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, app.Options{}, nil, func(a *app.App) error {
				extensions := c.Args().Slice()
				if c.Bool("from-upstream") {
					entries, err := a.Source.FetchSnapshot(c.Context)
					if err != nil {
						return err
					}
					for _, entry := range entries {
						extensions = append(extensions, entry.Key())
					}
				}

				result, err := a.Importer.Import(c.Context, extensions)
				if err != nil {
					return err
				}

				out := c.App.Writer
				fmt.Fprintf(out, "imported %d, skipped %d\n", len(result.Imported), len(result.Skipped))
				for _, ext := range result.Imported {
					fmt.Fprintf(out, "  + %s\n", ext)
				}
				for _, e := range result.Errors {
					fmt.Fprintf(out, "  error: %s\n", e)
				}
				return nil
			})
		},
	}
}

// =============================================================================
// COMPARE / SHOW / STATS / EXPORT
// =============================================================================

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Compare stored prices with derived prices",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "live",
				Usage: "Derive from a fresh upstream snapshot instead of the cache",
			},
			&cli.StringFlag{
				Name:  "term",
				Usage: "Register cell to compare against (effective, default)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print rows as JSON",
			},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, app.Options{}, nil, func(a *app.App) error {
				if raw := c.String("term"); raw != "" {
					term, err := report.ParseComparisonTerm(raw)
					if err != nil {
						return err
					}
					a.Report.Term = term
				}

				var (
					rows []report.ComparisonRow
					err  error
				)
				if c.Bool("live") {
					rows, err = a.Report.Compare(c.Context, a.Policy)
				} else {
					rows, err = a.Report.CompareCached(c.Context)
				}
				if err != nil {
					return err
				}

				if c.Bool("json") {
					return writeJSON(c.App.Writer, presenter.Comparison(rows))
				}
				return writeComparison(c.App.Writer, rows)
			})
		},
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show the stored rows and last derived prices of one extension",
		ArgsUsage: "<extension>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("show takes exactly one extension", 1)
			}
			return withApp(c, app.Options{}, nil, func(a *app.App) error {
				detail, err := a.Report.Show(c.Context, domain.NormalizeExtension(c.Args().First()))
				if err != nil {
					return err
				}
				if len(detail.Rows) == 0 && detail.Cached == nil {
					return cli.Exit(fmt.Sprintf("extension %s not found", detail.Extension), 1)
				}
				return writeJSON(c.App.Writer, presenter.Detail(detail))
			})
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Count stored extensions by pricing state",
		Action: func(c *cli.Context) error {
			return withApp(c, app.Options{}, nil, func(a *app.App) error {
				stats, err := a.Report.Statistics(c.Context)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "total\t%d\n", stats.TotalExtensions)
				fmt.Fprintf(w, "priced\t%d\n", stats.PricedExtensions)
				fmt.Fprintf(w, "unpriced\t%d\n", stats.UnpricedExtensions)
				fmt.Fprintf(w, "promo\t%d\n", stats.PromoExtensions)
				fmt.Fprintf(w, "duplicate\t%d\n", stats.DuplicateExtensions)
				return w.Flush()
			})
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write year-1 prices of every extension as CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "File to write (default stdout)",
			},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, app.Options{}, nil, func(a *app.App) error {
				out := c.App.Writer
				if path := c.String("output"); path != "" {
					f, err := os.Create(path)
					if err != nil {
						return fmt.Errorf("failed to create %s: %w", path, err)
					}
					defer f.Close()
					out = f
				}
				return a.Report.ExportCSV(c.Context, out)
			})
		},
	}
}

// =============================================================================
// MIGRATE
// =============================================================================

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "status",
				Usage: "Only print the current schema version",
			},
		},
		Action: func(c *cli.Context) error {
			return withApp(c, app.Options{SkipMigrations: true}, nil, func(a *app.App) error {
				if a.Config.StorageBackend == config.StorageBackendMemory {
					return errors.New("migrations need the postgres storage backend")
				}
				if !c.Bool("status") {
					applied, err := a.Migrate(c.Context)
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "applied %d migrations\n", len(applied))
				}
				version, err := a.MigrationVersion(c.Context)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "schema version %d\n", version)
				return nil
			})
		},
	}
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func writeComparison(out io.Writer, rows []report.ComparisonRow) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EXTENSION\tTERM\tCURRENT\tDERIVED\tDIFF\tGROUP\tROW")
	for _, r := range rows {
		currency := domain.DefaultCurrency
		derived := "-"
		if r.Derived != nil {
			currency = r.Derived.Register.Currency
			derived = money(r.Derived.EffectiveRegister(), currency)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			r.Extension,
			r.ComparedTerm,
			nullMoney(r.CurrentRegister, currency),
			derived,
			nullMoney(r.RegisterDiff, currency),
			r.Group,
			rowLabel(r),
		)
	}
	return w.Flush()
}

func rowLabel(r report.ComparisonRow) string {
	if r.RowCount > 1 {
		return fmt.Sprintf("%s (%d rows)", r.Resolution, r.RowCount)
	}
	return r.Resolution.String()
}

func promoSummary(set *domain.DerivedPriceSet) string {
	if !set.PromoActive || set.Promo == nil {
		return "-"
	}
	return fmt.Sprintf("%s for %dy until %s",
		money(set.Promo.FinalPrice, set.Register.Currency),
		set.Promo.TermYears,
		set.Promo.EndDate.Format("2006-01-02"))
}

func money(amount decimal.Decimal, currency string) string {
	return report.FormatCurrency(amount, currency)
}

func nullMoney(amount decimal.NullDecimal, currency string) string {
	if !amount.Valid {
		return "-"
	}
	return money(amount.Decimal, currency)
}

func normalizeAll(raw []string) []string {
	var out []string
	for _, ext := range raw {
		for _, part := range strings.Split(ext, ",") {
			if ext := domain.NormalizeExtension(part); ext != "" {
				out = append(out, ext)
			}
		}
	}
	return out
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
