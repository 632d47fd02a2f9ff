// pvsite queries PV site forecasts, generation and metadata.
//
// Usage:
//
//	pvsite forecasts --site <uuid> --start 2024-06-01T00:00:00Z --horizon 60 --token <jwt>
//	pvsite generation --site <uuid> --site <uuid> --compact --token <jwt>
//	pvsite sites --site <uuid>
//	pvsite check-access --site <uuid> --token <jwt>
//	pvsite migrate
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "pvsite",
		Usage:   "Query PV site forecasts, generation and metadata",
		Version: version,

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   formatJSON,
				Usage:   "Output format (json, yaml)",
			},
		},

		Commands: []*cli.Command{
			forecastsCommand(),
			generationCommand(),
			sitesCommand(),
			siteExistsCommand(),
			checkAccessCommand(),
			migrateCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func siteFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:     "site",
		Aliases:  []string{"s"},
		Usage:    "Site UUID (repeatable)",
		Required: true,
	}
}

func startFlag() cli.Flag {
	return &cli.TimestampFlag{
		Name:   "start",
		Usage:  "Start of the window, RFC3339 (default: 48 hours ago)",
		Layout: time.RFC3339,
	}
}

func compactFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "compact",
		Usage: "Group values by datetime instead of by site",
	}
}

func tokenFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "token",
		Usage:    "Bearer token identifying the caller",
		EnvVars:  []string{"PVSITE_TOKEN"},
		Required: true,
	}
}

// =============================================================================
// FORECASTS COMMAND
// =============================================================================

func forecastsCommand() *cli.Command {
	return &cli.Command{
		Name:  "forecasts",
		Usage: "Historical forecasts at a fixed horizon followed by the latest forecast run",
		Flags: []cli.Flag{
			siteFlag(),
			startFlag(),
			&cli.IntFlag{
				Name:  "horizon",
				Value: 0,
				Usage: "Forecast horizon in minutes for the historical part",
			},
			compactFlag(),
			tokenFlag(),
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := rt.context(c)
			defer cancel()

			siteIDs := c.StringSlice("site")
			if err := rt.authorizeSites(ctx, c.String("token"), siteIDs); err != nil {
				return err
			}

			result, err := rt.svc.GetForecastsBySites(ctx, siteIDs, startTime(c), c.Int("horizon"), c.Bool("compact"))
			if err != nil {
				return err
			}
			return writeOutput(os.Stdout, c.String("output"), result.Payload())
		},
	}
}

// =============================================================================
// GENERATION COMMAND
// =============================================================================

func generationCommand() *cli.Command {
	return &cli.Command{
		Name:  "generation",
		Usage: "Actual generation readings",
		Flags: []cli.Flag{
			siteFlag(),
			startFlag(),
			compactFlag(),
			tokenFlag(),
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := rt.context(c)
			defer cancel()

			siteIDs := c.StringSlice("site")
			if err := rt.authorizeSites(ctx, c.String("token"), siteIDs); err != nil {
				return err
			}

			result, err := rt.svc.GetGenerationBySites(ctx, siteIDs, startTime(c), c.Bool("compact"))
			if err != nil {
				return err
			}
			return writeOutput(os.Stdout, c.String("output"), result.Payload())
		},
	}
}

// =============================================================================
// SITE COMMANDS
// =============================================================================

func sitesCommand() *cli.Command {
	return &cli.Command{
		Name:  "sites",
		Usage: "Site metadata",
		Flags: []cli.Flag{siteFlag()},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := rt.context(c)
			defer cancel()

			found, err := rt.svc.GetSitesByIDs(ctx, c.StringSlice("site"))
			if err != nil {
				return err
			}
			return writeOutput(os.Stdout, c.String("output"), found)
		},
	}
}

func siteExistsCommand() *cli.Command {
	return &cli.Command{
		Name:  "site-exists",
		Usage: "Report whether a site is known",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "site",
				Aliases:  []string{"s"},
				Usage:    "Site UUID",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := rt.context(c)
			defer cancel()

			exists, err := rt.svc.SiteExists(ctx, c.String("site"))
			if err != nil {
				return err
			}
			return writeOutput(os.Stdout, c.String("output"), map[string]bool{"exists": exists})
		},
	}
}

func checkAccessCommand() *cli.Command {
	return &cli.Command{
		Name:  "check-access",
		Usage: "Check the caller's sites are exactly the given sites, or with --single that one site is theirs",
		Flags: []cli.Flag{
			siteFlag(),
			tokenFlag(),
			&cli.BoolFlag{
				Name:  "single",
				Usage: "Check membership of one site instead of the exact site list",
			},
		},
		Action: func(c *cli.Context) error {
			siteIDs := c.StringSlice("site")
			if c.Bool("single") && len(siteIDs) != 1 {
				return cli.Exit("--single takes exactly one --site", exitMalformed)
			}

			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := rt.context(c)
			defer cancel()

			if c.Bool("single") {
				err = rt.authorizeSite(ctx, c.String("token"), siteIDs[0])
			} else {
				err = rt.authorizeSites(ctx, c.String("token"), siteIDs)
			}
			if err != nil {
				return err
			}
			return writeOutput(os.Stdout, c.String("output"), map[string]bool{"allowed": true})
		},
	}
}

// =============================================================================
// MIGRATE COMMAND
// =============================================================================

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema",
		Action: func(c *cli.Context) error {
			rt, err := setup(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.db.RunMigrations(c.Context, rt.logger); err != nil {
				return err
			}
			rt.logger.Info("migrations applied")
			return nil
		},
	}
}

func startTime(c *cli.Context) time.Time {
	if start := c.Timestamp("start"); start != nil {
		return start.UTC()
	}
	return time.Now().UTC().Add(-48 * time.Hour)
}
