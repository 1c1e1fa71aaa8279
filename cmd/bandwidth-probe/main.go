package main

import (
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"bandwidth-probe/internal/config"
	"bandwidth-probe/internal/logging"
)

// app carries the loaded configuration between the cli hooks and commands.
type app struct {
	configPath string
	cfg        config.Config
	logs       io.Closer
}

func (a *app) before(*cli.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logs, err = logging.Setup(cfg.Log)
	return err
}

func (a *app) after(*cli.Context) error {
	if a.logs == nil {
		return nil
	}
	return a.logs.Close()
}

func newApp() *cli.App {
	a := &app{}

	return &cli.App{
		Name:  "bandwidth-probe",
		Usage: "measure internet bandwidth on a schedule and chart the results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to the config file (yaml, toml or json)",
				EnvVars:     []string{config.EnvPrefix + "_CONFIG"},
				Destination: &a.configPath,
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			{
				Name:  "collect",
				Usage: "run the collector loop",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "once",
						Usage: "run a single measurement and exit",
					},
				},
				Action: func(c *cli.Context) error {
					return runCollect(c.Context, a.cfg, c.Bool("once"))
				},
			},
			{
				Name:  "serve",
				Usage: "serve the dashboard",
				Action: func(c *cli.Context) error {
					return runServe(c.Context, a.cfg)
				},
			},
			{
				Name:  "report",
				Usage: "write charts and a text summary to a directory",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "output directory",
						Value: "reports",
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "days back from today",
					},
				},
				Action: func(c *cli.Context) error {
					return runReport(c.Context, a.cfg, c.App.Writer, c.String("out"), c.Int("offset"))
				},
			},
			{
				Name:  "check",
				Usage: "run one measurement and print it without saving",
				Action: func(c *cli.Context) error {
					return runCheck(c.Context, a.cfg, c.App.Writer)
				},
			},
			{
				Name:  "config",
				Usage: "print the effective configuration",
				Action: func(c *cli.Context) error {
					out, err := a.cfg.YAML()
					if err != nil {
						return err
					}
					_, err = c.App.Writer.Write(out)
					return err
				},
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

// closeAll closes every closer and combines their errors with err.
func closeAll(err error, closers ...io.Closer) error {
	for _, c := range closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}
