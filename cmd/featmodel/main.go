package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/KyungWonPark/featmodel/internal/fsl"
	"github.com/KyungWonPark/featmodel/internal/logging"
)

var logger *log.Logger

func main() {
	app := cli.NewApp()
	app.Name = "featmodel"
	app.Usage = "Generate FSL FEAT design files and run the FSL modelling tools"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "Log level (debug, info, warn, error)",
		},
		cli.BoolFlag{
			Name:  "log-json",
			Usage: "Log as JSON",
		},
		cli.StringFlag{
			Name:   "workdir,w",
			Value:  ".",
			EnvVar: "RESULT",
			Usage:  "Directory designs are written to and tools run in",
		},
	}
	app.Before = func(c *cli.Context) error {
		var err error
		logger, err = logging.New(c.GlobalString("log-level"), c.GlobalBool("log-json"))
		if err != nil {
			return cli.NewExitError(fmt.Sprintf("bad --log-level: %v", err), 2)
		}
		return nil
	}

	app.Commands = []cli.Command{
		level1Command(),
		l2ModelCommand(),
		fixedEffectsCommand(),
		registerCommand(),
		featCommand(),
		featModelCommand(),
		filmGLSCommand(),
		flameoCommand(),
		contrastMgrCommand(),
		smmCommand(),
		schemaCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// workdir returns the absolute working directory, creating it if needed.
func workdir(c *cli.Context) (string, error) {
	dir, err := filepath.Abs(c.GlobalString("workdir"))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// tool sets up the runner shared by the FSL subcommands.
func tool(c *cli.Context, entry *log.Entry) (fsl.Tool, error) {
	dir, err := workdir(c)
	if err != nil {
		return fsl.Tool{}, err
	}
	info := fsl.FromEnv()
	return fsl.Tool{
		Runner: fsl.ExecRunner{Info: info, Log: entry},
		Info:   info,
		Dir:    dir,
	}, nil
}

// interruptible returns a context cancelled on SIGINT.
func interruptible() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// report prints v as JSON on stdout.
func report(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail logs err on entry and turns it into a non-zero exit.
func fail(entry *log.Entry, err error) error {
	entry.WithError(err).Error("[featmodel] failed")
	return cli.NewExitError(err.Error(), 1)
}

func needArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() < n {
		return cli.NewExitError(fmt.Sprintf("usage: featmodel %s %s", c.Command.Name, usage), 2)
	}
	return nil
}
