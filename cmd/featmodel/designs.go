package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/KyungWonPark/featmodel/internal/config"
	"github.com/KyungWonPark/featmodel/internal/fsl"
	"github.com/KyungWonPark/featmodel/internal/level1"
	"github.com/KyungWonPark/featmodel/internal/level2"
	"github.com/KyungWonPark/featmodel/internal/logging"
	"github.com/KyungWonPark/featmodel/internal/session"
)

func level1Command() cli.Command {
	return cli.Command{
		Name:      "level1",
		Usage:     "Write the timing files and run<i>.fsf design of every run",
		ArgsUsage: "<session.json|session.yaml>",
		Description: "Reads the session description and the model settings (--config, then flags)\n" +
			"   and writes ev_<name>_<run>_<ordinal>.txt timing files plus one run<i>.fsf\n" +
			"   per run into the working directory. The produced paths are printed as JSON.",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "config,c", Usage: "YAML model settings"},
			cli.Float64Flag{Name: "tr", Usage: "Interscan interval in seconds"},
			cli.StringFlag{Name: "bases", Usage: "Response basis: gamma or dgamma"},
			cli.BoolFlag{Name: "derivs", Usage: "Add a temporal derivative EV per condition"},
			cli.StringFlag{Name: "serial", Usage: "Serial correlation model: AR(1) or none"},
			cli.BoolFlag{Name: "register", Usage: "Register to a standard image"},
			cli.StringFlag{Name: "reg-image", Usage: "Registration reference (default: the toolkit's MNI152 2mm brain)"},
			cli.IntFlag{Name: "reg-dof", Usage: "Registration degrees of freedom (3, 6, 9 or 12)"},
			cli.BoolFlag{Name: "export-matrices", Usage: "Also write run<i>_con.npy contrast matrices"},
			cli.BoolFlag{Name: "list", Usage: "Only print the paths a generation would write"},
		},
		Action: func(c *cli.Context) error {
			entry := logging.Invocation(logger, "level1")
			if err := needArgs(c, 1, "<session file>"); err != nil {
				return err
			}

			cfg, err := level1Config(c)
			if err != nil {
				return fail(entry, err)
			}
			level, asJSON := cfg.Logging(c.GlobalString("log-level"), c.GlobalIsSet("log-level"),
				c.GlobalBool("log-json"), c.GlobalIsSet("log-json"))
			if err := logging.Configure(logger, level, asJSON); err != nil {
				return fail(entry, err)
			}

			desc, err := session.Load(c.Args().First())
			if err != nil {
				return fail(entry, err)
			}

			dir, err := workdir(c)
			if err != nil {
				return fail(entry, err)
			}
			gen, err := level1.New(dir, cfg.Options())
			if err != nil {
				return fail(entry, err)
			}
			gen.Standard = fsl.FromEnv()
			gen.Log = entry

			if c.Bool("list") {
				return report(gen.ListOutputs(desc))
			}
			out, err := gen.Generate(desc)
			if err != nil {
				return fail(entry, err)
			}
			return report(out)
		},
	}
}

// level1Config layers flags over the settings file over the defaults.
func level1Config(c *cli.Context) (config.Level1, error) {
	cfg := config.DefaultLevel1()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadLevel1(path); err != nil {
			return cfg, err
		}
	}

	if c.IsSet("tr") {
		cfg.InterscanInterval = c.Float64("tr")
	}
	if c.IsSet("bases") {
		cfg.Bases.Kind = level1.BasisKind(c.String("bases"))
	}
	if c.IsSet("derivs") {
		cfg.Bases.UseDerivative = c.Bool("derivs")
	}
	if c.IsSet("serial") {
		cfg.ModelSerialCorrelations = c.String("serial")
	}
	if c.IsSet("register") {
		cfg.Register = c.Bool("register")
	}
	if c.IsSet("reg-image") {
		cfg.RegImage = c.String("reg-image")
	}
	if c.IsSet("reg-dof") {
		cfg.RegDOF = c.Int("reg-dof")
	}
	if c.IsSet("export-matrices") {
		cfg.ExportMatrices = c.Bool("export-matrices")
	}
	return cfg, cfg.Validate()
}

func level2Writer(c *cli.Context, command string) (*level2.Writer, error) {
	dir, err := workdir(c)
	if err != nil {
		return nil, err
	}
	w, err := level2.New(dir)
	if err != nil {
		return nil, err
	}
	w.Log = logging.Invocation(logger, command)
	return w, nil
}

func l2ModelCommand() cli.Command {
	return cli.Command{
		Name:  "l2model",
		Usage: "Write design.mat, design.con and design.grp of a group-mean model",
		Flags: []cli.Flag{
			cli.IntFlag{Name: "copes,n", Usage: "Number of copes to combine"},
		},
		Action: func(c *cli.Context) error {
			w, err := level2Writer(c, "l2model")
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
			out, err := w.L2Model(c.Int("copes"))
			if err != nil {
				return fail(w.Log, err)
			}
			return report(out)
		},
	}
}

func fixedEffectsCommand() cli.Command {
	return cli.Command{
		Name:      "fixedfx",
		Usage:     "Write fixedeffects.fsf combining lower-level FEAT directories",
		ArgsUsage: "<featdir>...",
		Flags: []cli.Flag{
			cli.IntFlag{Name: "copes,n", Usage: "Number of copes in each FEAT directory"},
		},
		Action: func(c *cli.Context) error {
			if err := needArgs(c, 1, "<featdir>..."); err != nil {
				return err
			}
			w, err := level2Writer(c, "fixedfx")
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
			path, err := w.FixedEffects(c.Args(), c.Int("copes"))
			if err != nil {
				return fail(w.Log, err)
			}
			fmt.Fprintln(os.Stdout, path)
			return nil
		},
	}
}

func registerCommand() cli.Command {
	return cli.Command{
		Name:      "register",
		Usage:     "Write register.fsf taking FEAT directories to a reference image",
		ArgsUsage: "<featdir>...",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "reg-image", Usage: "Reference image, treated as standard space"},
			cli.IntFlag{Name: "reg-dof", Value: 12, Usage: "Registration degrees of freedom"},
		},
		Action: func(c *cli.Context) error {
			if err := needArgs(c, 1, "<featdir>..."); err != nil {
				return err
			}
			w, err := level2Writer(c, "register")
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
			path, err := w.Register(c.Args(), c.String("reg-image"), c.Int("reg-dof"))
			if err != nil {
				return fail(w.Log, err)
			}
			fmt.Fprintln(os.Stdout, path)
			return nil
		},
	}
}

func schemaCommand() cli.Command {
	return cli.Command{
		Name:      "schema",
		Usage:     "Print the JSON schema of an input document",
		ArgsUsage: fmt.Sprintf("<%s|%s>", config.SchemaSession, config.SchemaLevel1),
		Action: func(c *cli.Context) error {
			if err := needArgs(c, 1, "<document>"); err != nil {
				return err
			}
			raw, err := config.Schema(c.Args().First())
			if err != nil {
				return cli.NewExitError(err.Error(), 2)
			}
			_, err = fmt.Fprintln(os.Stdout, string(raw))
			return err
		},
	}
}
