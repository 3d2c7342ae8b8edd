package main

import (
	"github.com/urfave/cli"

	"github.com/KyungWonPark/featmodel/internal/fsl"
	"github.com/KyungWonPark/featmodel/internal/logging"
)

// runTool wires a subcommand to one FSL wrapper: run builds and starts the
// tool, its outputs are printed as JSON.
func runTool(name string, nargs int, usage string, run func(c *cli.Context, t fsl.Tool) (any, error)) func(c *cli.Context) error {
	return func(c *cli.Context) error {
		if err := needArgs(c, nargs, usage); err != nil {
			return err
		}
		entry := logging.Invocation(logger, name)
		t, err := tool(c, entry)
		if err != nil {
			return fail(entry, err)
		}
		out, err := run(c, t)
		if err != nil {
			return fail(entry, err)
		}
		return report(out)
	}
}

func featCommand() cli.Command {
	return cli.Command{
		Name:      "feat",
		Usage:     "Run a FEAT analysis from a design file",
		ArgsUsage: "<design.fsf>",
		Action: runTool("feat", 1, "<design.fsf>", func(c *cli.Context, t fsl.Tool) (any, error) {
			ctx, cancel := interruptible()
			defer cancel()
			return fsl.Feat{Tool: t, FSFFile: c.Args().First()}.Run(ctx)
		}),
	}
}

func featModelCommand() cli.Command {
	return cli.Command{
		Name:      "featmodel",
		Usage:     "Build the design matrix and contrast files of a design file",
		ArgsUsage: "<design.fsf>",
		Action: runTool("featmodel", 1, "<design.fsf>", func(c *cli.Context, t fsl.Tool) (any, error) {
			ctx, cancel := interruptible()
			defer cancel()
			return fsl.FeatModel{Tool: t, FSFFile: c.Args().First()}.Run(ctx)
		}),
	}
}

func filmGLSCommand() cli.Command {
	return cli.Command{
		Name:      "filmgls",
		Usage:     "Fit a design matrix to voxel time series with film_gls",
		ArgsUsage: "<infile> <design.mat>",
		Flags: []cli.Flag{
			cli.Float64Flag{Name: "threshold", Value: fsl.DefaultFilmThreshold, Usage: "Brightness threshold"},
			cli.StringFlag{Name: "results-dir", Value: "results", Usage: "Directory to store results in"},
			cli.BoolFlag{Name: "sa", Usage: "Smooth autocorrelation estimates"},
			cli.IntFlag{Name: "ms", Usage: "SUSAN mask size"},
			cli.IntFlag{Name: "epith", Usage: "SUSAN brightness threshold"},
			cli.BoolFlag{Name: "v", Usage: "Output full data"},
			cli.BoolFlag{Name: "ac", Usage: "Autocorrelation estimation only"},
			cli.BoolFlag{Name: "ar", Usage: "Fit an autoregressive model"},
			cli.IntFlag{Name: "tukey", Usage: "Tukey window size"},
			cli.IntFlag{Name: "mt", Usage: "Multitaper time-bandwidth product"},
			cli.BoolFlag{Name: "pava", Usage: "Estimate autocorrelation using PAVA"},
			cli.BoolFlag{Name: "noest", Usage: "Do not estimate autocorrelation"},
			cli.BoolFlag{Name: "output-pwdata", Usage: "Output prewhitened data and average design matrix"},
		},
		Action: runTool("filmgls", 2, "<infile> <design.mat>", func(c *cli.Context, t fsl.Tool) (any, error) {
			f := fsl.NewFilmGLS(t, c.Args().Get(0), c.Args().Get(1))
			f.Threshold = c.Float64("threshold")
			f.ResultsDir = c.String("results-dir")
			f.SmoothAutocorr = c.Bool("sa")
			f.MaskSize = c.Int("ms")
			f.BrightnessThreshold = c.Int("epith")
			f.FullData = c.Bool("v")
			f.AutocorrEstimate = c.Bool("ac")
			f.FitARModel = c.Bool("ar")
			f.TukeyWindow = c.Int("tukey")
			f.MultitaperProduct = c.Int("mt")
			f.UsePAVA = c.Bool("pava")
			f.AutocorrNoEstimate = c.Bool("noest")
			f.OutputPWData = c.Bool("output-pwdata")

			ctx, cancel := interruptible()
			defer cancel()
			return f.Run(ctx)
		}),
	}
}

func flameoCommand() cli.Command {
	return cli.Command{
		Name:  "flameo",
		Usage: "Run higher-level estimation with flameo",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "copefile"},
			cli.StringFlag{Name: "varcopefile"},
			cli.StringFlag{Name: "dofvarcopefile"},
			cli.StringFlag{Name: "maskfile"},
			cli.StringFlag{Name: "designfile"},
			cli.StringFlag{Name: "tcontrastsfile"},
			cli.StringFlag{Name: "fcontrastsfile"},
			cli.StringFlag{Name: "covsplitfile"},
			cli.StringFlag{Name: "runmode", Usage: "fe, ols, flame1 or flame12"},
			cli.IntFlag{Name: "njumps"},
			cli.IntFlag{Name: "burnin"},
			cli.IntFlag{Name: "sampleevery"},
			cli.BoolFlag{Name: "fixmean"},
			cli.BoolFlag{Name: "inferoutliers"},
			cli.BoolFlag{Name: "nopeoutput"},
			cli.IntFlag{Name: "sigma-dofs"},
			cli.IntFlag{Name: "ioni", Usage: "Outlier iterations"},
			cli.StringFlag{Name: "ld", Value: "stats", Usage: "Stats directory"},
			cli.StringFlag{Name: "flags", Usage: "Extra flameo arguments"},
		},
		Action: runTool("flameo", 0, "", func(c *cli.Context, t fsl.Tool) (any, error) {
			f := fsl.Flameo{
				Tool:           t,
				CopeFile:       c.String("copefile"),
				VarCopeFile:    c.String("varcopefile"),
				DOFVarCopeFile: c.String("dofvarcopefile"),
				MaskFile:       c.String("maskfile"),
				DesignFile:     c.String("designfile"),
				TConFile:       c.String("tcontrastsfile"),
				FConFile:       c.String("fcontrastsfile"),
				CovSplitFile:   c.String("covsplitfile"),
				RunMode:        c.String("runmode"),
				NJumps:         c.Int("njumps"),
				BurnIn:         c.Int("burnin"),
				SampleEvery:    c.Int("sampleevery"),
				FixMean:        c.Bool("fixmean"),
				InferOutliers:  c.Bool("inferoutliers"),
				NoPEOutput:     c.Bool("nopeoutput"),
				SigmaDOFs:      c.Int("sigma-dofs"),
				OutlierIter:    c.Int("ioni"),
				StatsDir:       c.String("ld"),
				Flags:          c.String("flags"),
			}
			ctx, cancel := interruptible()
			defer cancel()
			return f.Run(ctx)
		}),
	}
}

func contrastMgrCommand() cli.Command {
	return cli.Command{
		Name:      "contrastmgr",
		Usage:     "Evaluate contrasts on a stats directory with contrast_mgr",
		ArgsUsage: "<statsdir> <design.con>",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "fcon,f", Usage: "F contrasts file"},
			cli.IntFlag{Name: "cope", Usage: "Contrast number to start labelling copes from"},
			cli.StringFlag{Name: "suffix", Usage: "Suffix put before the contrast number"},
		},
		Action: runTool("contrastmgr", 2, "<statsdir> <design.con>", func(c *cli.Context, t fsl.Tool) (any, error) {
			m := fsl.ContrastMgr{
				Tool:        t,
				StatsDir:    c.Args().Get(0),
				TConFile:    c.Args().Get(1),
				FConFile:    c.String("fcon"),
				ContrastNum: c.Int("cope"),
				Suffix:      c.String("suffix"),
			}
			ctx, cancel := interruptible()
			defer cancel()
			return m.Run(ctx)
		}),
	}
}

func smmCommand() cli.Command {
	return cli.Command{
		Name:      "smm",
		Usage:     "Spatial mixture modelling of a statistic map with mm",
		ArgsUsage: "<statmap> <mask>",
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "zfstatmode", Usage: "No deactivation class"},
		},
		Action: runTool("smm", 2, "<statmap> <mask>", func(c *cli.Context, t fsl.Tool) (any, error) {
			s := fsl.SMM{
				Tool:            t,
				SpatialDataFile: c.Args().Get(0),
				Mask:            c.Args().Get(1),
				ZFStatMode:      c.Bool("zfstatmode"),
			}
			ctx, cancel := interruptible()
			defer cancel()
			return s.Run(ctx)
		}),
	}
}
