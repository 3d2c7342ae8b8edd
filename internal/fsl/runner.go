package fsl

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/KyungWonPark/featmodel/internal/errs"
)

// Command is one tool invocation.
type Command struct {
	Args []string
	Dir  string
}

func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Result carries the captured streams of a finished command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner starts tool commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands as child processes with FSLOUTPUTTYPE set from
// Info. A non-zero exit is an ErrCommandFailed error; the Result is still
// returned so callers can report stderr.
type ExecRunner struct {
	Info Info
	Log  *log.Entry
}

func (r ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if len(c.Args) == 0 {
		return nil, errs.Malformedf("fsl.Run", "empty command")
	}

	outputType := r.Info.OutputType
	if outputType == "" {
		outputType = DefaultOutputType
	}

	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), "FSLOUTPUTTYPE="+outputType)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := r.Log
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	logger = logger.WithFields(log.Fields{
		"cmd": c.String(),
		"dir": c.Dir,
	})
	logger.Info("[fsl] running")

	err := cmd.Run()
	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			logger.WithField("exit", res.ExitCode).Error("[fsl] command failed")
			return res, errs.New(errs.ErrCommandFailed, "fsl.Run", "%s exited with %d: %s",
				c.Args[0], res.ExitCode, strings.TrimSpace(stderr.String()))
		}
		return nil, errs.Wrap(errs.ErrCommandFailed, "fsl.Run", err, "%s", c.Args[0])
	}
	return res, nil
}
