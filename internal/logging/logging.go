package logging

import (
	"io"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// New returns a logger writing to stderr at the given level.
func New(level string, asJSON bool) (*log.Logger, error) {
	return NewWithOutput(os.Stderr, level, asJSON)
}

// NewWithOutput is New with an explicit destination.
func NewWithOutput(w io.Writer, level string, asJSON bool) (*log.Logger, error) {
	logger := log.New()
	logger.SetOutput(w)
	if err := Configure(logger, level, asJSON); err != nil {
		return nil, err
	}
	return logger, nil
}

// Configure sets the level and format of logger. An empty level is info.
func Configure(logger *log.Logger, level string, asJSON bool) error {
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLevel(lvl)

	if asJSON {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{DisableTimestamp: false, FullTimestamp: true})
	}
	return nil
}

// Invocation tags every entry of one command invocation with a fresh id.
func Invocation(logger *log.Logger, command string) *log.Entry {
	return logger.WithFields(log.Fields{
		"invocation": uuid.New().String(),
		"command":    command,
	})
}

// Discard returns an entry that drops everything, for tests and library callers.
func Discard() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}
