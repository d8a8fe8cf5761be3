// Package textsurface defines the external text-insertion surface: the
// third party that consumes a finalized transcript and inserts it wherever
// the host application's focus currently is. The core never assumes
// a concrete embedding target; it only depends on this interface.
package textsurface

import (
	"fmt"
	"log/slog"
)

// Surface accepts a finalized transcript string and reports whether the
// insertion succeeded.
type Surface interface {
	Insert(text string) error
}

// noop is a Surface that discards everything. It backs configurations
// where no embedding target is registered (e.g. headless test runs).
type noop struct{}

// Noop returns a Surface that always succeeds without doing anything.
func Noop() Surface { return noop{} }

func (noop) Insert(string) error { return nil }

// logSurface logs the inserted text instead of delivering it anywhere,
// useful for local development and the reference CLI.
type logSurface struct {
	log *slog.Logger
}

// Logging returns a Surface that records each insertion at info level.
func Logging(log *slog.Logger) Surface {
	if log == nil {
		log = slog.Default()
	}
	return logSurface{log: log}
}

func (s logSurface) Insert(text string) error {
	s.log.Info("text surface insert", "text", text)
	return nil
}

// stdoutSurface writes the inserted text directly to a sink, one line per
// insertion. Used by the producer's reference command-line front end.
type stdoutSurface struct {
	write func(string) (int, error)
}

// Stdout returns a Surface that writes text followed by a newline via write.
func Stdout(write func(string) (int, error)) Surface {
	return stdoutSurface{write: write}
}

func (s stdoutSurface) Insert(text string) error {
	_, err := s.write(fmt.Sprintln(text))
	return err
}
