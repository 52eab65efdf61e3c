// Package bootloader runs the named initialisation steps of a server in
// registration order.
package bootloader

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Step is one initialisation step.
type Step func(ctx context.Context) error

type namedStep struct {
	name string
	fn   Step
}

// Loader collects steps and runs them once.
type Loader struct {
	log   *slog.Logger
	steps []namedStep
}

func New(log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{log: log}
}

// Add appends a step. Steps run in the order they were added.
func (l *Loader) Add(name string, fn Step) *Loader {
	l.steps = append(l.steps, namedStep{name: name, fn: fn})
	return l
}

// Steps lists the registered step names.
func (l *Loader) Steps() []string {
	names := make([]string, len(l.steps))
	for i, s := range l.steps {
		names[i] = s.name
	}
	return names
}

// Load runs every step, stopping at the first failure.
func (l *Loader) Load(ctx context.Context) error {
	for _, s := range l.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		l.log.Debug("Boot step", "step", s.name)
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("boot step %s: %w", s.name, err)
		}
		l.log.Debug("Boot step done", "step", s.name, "took", time.Since(start))
	}
	return nil
}
