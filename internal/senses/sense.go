package senses

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Reply is what a sense delivers back to its user. Document, when set, is
// a local file sent before Text.
type Reply struct {
	Text     string
	Document string
}

// Empty reports whether the reply carries nothing to deliver.
func (r Reply) Empty() bool { return r.Text == "" && r.Document == "" }

// Sense is one way the bot receives messages and answers them
// (Telegram, CLI, HTTP API, the bulk-file watcher).
type Sense interface {
	// Name returns the sense name. Inputs carry it in SourceMeta.Channel so
	// replies can be routed back.
	Name() string

	// Start emits received messages on out and blocks until ctx is
	// cancelled or an unrecoverable error occurs.
	Start(ctx context.Context, out chan<- *UnifiedInput) error

	// Send delivers a reply. target is the input's ResponseChannel.
	Send(ctx context.Context, target string, reply Reply) error

	// Stop releases the sense's resources.
	Stop() error
}

// SenseRegistry holds the senses of one bot, keyed by name.
type SenseRegistry struct {
	mu     sync.RWMutex
	senses map[string]Sense
}

// NewSenseRegistry creates an empty registry.
func NewSenseRegistry() *SenseRegistry {
	return &SenseRegistry{
		senses: make(map[string]Sense),
	}
}

// Register adds a sense, replacing any sense with the same name.
func (r *SenseRegistry) Register(sense Sense) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senses[sense.Name()] = sense
}

// Get returns the sense registered under name, or nil.
func (r *SenseRegistry) Get(name string) Sense {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.senses[name]
}

// Names returns the registered sense names in sorted order.
func (r *SenseRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.senses))
	for name := range r.senses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll runs every registered sense in its own goroutine and blocks until
// all of them have returned. All senses share out. A sense stopping because
// ctx was cancelled is not an error; the first other failure cancels the
// remaining senses and is returned.
func (r *SenseRegistry) StartAll(ctx context.Context, out chan<- *UnifiedInput) error {
	r.mu.RLock()
	list := make([]Sense, 0, len(r.senses))
	for _, s := range r.senses {
		list = append(list, s)
	}
	r.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, s := range list {
		g.Go(func() error {
			if err := s.Start(ctx, out); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("sense %q: %w", s.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// StopAll stops every registered sense and joins their errors.
func (r *SenseRegistry) StopAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for name, s := range r.senses {
		if err := s.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
