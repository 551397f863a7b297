// Package commands routes chat messages to the size-table commands and to
// the free-text lookup.
package commands

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/sizebot/sizebot/internal/archive"
	"github.com/sizebot/sizebot/internal/observability"
	"github.com/sizebot/sizebot/internal/storage"
)

// Message is one incoming chat message.
type Message struct {
	Text   string
	Sender string // display name for logs
	UserID int64  // 0 when the channel has no user identity

	// Internal marks local sources (CLI, bulk-file watcher); they are not
	// subject to AdminIDs.
	Internal bool
}

// Config holds the dispatcher's file locations and access list.
type Config struct {
	// BulkPath is the text file /update_db loads.
	BulkPath string
	// TempDir receives export files until they are delivered.
	TempDir string
	// AdminIDs restricts mutating commands; empty allows everyone.
	AdminIDs []int64
}

// Status labels recorded for each command.
const (
	statusOK       = "ok"
	statusInvalid  = "invalid"
	statusNotFound = "not_found"
	statusRejected = "rejected"
	statusDenied   = "denied"
	statusEmpty    = "empty"
	statusError    = "error"
)

type handlerFunc func(ctx context.Context, msg Message) (Response, string)

type command struct {
	handle   handlerFunc
	mutating bool
}

// Dispatcher executes chat commands against a store.
type Dispatcher struct {
	store    storage.Store
	cfg      Config
	log      *observability.Logger
	metrics  *observability.Metrics
	archiver archive.Archiver
	now      func() time.Time

	commands map[string]command
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithArchiver copies every /export_db file to a.
func WithArchiver(a archive.Archiver) Option {
	return func(d *Dispatcher) { d.archiver = a }
}

// WithMetrics records command and query metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a dispatcher. A nil logger discards output.
func NewDispatcher(store storage.Store, cfg Config, log *observability.Logger, opts ...Option) *Dispatcher {
	if log == nil {
		log = observability.Discard()
	}
	if cfg.TempDir == "" {
		cfg.TempDir = "temp"
	}
	d := &Dispatcher{
		store: store,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	d.commands = map[string]command{
		"/start":     {handle: d.start},
		"/add":       {handle: d.add, mutating: true},
		"/up":        {handle: d.update, mutating: true},
		"/up_key":    {handle: d.updateKey, mutating: true},
		"/del":       {handle: d.remove, mutating: true},
		"/show_db":   {handle: d.showDB},
		"/update_db": {handle: d.updateDB, mutating: true},
		"/export_db": {handle: d.exportDB},
	}
	return d
}

// Dispatch answers one message. Known commands run their handler; any other
// text, including unknown slash commands, is treated as a size query.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) Response {
	name := commandName(msg.Text)
	cmd, ok := d.commands[name]
	if !ok {
		return d.query(ctx, msg)
	}

	start := time.Now()
	var (
		resp   Response
		status string
	)
	if cmd.mutating && !msg.Internal && !d.isAdmin(msg.UserID) {
		resp, status = text("Недостаточно прав для этой команды."), statusDenied
	} else {
		resp, status = cmd.handle(ctx, msg)
	}

	d.log.Command(name, msg.Sender, "status", status)
	if d.metrics != nil {
		d.metrics.RecordCommand(name, status, time.Since(start))
	}
	return resp
}

// commandName returns the leading "/command" of text without any
// "@BotName" suffix, or "" when text is not a command.
func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return name
}

func (d *Dispatcher) isAdmin(userID int64) bool {
	return len(d.cfg.AdminIDs) == 0 || slices.Contains(d.cfg.AdminIDs, userID)
}

func (d *Dispatcher) storeError(op string, err error) {
	d.log.Error("store operation failed", "operation", op, "error", err)
	if d.metrics != nil {
		d.metrics.StoreErrors.WithLabelValues(op).Inc()
	}
}
