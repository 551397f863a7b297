package senses

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// CLISense reads queries and commands line by line from a reader and prints
// replies to a writer, typically os.Stdin and os.Stdout.
type CLISense struct {
	reader io.Reader
	writer io.Writer

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
}

// NewCLISense creates a CLI sense adapter.
func NewCLISense(reader io.Reader, writer io.Writer) *CLISense {
	return &CLISense{
		reader: reader,
		writer: writer,
	}
}

// Name returns the sense name.
func (c *CLISense) Name() string { return "CLI" }

// Start emits one input per non-blank line. It returns nil at EOF or on
// "/quit" and "/exit".
func (c *CLISense) Start(ctx context.Context, out chan<- *UnifiedInput) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	// Scan in a goroutine so cancellation is not blocked on a read.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.reader)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/quit" || line == "/exit" {
				return nil
			}

			input := NewUnifiedInput(SourceText, c.Name(), line)
			input.SourceMeta.Sender = "local_user"

			select {
			case out <- input:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Send prints the reply. A document is printed inline under its path.
func (c *CLISense) Send(_ context.Context, _ string, reply Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return fmt.Errorf("cli sense is stopped")
	}

	if reply.Document != "" {
		data, err := os.ReadFile(reply.Document)
		if err != nil {
			return fmt.Errorf("cli: read document: %w", err)
		}
		if _, err := fmt.Fprintf(c.writer, "\n--- %s ---\n%s\n", reply.Document, strings.TrimRight(string(data), "\n")); err != nil {
			return err
		}
	}
	if reply.Text != "" {
		if _, err := fmt.Fprintf(c.writer, "\n%s\n", reply.Text); err != nil {
			return err
		}
	}
	return nil
}

// Stop cancels a running Start and rejects further replies.
func (c *CLISense) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}
