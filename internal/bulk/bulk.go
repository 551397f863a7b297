// Package bulk reads and writes the line-oriented text form of the size
// table: one record per line, "<code> <size> <description>".
package bulk

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/sizebot/sizebot/internal/observability"
	"github.com/sizebot/sizebot/internal/storage"
)

// Stats summarizes an import.
type Stats struct {
	Loaded  int // records written to the store
	Skipped int // lines not in the three-field format
	Failed  int // lines the store rejected
}

// Upserter is the part of storage.Store an import needs.
type Upserter interface {
	Upsert(ctx context.Context, rec storage.Record) error
}

// ParseLine splits a line into code, size and description. The line is
// trimmed and split on whitespace runs; the description keeps the rest of
// the line including inner spaces. ok is false unless there are three fields.
func ParseLine(line string) (rec storage.Record, ok bool) {
	parts := SplitFields(strings.TrimSpace(line), 3)
	if len(parts) != 3 {
		return storage.Record{}, false
	}
	return storage.Record{Code: parts[0], Size: parts[1], Description: parts[2]}, true
}

// FormatLine renders a record as one line without a trailing newline.
func FormatLine(rec storage.Record) string {
	return rec.Code + " " + rec.Size + " " + rec.Description
}

// SplitFields splits s at runs of whitespace into at most n fields. Leading
// whitespace is ignored and the last field holds the unsplit remainder with
// its leading whitespace removed. n <= 0 means no limit.
func SplitFields(s string, n int) []string {
	var fields []string
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	for s != "" {
		if n > 0 && len(fields) == n-1 {
			fields = append(fields, s)
			break
		}
		end := strings.IndexFunc(s, unicode.IsSpace)
		if end < 0 {
			fields = append(fields, s)
			break
		}
		fields = append(fields, s[:end])
		s = strings.TrimLeftFunc(s[end:], unicode.IsSpace)
	}
	return fields
}

// Import upserts every well-formed line of r. Malformed lines are skipped
// with a warning and a failing upsert is logged; neither aborts the import.
// The returned error reports only read failures and cancellation.
func Import(ctx context.Context, dst Upserter, r io.Reader, log *observability.Logger) (Stats, error) {
	var st Stats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		line := scanner.Text()
		rec, ok := ParseLine(line)
		if !ok {
			st.Skipped++
			log.Warn("bulk: malformed line", "line", strings.TrimSpace(line))
			continue
		}
		if err := dst.Upsert(ctx, rec); err != nil {
			st.Failed++
			log.Error("bulk: insert failed", "line", strings.TrimSpace(line), "error", err)
			continue
		}
		st.Loaded++
	}
	if err := scanner.Err(); err != nil {
		return st, fmt.Errorf("read bulk data: %w", err)
	}
	return st, nil
}

// Write writes every record as a newline-terminated line.
func Write(w io.Writer, records []storage.Record) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		if _, err := bw.WriteString(FormatLine(rec) + "\n"); err != nil {
			return fmt.Errorf("write record %q: %w", rec.Code, err)
		}
	}
	return bw.Flush()
}

// Join renders records as lines separated by newlines, with no trailing
// newline.
func Join(records []storage.Record) string {
	lines := make([]string, len(records))
	for i, rec := range records {
		lines[i] = FormatLine(rec)
	}
	return strings.Join(lines, "\n")
}
