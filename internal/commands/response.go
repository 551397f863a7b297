package commands

import (
	"errors"
	"fmt"
	"os"
)

// Response is what the bot sends back for one message. Document, when set,
// is a local file delivered before Text.
type Response struct {
	Text     string
	Document string

	temp []string
}

// text builds a plain-text response.
func text(format string, args ...any) Response {
	if len(args) == 0 {
		return Response{Text: format}
	}
	return Response{Text: fmt.Sprintf(format, args...)}
}

// Cleanup removes the temporary files backing the response. It is safe to
// call more than once.
func (r *Response) Cleanup() error {
	var errs []error
	for _, p := range r.temp {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove temp file: %w", err))
		}
	}
	r.temp = nil
	return errors.Join(errs...)
}
