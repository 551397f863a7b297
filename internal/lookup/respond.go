package lookup

import (
	"fmt"
	"strings"

	"github.com/sizebot/sizebot/internal/storage"
)

// Outcome classifies how a query was answered.
type Outcome string

const (
	OutcomeMatch   Outcome = "match"
	OutcomeDefault Outcome = "default"
	OutcomeUnknown Outcome = "unknown"
)

// Respond answers a free-text query. Record matches win; category defaults
// are used only when no record matches.
func Respond(records []storage.Record, query string) (string, Outcome) {
	query = strings.TrimSpace(query)
	queryUpper := strings.ToUpper(query)
	queryLower := strings.ToLower(query)

	if lines := Search(records, queryLower, queryUpper); len(lines) > 0 {
		return strings.Join(lines, "\n"), OutcomeMatch
	}
	if lines := DefaultSizes(queryUpper, Classify(queryUpper)); len(lines) > 0 {
		return strings.Join(lines, "\n"), OutcomeDefault
	}
	return UnknownReply(query), OutcomeUnknown
}

// UnknownReply is the answer for a query nothing matched.
func UnknownReply(query string) string {
	return fmt.Sprintf("К сожалению, я не знаю размеры для '%s'.", query)
}
