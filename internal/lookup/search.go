package lookup

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sizebot/sizebot/internal/storage"
)

// codeTail is how many trailing code characters the short suffix check uses.
const codeTail = 5

// Search scans records in order and renders one line per matching record.
// A record matches by code when its uppercased code ends with queryUpper
// (checked against the whole code and against its last five characters),
// otherwise by description when queryLower occurs there as a whole word.
// An empty query matches every record by code.
func Search(records []storage.Record, queryLower, queryUpper string) []string {
	var lines []string
	for _, rec := range records {
		if rec.Code == "" || rec.Description == "" {
			continue
		}

		codeUpper := strings.ToUpper(rec.Code)
		if strings.HasSuffix(codeUpper, queryUpper) || strings.HasSuffix(lastRunes(codeUpper, codeTail), queryUpper) {
			lines = append(lines, fmt.Sprintf("%s имеет размеры %s %s", rec.Code, rec.Size, rec.Description))
		} else if containsWord(strings.ToLower(rec.Description), queryLower) {
			lines = append(lines, fmt.Sprintf("%s имеет размеры %s. Описание: %s", rec.Code, rec.Size, rec.Description))
		}
	}
	return lines
}

// lastRunes returns the last n characters of s, or s when it is shorter.
func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// containsWord reports whether word occurs in text with a word boundary on
// both sides. A boundary sits between a word and a non-word character or at
// either end of text; letters, digits and '_' of any script are word
// characters. word is matched literally.
func containsWord(text, word string) bool {
	for from := 0; from <= len(text); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if atBoundary(text, start) && atBoundary(text, end) {
			return true
		}
		if start >= len(text) {
			return false
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return false
}

// atBoundary reports whether byte offset i of s is a word boundary.
func atBoundary(s string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:i])
		before = isWordRune(r)
	}
	if i < len(s) {
		r, _ := utf8.DecodeRuneInString(s[i:])
		after = isWordRune(r)
	}
	return before != after
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}
