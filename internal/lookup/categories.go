// Package lookup answers free-text part queries against the size table.
//
// A query is first matched against record codes (by suffix) and descriptions
// (by whole word). When nothing matches, the query's prefix is classified into
// known part categories and the category's standard size is suggested.
package lookup

import (
	"fmt"
	"strings"
)

// Category is a known part family recognized by its code prefix, together
// with the standard size suggested when no record matches.
type Category struct {
	Name        string
	Prefix      string
	DisplayName string
	Size        string
	Caveat      string
}

// Categories lists every known category in reporting order.
var Categories = []Category{
	{"turbine", "78000", "Турбины", "27*27*30", "Турбина может не соответствовать размерам."},
	{"actuator", "38000", "Актуатора-турбины", "14*13*9", "Актуатор может не соответствовать размерам."},
	{"cartridge", "58000", "Картридж-турбины", "16*15*15", "Картридж может не соответствовать размерам."},
	{"chain_dispensing", "47400", "Цепь-раздатки", "40*8*5", ""},
	{"valve_cover", "22500", "Клапанная крышка", "50*31*12", "Клапанная-крышка может не соответствовать размерам."},
	{"compressor", "85500", "Компрессора", "28*19*22", ""},
	{"injector", "04451", "Форсунки", "27*7*7", ""},
	{"injector_095000", "095000", "Форсунки", "24*12*6", ""},
	{"injector_ejbr", "EJBR", "Форсунки", "25*6*5", ""},
	{"injector_embr", "EMBR", "Форсунки", "30*6*6", ""},
	{"tnvd", "04450", "ТНВД", "30*20*25", "ТНВД может не соответствовать размерам."},
}

// Flags holds one flag per entry of Categories, in the same order.
type Flags []bool

// Classify tests queryUpper against every category prefix. The test is
// case-sensitive; callers pass an uppercased query.
func Classify(queryUpper string) Flags {
	flags := make(Flags, len(Categories))
	for i, c := range Categories {
		flags[i] = strings.HasPrefix(queryUpper, c.Prefix)
	}
	return flags
}

// Has reports whether the named category flag is set.
func (f Flags) Has(name string) bool {
	for i, c := range Categories {
		if c.Name == name {
			return i < len(f) && f[i]
		}
	}
	return false
}

// Names returns the names of the set flags in category order.
func (f Flags) Names() []string {
	var names []string
	for i, set := range f {
		if set && i < len(Categories) {
			names = append(names, Categories[i].Name)
		}
	}
	return names
}

// DefaultSizes renders one standard-size line per set flag. The ". "
// separator is kept even when the category has no caveat.
func DefaultSizes(queryUpper string, flags Flags) []string {
	var lines []string
	for i, set := range flags {
		if !set || i >= len(Categories) {
			continue
		}
		c := Categories[i]
		lines = append(lines, fmt.Sprintf("Стандартные размеры для %s %s: %s. %s",
			c.DisplayName, queryUpper, c.Size, c.Caveat))
	}
	return lines
}
