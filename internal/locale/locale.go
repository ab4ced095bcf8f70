// ABOUTME: Maps host language names to tabulator locale strings.
// ABOUTME: Parses the configured "name=locale" mapping and resolves the caller's locale.

package locale

import "strings"

// DefaultMapping is used when no mapping is configured.
const DefaultMapping = "default=en-gb\nde=de-de"

// Language is a host language. Name is what the mapping matches against.
type Language struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Title string `json:"title"`
}

// Entry maps one language name to a tabulator locale.
type Entry struct {
	Name   string
	Locale string
}

// Mapping is an ordered list of language-to-locale entries.
type Mapping []Entry

// ParseMapping reads one name=locale pair per line. Blank lines and lines
// without a name or locale are skipped.
func ParseMapping(text string) Mapping {
	var m Mapping
	for _, line := range strings.Split(text, "\n") {
		name, loc, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		loc = strings.TrimSpace(loc)
		if name == "" || loc == "" {
			continue
		}
		m = append(m, Entry{Name: name, Locale: loc})
	}
	return m
}

// Resolve returns the locale of the first entry matching lang's name.
func (m Mapping) Resolve(lang *Language) (string, bool) {
	if lang == nil {
		return "", false
	}
	for _, e := range m {
		if e.Name == lang.Name {
			return e.Locale, true
		}
	}
	return "", false
}

// String renders the mapping back to its configuration text.
func (m Mapping) String() string {
	lines := make([]string, 0, len(m))
	for _, e := range m {
		lines = append(lines, e.Name+"="+e.Locale)
	}
	return strings.Join(lines, "\n")
}
