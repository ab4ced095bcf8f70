// ABOUTME: Front-end bootstrap configuration for the tabulator widget.
// ABOUTME: Built per request from the caller's effective language.

package locale

// Config is the blob handed to the browser widget.
type Config struct {
	Locale string         `json:"locale,omitempty"`
	Langs  map[string]any `json:"langs,omitempty"`
}

// Resolver combines the configured mapping with the locale strings.
type Resolver struct {
	mapping Mapping
	strings Strings
}

// NewResolver creates a resolver. A nil mapping falls back to DefaultMapping.
func NewResolver(m Mapping, s Strings) *Resolver {
	if m == nil {
		m = ParseMapping(DefaultMapping)
	}
	if s == nil {
		s = Strings{}
	}
	return &Resolver{mapping: m, strings: s}
}

// Locale returns the tabulator locale for lang, or "" when none matches.
func (r *Resolver) Locale(lang *Language) string {
	loc, _ := r.mapping.Resolve(lang)
	return loc
}

// Config builds the bootstrap blob for lang. It is empty when lang has no
// mapped locale.
func (r *Resolver) Config(lang *Language) Config {
	loc, ok := r.mapping.Resolve(lang)
	if !ok {
		return Config{}
	}
	var data any = map[string]any{}
	if s, ok := r.strings[loc]; ok {
		data = s
	}
	return Config{
		Locale: loc,
		Langs:  map[string]any{loc: data},
	}
}

