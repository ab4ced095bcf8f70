// ABOUTME: Tabulator locale strings loaded from YAML.
// ABOUTME: An embedded default covers en-gb and de-de; a file may override it.

package locale

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed langs.yaml
var defaultStrings []byte

// Strings holds the widget translations per tabulator locale.
type Strings map[string]map[string]any

// LoadStrings decodes a YAML document of locale → translations.
func LoadStrings(r io.Reader) (Strings, error) {
	var s Strings
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		if err == io.EOF {
			return Strings{}, nil
		}
		return nil, fmt.Errorf("decode locale strings: %w", err)
	}
	if s == nil {
		s = Strings{}
	}
	return s, nil
}

// LoadStringsFile reads locale strings from path. An empty path yields the
// embedded defaults.
func LoadStringsFile(path string) (Strings, error) {
	if path == "" {
		return DefaultStrings(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadStrings(f)
}

// DefaultStrings returns the embedded translations.
func DefaultStrings() Strings {
	var s Strings
	if err := yaml.Unmarshal(defaultStrings, &s); err != nil {
		panic(fmt.Sprintf("locale: embedded langs.yaml is invalid: %v", err))
	}
	return s
}
