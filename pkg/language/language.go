// Package language holds the fixed table of languages a user can switch to,
// keyed by the human-readable name a recognizer extracts from the user's text.
package language

import (
	"sort"
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Code is an ISO 639-1 language code such as "fr".
type Code string

// String returns the code as a plain string.
func (c Code) String() string {
	return string(c)
}

// Map resolves human-readable language names to codes.
// Names are matched case-insensitively.
type Map struct {
	byName map[string]Code
	byCode map[Code]string
}

// NewMap builds a Map from a name -> code table.
func NewMap(table map[string]Code) *Map {
	m := &Map{
		byName: make(map[string]Code, len(table)),
		byCode: make(map[Code]string, len(table)),
	}
	for name, code := range table {
		name = strings.ToLower(name)
		m.byName[name] = code
		m.byCode[code] = name
	}
	return m
}

var defaultTable = map[string]Code{
	"danish":     "da",
	"dutch":      "nl",
	"english":    "en",
	"finnish":    "fi",
	"french":     "fr",
	"german":     "de",
	"greek":      "el",
	"italian":    "it",
	"japanese":   "ja",
	"norwegian":  "no",
	"polish":     "pl",
	"portuguese": "pt",
	"russian":    "ru",
	"spanish":    "es",
	"swedish":    "sv",
	"turkish":    "tr",
}

// Default is the table of languages the bot lets users switch to.
var Default = NewMap(defaultTable)

// IsSupported reports whether name is a known language name.
func (m *Map) IsSupported(name string) bool {
	_, ok := m.byName[strings.ToLower(name)]
	return ok
}

// CodeOf returns the code for name. Callers must check IsSupported first;
// an unknown name yields the empty code.
func (m *Map) CodeOf(name string) Code {
	return m.byName[strings.ToLower(name)]
}

// IsSupportedCode reports whether code belongs to the table.
func (m *Map) IsSupportedCode(code Code) bool {
	_, ok := m.byCode[code]
	return ok
}

// NameOf returns the lower-case table name for code, or "" if unknown.
func (m *Map) NameOf(code Code) string {
	return m.byCode[code]
}

// Codes returns all codes in ascending order.
func (m *Map) Codes() []Code {
	codes := make([]Code, 0, len(m.byCode))
	for code := range m.byCode {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Names returns all language names in ascending order.
func (m *Map) Names() []string {
	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DisplayName returns the English display name of code, e.g. "French" for "fr".
// Unparseable codes are returned unchanged.
func DisplayName(code Code) string {
	tag, err := xlanguage.Parse(string(code))
	if err != nil {
		return string(code)
	}
	name := display.English.Languages().Name(tag)
	if name == "" {
		return string(code)
	}
	return name
}
