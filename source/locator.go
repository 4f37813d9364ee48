package source

import (
	"path/filepath"
	"strings"

	"github.com/teranos/rota/errors"
)

// Supported locator schemes.
const (
	SchemeGoogleSheets = "gsheet" // gsheet://<spreadsheet-id>/<tab>
	SchemeFile         = "file"   // file:///path/to/workbook.yaml#<tab>
	SchemeMemory       = "mem"    // mem://<book>/<tab>
)

// Default tab names inside a schedule's workbooks.
const (
	RosterTab      = "Roster"
	ShiftsTab      = "Shifts"
	PreferencesTab = "Preferences"
	ResultsTab     = "Schedule"
	summarySuffix  = " Summary"
)

// Locator addresses one tab of one workbook.
type Locator struct {
	Scheme string
	Book   string
	Tab    string
}

// ParseLocator parses a definition's locator string. The tab is optional.
func ParseLocator(s string) (Locator, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(s), "://")
	if !ok || scheme == "" || rest == "" {
		return Locator{}, errors.NewInvalidInput("locator %q is not scheme://workbook[/tab]", s)
	}
	loc := Locator{Scheme: strings.ToLower(scheme)}
	switch loc.Scheme {
	case SchemeFile:
		path, tab, _ := strings.Cut(rest, "#")
		loc.Book = filepath.Clean(path)
		loc.Tab = tab
	case SchemeGoogleSheets, SchemeMemory:
		book, tab, _ := strings.Cut(rest, "/")
		loc.Book = book
		loc.Tab = tab
	default:
		return Locator{}, errors.NewInvalidInput("locator %q: unsupported scheme %q", s, scheme)
	}
	if loc.Book == "" || loc.Book == "." {
		return Locator{}, errors.NewInvalidInput("locator %q names no workbook", s)
	}
	return loc, nil
}

// WithTab returns the locator pointing at tab.
func (l Locator) WithTab(tab string) Locator {
	l.Tab = tab
	return l
}

// OrTab returns the locator with tab filled in when it has none.
func (l Locator) OrTab(tab string) Locator {
	if l.Tab == "" {
		l.Tab = tab
	}
	return l
}

func (l Locator) String() string {
	if l.Scheme == SchemeFile {
		s := "file://" + l.Book
		if l.Tab != "" {
			s += "#" + l.Tab
		}
		return s
	}
	s := l.Scheme + "://" + l.Book
	if l.Tab != "" {
		s += "/" + l.Tab
	}
	return s
}
