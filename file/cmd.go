package file

import (
	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/ingest"
)

// Main contains the configuration for an ingester with a file Source.
type Main struct {
	ingest.Main `flag:"!embed"`
	Path        string `help:"File or directory path to read from."`
	Input       string `help:"Input format: iso2709 (any framing preset) or json."`
}

// NewMain gets a new Main with the default configuration.
func NewMain() *Main {
	m := &Main{
		Main:  *ingest.NewMain(),
		Input: InputISO2709,
	}
	m.NewSource = func() (mdk.Source, error) {
		return NewSource(m.Path, m.Input, m.Framing)
	}
	return m
}
