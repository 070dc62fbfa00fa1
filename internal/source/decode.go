package source

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/treerows/internal/rowtree"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a tree fixture.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForFile picks the fixture format from the file extension.
func FormatForFile(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported fixture extension: %q", filepath.Ext(filename))
	}
}

// Decode reads a list of root records and validates the result.
func Decode(format Format, r io.Reader) (*rowtree.Tree, error) {
	var roots []*rowtree.Record
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&roots); err != nil {
			return nil, &DecodeError{Format: format, Err: err}
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&roots); err != nil && err != io.EOF {
			return nil, &DecodeError{Format: format, Err: err}
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if err := rowtree.Validate(roots); err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	return rowtree.New(roots), nil
}

// DecodeError reports a fixture that could not be decoded or failed
// validation. It is never retryable.
type DecodeError struct {
	Format Format
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s tree: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
