package source

import (
	"fmt"

	"github.com/dgallion1/treerows/internal/rowtree"
	"github.com/spf13/afero"
)

// FileLoader reads a tree fixture from a filesystem.
type FileLoader struct {
	fs afero.Fs
}

// NewFileLoader returns a loader over fs. A nil fs means the OS filesystem.
func NewFileLoader(fs afero.Fs) *FileLoader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileLoader{fs: fs}
}

// Load decodes the fixture at path, choosing JSON or YAML by extension.
func (l *FileLoader) Load(path string) (*rowtree.Tree, error) {
	format, err := FormatForFile(path)
	if err != nil {
		return nil, err
	}
	f, err := l.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return Decode(format, f)
}
