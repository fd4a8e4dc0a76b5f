package makefile

import (
	"fmt"
	"os"
	"path/filepath"

	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/dake/internal/core/ports"
	"go.trai.ch/zerr"
)

// Candidate filenames tried in order when no explicit file is given.
var defaultCandidates = []string{"Makefile", "makefile", "GNUMakefile"}

// Loader implements ports.MakefileLoader against the filesystem.
type Loader struct {
	// Filename overrides the candidate search when set (the -f flag).
	Filename string

	logger ports.Logger
}

// NewLoader creates a Loader.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load finds and parses the Makefile in dir.
func (l *Loader) Load(dir string) (*domain.Makefile, error) {
	path, err := l.discover(dir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is the user's Makefile
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read makefile")
	}

	mk, err := Parse(string(data))
	if err != nil {
		return nil, zerr.With(err, "makefile", path)
	}
	mk.Path = path

	if l.logger != nil {
		l.logger.Info(fmt.Sprintf("parsed %s: %d targets, %d root definitions",
			path, mk.Graph.TargetCount(), mk.RootDefs.Len()))
	}
	return mk, nil
}

func (l *Loader) discover(dir string) (string, error) {
	if l.Filename != "" {
		return filepath.Join(dir, l.Filename), nil
	}
	for _, name := range defaultCandidates {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", domain.ErrNoMakefile
}
