// Package config loads the optional dake.yaml settings file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.trai.ch/dake/internal/core/domain"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Filename is the settings file looked up in the build directory.
const Filename = "dake.yaml"

// Settings holds the tunables of a build invocation and the daemon. Zero
// values fall back to the defaults below.
type Settings struct {
	// Port is the daemon TCP port.
	Port int `yaml:"port"`

	// DialAttempts bounds connection retries before a node counts as failed.
	DialAttempts int `yaml:"dial_attempts"`

	// DialBackoff is the initial retry delay; it doubles per attempt.
	DialBackoff Duration `yaml:"dial_backoff"`

	// BuildTimeout bounds one remote dispatch. Zero means no deadline.
	BuildTimeout Duration `yaml:"build_timeout"`

	// Parallelism caps concurrently running targets.
	Parallelism int `yaml:"parallelism"`

	// NodeParallelism caps in-flight builds per node. Zero means unbounded.
	NodeParallelism int `yaml:"node_parallelism"`
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		Port:         domain.DefaultPort,
		DialAttempts: 3,
		DialBackoff:  Duration(200 * time.Millisecond),
		Parallelism:  runtime.NumCPU(),
	}
}

// Load reads dake.yaml from dir, returning defaults when the file is absent.
func Load(dir string) (*Settings, error) {
	s := Default()

	data, err := os.ReadFile(filepath.Join(dir, Filename)) //nolint:gosec // settings path is fixed
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, zerr.Wrap(err, "failed to read settings file")
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, zerr.Wrap(err, "failed to parse settings file")
	}
	s.applyDefaults()
	return s, nil
}

func (s *Settings) applyDefaults() {
	d := Default()
	if s.Port == 0 {
		s.Port = d.Port
	}
	if s.DialAttempts == 0 {
		s.DialAttempts = d.DialAttempts
	}
	if s.DialBackoff == 0 {
		s.DialBackoff = d.DialBackoff
	}
	if s.Parallelism == 0 {
		s.Parallelism = d.Parallelism
	}
}
