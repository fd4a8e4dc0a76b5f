package config

import (
	"time"

	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Duration accepts "200ms"-style values in YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return zerr.Wrap(err, "invalid duration")
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
