// Package settings loads optional operator overrides for the sender and
// receiver launchers from an INI file using gopkg.in/ini.v1, rather than
// a hand-rolled line scanner, for a format that is otherwise out of
// scope for the protocol core itself.
package settings

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/ini.v1"

	"github.com/phuwit/urft/internal/config"
)

// Overrides holds the values an operator may tune from urft.ini. Any field
// left unset in the file keeps internal/config's default.
type Overrides struct {
	LogLevel    string
	LossTimeout time.Duration
	ReadBuffer  int
	WriteBuffer int
}

// DefaultPath is where Load looks by default: ~/.urft/urft.ini.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".urft", "urft.ini")
}

// Load reads path and returns the overrides found in its [urft] section.
// A missing file is not an error: it returns a zero Overrides, so callers
// fall back to internal/config's compiled-in defaults.
func Load(path string) (Overrides, error) {
	var out Overrides
	if path == "" {
		return out, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return out, nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return out, config.ConfigError{Field: "settings_file", Message: err.Error(), Value: path}
	}
	sec := f.Section("urft")
	out.LogLevel = sec.Key("log_level").String()
	if ms, err := sec.Key("loss_timeout_ms").Int(); err == nil && ms > 0 {
		out.LossTimeout = time.Duration(ms) * time.Millisecond
	}
	if n, err := sec.Key("read_buffer_bytes").Int(); err == nil && n > 0 {
		out.ReadBuffer = n
	}
	if n, err := sec.Key("write_buffer_bytes").Int(); err == nil && n > 0 {
		out.WriteBuffer = n
	}
	return out, nil
}

// ApplyLossTimeout returns the effective LOSS_TIMEOUT: the override if
// present, otherwise config.LossTimeout.
func (o Overrides) ApplyLossTimeout() time.Duration {
	if o.LossTimeout > 0 {
		return o.LossTimeout
	}
	return config.LossTimeout
}
