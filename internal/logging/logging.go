// Package logging wires the sender and receiver onto a pair of
// package-level logrus loggers, each carrying a role field; their messages
// are bracket-tagged ([SEND], [RECV]) so a transfer's log lines read as one
// trace across segment kinds.
package logging

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// FieldLogger is the subset of logrus's logger interface callers need;
// re-exported here so packages depending on internal/logging don't also
// need to import logrus directly just to name the type.
type FieldLogger = log.FieldLogger

// Sender is the logger used by internal/sender.
var Sender = log.WithField("role", "send")

// Receiver is the logger used by internal/receiver.
var Receiver = log.WithField("role", "recv")

func init() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
}

// SetLevel parses level (one of logrus's level names) and applies it to the
// shared logger. An unrecognized name is ignored and the current level is
// kept, since a malformed URFT_LOG_LEVEL should degrade, not crash, a
// transfer that is otherwise healthy.
func SetLevel(level string) {
	if level == "" {
		return
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("[CONFIG] ignoring unknown log level %q", level)
		return
	}
	log.SetLevel(lvl)
}
