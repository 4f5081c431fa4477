// Package logging configures the collector's process-wide structured
// logger and formats messages in the reference tool's
// "[forensics] component: message: cause" convention (spec §7).
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the package-level logger, the only ambient logging state in the
// process (design notes §9 — no per-component singletons beyond this one).
var Log = logrus.New()

func init() {
	Log.SetOutput(os.Stderr)
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	Log.SetLevel(logrus.InfoLevel)
}

// SetLevel parses a level name ("debug", "info", "warn", "error") and
// applies it, falling back to Info on an unrecognized value.
func SetLevel(name string) {
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)
}

// Component returns a logger scoped to one collector component. It tags
// entries with a "component" field and leaves the message text as given;
// it does not add the "[forensics] <component>: " prefix (Errorf does).
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}

// Errorf logs "[forensics] <component>: <message>: <cause>" and returns
// nothing — call sites still construct and return their own typed error.
func Errorf(component, message string, cause error) {
	Component(component).Errorf("[forensics] %s: %s: %v", component, message, cause)
}
