//go:build !linux

package priority

import "github.com/fernbridge/rtpcore/internal/logging"

var log = logging.DefaultLogger.WithTag("priority")

// Level is a relative scheduling priority intent. Higher is more urgent.
type Level int

const (
	// Normal leaves the calling thread's priority untouched.
	Normal Level = iota
	// Elevated requests a higher-than-default scheduling priority.
	Elevated
)

// Raise is a no-op outside Linux; setpriority(2) has no portable
// equivalent this codebase relies on elsewhere.
func Raise(lvl Level) {
	if lvl != Normal {
		log.Debug("priority: elevated scheduling unsupported on this platform, ignoring")
	}
}
