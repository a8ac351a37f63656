//go:build linux

// Package priority applies a best-effort OS scheduling hint to the
// calling goroutine's underlying thread (C7). It is never fatal: a
// failure to raise priority only logs and continues, since the
// reception core must function (just less punctually) without elevated
// scheduling. Grounded on internal/v4l2/device.go's direct
// golang.org/x/sys/unix syscalls for OS-level resource control.
package priority

import (
	"golang.org/x/sys/unix"

	"github.com/fernbridge/rtpcore/internal/logging"
)

var log = logging.DefaultLogger.WithTag("priority")

// Level is a relative scheduling priority intent. Higher is more urgent.
type Level int

const (
	// Normal leaves the calling thread's priority untouched.
	Normal Level = iota
	// Elevated requests a higher-than-default scheduling priority,
	// intended for the Receiver goroutine: packet loss from scheduling
	// delay costs more than the hint does.
	Elevated
)

// niceDelta maps a Level to the Linux nice-value adjustment applied via
// setpriority(2). Lower nice values run sooner; 0 is the default.
var niceDelta = map[Level]int{
	Normal:   0,
	Elevated: -10,
}

// Raise applies lvl to the calling OS thread. Callers on a goroutine that
// should retain an elevated priority for its lifetime must have pinned
// themselves to that OS thread first (runtime.LockOSThread), since
// setpriority(2) targets a specific thread id, not a goroutine.
func Raise(lvl Level) {
	delta, ok := niceDelta[lvl]
	if !ok || delta == 0 {
		return
	}

	tid := unix.Gettid()
	if err := unix.Setpriority(unix.PRIO_PROCESS, tid, delta); err != nil {
		log.Info("priority: setpriority(tid=%d, nice=%d) failed: %v", tid, delta, err)
	}
}
