package infra

import (
	"fmt"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
)

// GoRecoverable runs job and restarts it in a new goroutine after a panic.
// A negative budget restarts forever, zero makes the next panic fatal.
func GoRecoverable(budget int, job string, f func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		entry := log.WithFields(log.Fields{"object": "Recoverable", "job": job})
		entry.WithFields(log.Fields{
			"panic":  fmt.Sprint(r),
			"source": panicSource(),
		}).Error("job panicked")
		if budget == 0 {
			entry.Fatal("panic budget exhausted")
			return
		}
		if budget > 0 {
			budget--
		}
		entry.WithField("budget", budget).Debug("restarting job")
		go GoRecoverable(budget, job, f)
	}()
	f()
}

// panicSource names the first non-runtime frame above the deferred recover.
func panicSource() string {
	var pcs [16]uintptr
	frames := runtime.CallersFrames(pcs[:runtime.Callers(3, pcs[:])])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !strings.HasPrefix(frame.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", frame.Function, frame.Line)
		}
		if !more {
			break
		}
	}
	return "unknown"
}
