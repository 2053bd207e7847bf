package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// wrapperFramePrefixes mark call frames the reported caller must never
// point at: logrus internals and this package's Entry wrappers.
var wrapperFramePrefixes = []string{
	"github.com/sirupsen/logrus",
	"gridflow/logger",
}

// callerHook rewrites each entry's caller to the first frame outside the
// logging stack, so the file:line in output names the component that
// actually logged.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	// Skip runtime.Callers, this method and the logrus dispatch frames.
	n := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.PC != 0 && !isWrapperFrame(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}

func isWrapperFrame(fn string) bool {
	for _, prefix := range wrapperFramePrefixes {
		if strings.Contains(fn, prefix) {
			return true
		}
	}
	return false
}
