package tasklet

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger type accepted by a Scheduler, aliasing
// the generic logiface logger bound to stumpy's JSON event implementation —
// the same pairing the teacher's sibling packages use. It is injected
// rather than held as a package global, since a process may host many
// independent Scheduler instances, each pinned to its own OS thread.
type Logger = *logiface.Logger[*stumpy.Event]

// NewJSONLogger constructs a Logger writing newline-delimited JSON, in the
// shape `stumpy.L.New` produces in the reference packages.
func NewJSONLogger(level logiface.Level) Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(),
		stumpy.L.WithLevel(level),
	)
}

// LogLevel mirrors the syslog-style levels logiface exposes, re-exported so
// call sites needn't import logiface directly just to pick a level.
type LogLevel = logiface.Level

const (
	LogError   = logiface.LevelError
	LogWarning = logiface.LevelWarning
	LogNotice  = logiface.LevelNotice
	LogInfo    = logiface.LevelInformational
	LogDebug   = logiface.LevelDebug
)

// logField is a deferred key/value pair applied to a logiface Builder; used
// so logEvent's callers can build a field list without importing logiface's
// Builder type directly into scheduler.go/switch.go/channel.go.
type logField struct {
	key string
	val any
	err error // when set, applied via Builder.Err instead of Field
}

func f(key string, val any) logField { return logField{key: key, val: val} }
func errField(err error) logField    { return logField{key: "err", err: err} }

// logEvent emits a single structured log line through logger, applying
// fields and falling back to a no-op when logger is nil (constructing a
// Scheduler without WithLogger).
func logEvent(logger Logger, level LogLevel, msg string, fields ...logField) {
	if logger == nil {
		return
	}
	b := logger.Build(level)
	if b == nil || !b.Enabled() {
		return
	}
	for _, fld := range fields {
		if fld.err != nil {
			b = b.Err(fld.err)
			continue
		}
		b = b.Any(fld.key, fld.val)
	}
	b.Log(msg)
}

// rateLimitedLogEvent is logEvent, but throttled per category via
// diagnosticLimiter — used for events that can repeat in a tight loop
// (deadlock detection re-checks, uncaught exceptions, schedule
// fast-callback failures, inserts) where logging every occurrence would
// itself become a liveness problem.
func rateLimitedLogEvent(logger Logger, level LogLevel, category string, msg string, fields ...logField) {
	if _, ok := diagnosticLimiter.Allow(category); !ok {
		return
	}
	logEvent(logger, level, msg, fields...)
}
