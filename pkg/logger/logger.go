// Package logger is the leveled process logger shared by the docledger
// binaries. Lines are plain text by default:
//
//	2026-01-02T15:04:05Z [WARN] audit append failed action=DELETE doc=doc-1
//
// SetFormat("json") switches to one JSON object per line for log shippers.
package logger

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"debug", "info", "warn", "error", "fatal"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelFatal {
		return "info"
	}
	return levelNames[l]
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelFatal:
		return slog.LevelError + 4
	}
	return slog.LevelInfo
}

var (
	mu      sync.RWMutex
	out     io.Writer    = os.Stdout
	textLog *log.Logger  = log.New(os.Stdout, "", 0)
	jsonLog *slog.Logger
	level   Level        = LevelInfo
)

// Init sets the level (debug, info, warn, error, fatal; case-insensitive).
// Anything else selects info.
func Init(l string) {
	next := LevelInfo
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		next = LevelDebug
	case "warn", "warning":
		next = LevelWarn
	case "error":
		next = LevelError
	case "fatal":
		next = LevelFatal
	}
	mu.Lock()
	level = next
	mu.Unlock()
}

// SetOutput redirects every subsequent line to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	textLog = log.New(w, "", 0)
	if jsonLog != nil {
		jsonLog = newJSON(w)
	}
}

// SetFormat selects "text" (or "") or "json".
func SetFormat(format string) error {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		jsonLog = nil
	case "json":
		jsonLog = newJSON(out)
	default:
		return fmt.Errorf("logger: unknown format %q", format)
	}
	return nil
}

func newJSON(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	return level.String()
}

func enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func emit(l Level, msg string, kv []interface{}) {
	if !enabled(l) {
		return
	}
	mu.RLock()
	j, t := jsonLog, textLog
	mu.RUnlock()
	if j != nil {
		j.Log(context.Background(), l.slog(), msg, kv...)
		return
	}
	line := time.Now().UTC().Format(time.RFC3339) + " [" + strings.ToUpper(l.String()) + "] " + msg
	if len(kv) > 0 {
		line += " " + Fields(kv...)
	}
	t.Print(line)
}

func Debugf(format string, v ...interface{}) { emit(LevelDebug, fmt.Sprintf(format, v...), nil) }
func Infof(format string, v ...interface{})  { emit(LevelInfo, fmt.Sprintf(format, v...), nil) }
func Warnf(format string, v ...interface{})  { emit(LevelWarn, fmt.Sprintf(format, v...), nil) }
func Errorf(format string, v ...interface{}) { emit(LevelError, fmt.Sprintf(format, v...), nil) }

// Fatalf logs and exits with status 1. Deferred calls do not run.
func Fatalf(format string, v ...interface{}) {
	emit(LevelFatal, fmt.Sprintf(format, v...), nil)
	os.Exit(1)
}

func Debug(msg string) { emit(LevelDebug, msg, nil) }
func Info(msg string)  { emit(LevelInfo, msg, nil) }
func Warn(msg string)  { emit(LevelWarn, msg, nil) }
func Error(msg string) { emit(LevelError, msg, nil) }

// Println logs at info.
func Println(v ...interface{}) {
	emit(LevelInfo, strings.TrimSuffix(fmt.Sprintln(v...), "\n"), nil)
}

// Debugw and friends append key/value pairs to msg.
func Debugw(msg string, kv ...interface{}) { emit(LevelDebug, msg, kv) }
func Infow(msg string, kv ...interface{})  { emit(LevelInfo, msg, kv) }
func Warnw(msg string, kv ...interface{})  { emit(LevelWarn, msg, kv) }
func Errorw(msg string, kv ...interface{}) { emit(LevelError, msg, kv) }

// Fields renders key/value pairs as "k1=v1 k2=v2". A dangling key is
// rendered with the value MISSING.
func Fields(kv ...interface{}) string {
	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%v=", kv[i])
		if i+1 >= len(kv) {
			b.WriteString("MISSING")
			continue
		}
		v := fmt.Sprint(kv[i+1])
		if strings.ContainsAny(v, " \t\"") {
			v = fmt.Sprintf("%q", v)
		}
		b.WriteString(v)
	}
	return b.String()
}
