// Package logger is a small leveled wrapper over the standard log package.
// Every line carries the service prefix set with SetPrefix.
package logger

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

var (
	prefix   atomic.Value
	logLevel atomic.Int32
)

func init() {
	prefix.Store("")
	logLevel.Store(int32(LevelInfo))
}

// SetPrefix sets the tag written in front of every line, e.g. "chatlink".
func SetPrefix(p string) {
	prefix.Store(p)
}

// SetLevel parses "debug", "info" or "error". Unknown values mean info.
func SetLevel(name string) {
	switch strings.ToLower(name) {
	case "debug", "trace":
		logLevel.Store(int32(LevelDebug))
	case "error":
		logLevel.Store(int32(LevelError))
	default:
		logLevel.Store(int32(LevelInfo))
	}
}

func enabled(l Level) bool {
	return Level(logLevel.Load()) <= l
}

func tag() string {
	p, _ := prefix.Load().(string)
	if p == "" {
		return ""
	}
	return "[" + p + "] "
}

func Debugf(format string, v ...any) {
	if enabled(LevelDebug) {
		log.Print(tag() + "DEBUG: " + fmt.Sprintf(format, v...))
	}
}

func Infof(format string, v ...any) {
	if enabled(LevelInfo) {
		log.Print(tag() + fmt.Sprintf(format, v...))
	}
}

func Errorf(format string, v ...any) {
	log.Print(tag() + "ERROR: " + fmt.Sprintf(format, v...))
}

// Fatalf logs and exits with status 1.
func Fatalf(format string, v ...any) {
	log.Fatal(tag() + "FATAL: " + fmt.Sprintf(format, v...))
}

// LogDuration logs fn and its run time. At info level only calls slower than
// 100ms are written.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if enabled(LevelDebug) || elapsed >= 100*time.Millisecond {
		log.Printf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds())
	}
}

// DeferLogDuration is meant for defer: defer logger.DeferLogDuration("chats.Get", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
