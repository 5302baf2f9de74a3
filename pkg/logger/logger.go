package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Leveled global logger shared by every service of the backend.
// - text lines by default, JSON lines after SetFormat("json")
// - printf style helpers plus key/value helpers (Infow, Warnw, Errorw)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
	LevelFatal: "fatal",
}

var (
	mu     sync.RWMutex
	logger *log.Logger = log.New(os.Stdout, "", 0)
	level  Level       = LevelInfo
	asJSON bool
	now    = time.Now
)

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		level = LevelDebug
	case "warn", "warning":
		level = LevelWarn
	case "error":
		level = LevelError
	case "fatal":
		level = LevelFatal
	default:
		level = LevelInfo
	}
}

// SetFormat switches between "text" (default) and "json" output.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	asJSON = strings.EqualFold(strings.TrimSpace(f), "json")
}

func shouldLog(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func jsonEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return asJSON
}

func emit(l Level, msg string, kv []interface{}) {
	ts := now().Format(time.RFC3339)
	if jsonEnabled() {
		rec := map[string]interface{}{"ts": ts, "level": levelNames[l], "msg": msg}
		for k, v := range fields(kv) {
			if _, taken := rec[k]; !taken {
				rec[k] = v
			}
		}
		b, err := json.Marshal(rec)
		if err != nil {
			logger.Printf("%s [ERROR] log marshal: %v", ts, err)
			return
		}
		logger.Print(string(b))
		return
	}
	line := fmt.Sprintf("%s [%s] %s", ts, strings.ToUpper(levelNames[l]), msg)
	f := fields(kv)
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line += fmt.Sprintf(" %s=%v", k, f[k])
	}
	logger.Print(line)
}

// fields pairs up alternating keys and values. A trailing key without a
// value is logged under "!BADKEY".
func fields(kv []interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			out["!BADKEY"] = kv[i]
			break
		}
		v := kv[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out[fmt.Sprint(kv[i])] = v
	}
	return out
}

func logf(l Level, format string, v ...interface{}) {
	if !shouldLog(l) {
		return
	}
	emit(l, fmt.Sprintf(format, v...), nil)
}

func Debugf(format string, v ...interface{}) { logf(LevelDebug, format, v...) }
func Infof(format string, v ...interface{})  { logf(LevelInfo, format, v...) }
func Warnf(format string, v ...interface{})  { logf(LevelWarn, format, v...) }
func Errorf(format string, v ...interface{}) { logf(LevelError, format, v...) }

func Fatalf(format string, v ...interface{}) {
	emit(LevelFatal, fmt.Sprintf(format, v...), nil)
	os.Exit(1)
}

// Infow logs msg with alternating key/value pairs, e.g.
// Infow("document created", "documentId", id, "caller", caller).
func Infow(msg string, kv ...interface{}) {
	if shouldLog(LevelInfo) {
		emit(LevelInfo, msg, kv)
	}
}

func Warnw(msg string, kv ...interface{}) {
	if shouldLog(LevelWarn) {
		emit(LevelWarn, msg, kv)
	}
}

func Errorw(msg string, kv ...interface{}) {
	if shouldLog(LevelError) {
		emit(LevelError, msg, kv)
	}
}

// Println kept for brief messages (maps to Info)
func Println(v ...interface{}) {
	if !shouldLog(LevelInfo) {
		return
	}
	emit(LevelInfo, strings.TrimSuffix(fmt.Sprintln(v...), "\n"), nil)
}

func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	if s, ok := levelNames[level]; ok {
		return s
	}
	return "info"
}
