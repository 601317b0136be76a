package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Important info (schedule, calibration result)
	LevelLive    = 2 // Live info (state transitions, frames, moves)
	LevelVerbose = 3 // Verbose (calculation details, dropped frames)
	LevelTrace   = 4 // Trace (GPIO, very low level)
)

var (
	mu     sync.RWMutex
	level  int
	logger *log.Logger
	out    io.Writer = os.Stdout
)

// Init initializes the debug system with a level (0-4).
// 0 = no output
// 1 = important info (scheduled commands, calibration, captures)
// 2 = live info (state transitions, frames sent/received, moves)
// 3 = verbose (aim calculations, dropped frames, discarded instructions)
// 4 = trace (GPIO, sequencer, very low level)
func Init(debugLevel int) {
	mu.Lock()
	defer mu.Unlock()
	level = debugLevel
	if level > LevelOff {
		logger = log.New(out, "[SkyGo] ", log.LstdFlags|log.Lmicroseconds)
	} else {
		logger = nil
	}
}

// SetOutput redirects debug output (e.g. to tee into the web status stream).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	if logger != nil {
		logger.SetOutput(w)
	}
}

func printf(minLevel int, format string, args ...interface{}) {
	mu.RLock()
	l, lg := level, logger
	mu.RUnlock()
	if l >= minLevel && lg != nil {
		lg.Printf(format, args...)
	}
}

// --- Level 1 functions (Info): important info ---

// Info prints a level 1 message (important info).
func Info(format string, args ...interface{}) {
	printf(LevelInfo, "[INFO] "+format, args...)
}

// Summary prints an important summary banner (level 1).
func Summary(title string) {
	printf(LevelInfo, "═══════════════════════════════════════")
	printf(LevelInfo, "  %s", title)
	printf(LevelInfo, "═══════════════════════════════════════")
}

// Shot prints a capture request (level 1).
func Shot(captureID string) {
	printf(LevelInfo, "[INFO] Capture %s requested", captureID)
}

// Value prints a named value in formatted form (level 1).
func Value(name string, value interface{}) {
	printf(LevelInfo, "[INFO]   %s = %v", name, value)
}

// --- Level 2 functions (Live): real-time info ---

// Live prints a level 2 message (live info).
func Live(format string, args ...interface{}) {
	printf(LevelLive, "[LIVE] "+format, args...)
}

// State prints a controller state transition (level 2).
func State(from, to fmt.Stringer) {
	printf(LevelLive, "[LIVE] State %s -> %s", from, to)
}

// Frame prints a frame crossing the link (level 2). dir is "rx" or "tx".
func Frame(dir, text string) {
	printf(LevelLive, "[LIVE] %s %s", dir, text)
}

// Move prints a motor movement (level 2).
func Move(motor string, steps int, direction string) {
	printf(LevelLive, "[LIVE] Motor %s: %d steps (%s)", motor, steps, direction)
}

// --- Level 3 functions (Verbose): everything ---

// Verbose prints a level 3 message (verbose).
func Verbose(format string, args ...interface{}) {
	printf(LevelVerbose, "[VERBOSE] "+format, args...)
}

// Printf is an alias for Verbose.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// Print prints a plain verbose line (level 3).
func Print(msg string) {
	printf(LevelVerbose, "[VERBOSE] %s", msg)
}

// PrintStruct prints a struct in formatted form (level 3).
func PrintStruct(name string, v interface{}) {
	printf(LevelVerbose, "[VERBOSE] %s: %+v", name, v)
}

// Section prints a section separator (level 3).
func Section(name string) {
	printf(LevelVerbose, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	printf(LevelVerbose, "  %s", name)
	printf(LevelVerbose, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

// Step prints a numbered step (level 3).
func Step(num int, description string) {
	printf(LevelVerbose, "[VERBOSE] Step %d: %s", num, description)
}

// --- Level 4 functions (Trace): very low level ---

// Trace prints a level 4 message (trace, GPIO).
func Trace(format string, args ...interface{}) {
	printf(LevelTrace, "[TRACE] "+format, args...)
}

// GPIO prints a GPIO operation (level 4).
func GPIO(operation string, pin int, value interface{}) {
	printf(LevelTrace, "[GPIO] %s pin=%d value=%v", operation, pin, value)
}

// --- General functions ---

// Error prints a debug error (level 1+).
func Error(err error) {
	printf(LevelInfo, "[ERROR] %v", err)
}
