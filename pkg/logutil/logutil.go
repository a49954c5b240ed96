// Package logutil provides logging utilities.
//
// Loggers are obtained per component with GetLogger. All of them write to a
// shared output, which discards everything until SetOutput or SetOutputFile
// is called; a physicist at the prompt should never see debug chatter.
package logutil

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu     sync.Mutex
	out    io.Writer = io.Discard
	level            = zerolog.InfoLevel
	loggers          = map[string]*Logger{}
)

// Logger is a component logger whose output follows the package-level
// output.
type Logger struct {
	component string
	zl        zerolog.Logger
}

// GetLogger returns the logger for a component, creating it if needed.
func GetLogger(component string) *Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[component]; ok {
		return l
	}
	l := &Logger{component: component}
	l.zl = newZerolog(component)
	loggers[component] = l
	return l
}

func newZerolog(component string) zerolog.Logger {
	return zerolog.New(out).Level(level).With().
		Timestamp().Str("component", component).Logger()
}

// SetOutput redirects the output of all loggers obtained with GetLogger to
// the given writer.
func SetOutput(newout io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = newout
	for _, l := range loggers {
		l.zl = newZerolog(l.component)
	}
}

// SetOutputFile redirects the output of all loggers obtained with GetLogger
// to the named file. If the file already exists, it is appended to.
func SetOutputFile(fname string) error {
	if fname == "" {
		SetOutput(io.Discard)
		return nil
	}
	file, err := os.OpenFile(fname, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	SetOutput(file)
	return nil
}

// SetLevel sets the minimum level of all loggers. An unknown level name is
// an error and leaves the level unchanged.
func SetLevel(name string) error {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	level = lvl
	for _, l := range loggers {
		l.zl = newZerolog(l.component)
	}
	return nil
}

func (l *Logger) get() *zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	zl := l.zl
	return &zl
}

// Debug starts a debug-level event.
func (l *Logger) Debug() *zerolog.Event { return l.get().Debug() }

// Info starts an info-level event.
func (l *Logger) Info() *zerolog.Event { return l.get().Info() }

// Warn starts a warn-level event.
func (l *Logger) Warn() *zerolog.Event { return l.get().Warn() }

// Error starts an error-level event.
func (l *Logger) Error() *zerolog.Event { return l.get().Error() }
