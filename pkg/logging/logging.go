package logging

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// TimeFormat is the layout of the "time" field: UTC with millisecond precision.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Options configures New.
type Options struct {
	Writer  io.Writer
	Level   zerolog.Level
	Console bool
	Color   bool
}

// New builds the process logger. Console output is meant for humans on a
// terminal; otherwise lines are JSON.
func New(opts Options) zerolog.Logger {
	w := opts.Writer
	if opts.Console {
		w = zerolog.ConsoleWriter{
			Out:        opts.Writer,
			NoColor:    !opts.Color,
			TimeFormat: "15:04:05.000",
		}
	}

	return zerolog.New(w).Level(opts.Level).
		Hook(timeHook{}).
		Hook(callerHook{color: opts.Color})
}

type timeHook struct{}

func (timeHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	e.Str("time", time.Now().UTC().Format(TimeFormat))
}

// callerHook adds "pkg/file.go:line" for the statement that wrote the event.
type callerHook struct {
	color bool
}

func (h callerHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	// Run <- Event.msg <- Msg/Msgf/Send <- caller
	pc, file, line, ok := runtime.Caller(3)
	if !ok {
		return
	}

	var pkg string
	if fn := runtime.FuncForPC(pc); fn != nil {
		pkg = ShortPackage(fn.Name())
	}

	e.Str("caller", FormatCaller(pkg, file, line, h.color))
}

// ShortPackage returns the last element of the package path of a runtime
// function name, e.g. "lsp" for "github.com/walteh/scrustls/pkg/lsp.(*Server).DidOpen".
func ShortPackage(funcName string) string {
	name := funcName[strings.LastIndexByte(funcName, '/')+1:]
	if dot := strings.IndexByte(name, '.'); dot >= 0 {
		return name[:dot]
	}
	return name
}

func FormatCaller(pkg, path string, line int, colorize bool) string {
	file := filepath.Base(path)
	if pkg != "" {
		file = pkg + "/" + file
	}

	if colorize {
		return fmt.Sprintf("%s:%s", color.New(color.Bold).Sprint(file), color.New(color.FgHiRed).Sprint(line))
	}

	return fmt.Sprintf("%s:%d", file, line)
}
