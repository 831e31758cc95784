package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Console output formats.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatConsole = "console"
)

// replaced in tests
var (
	osStdout = os.Stdout
	osPipe   = os.Pipe
)

// SlogManager owns the process logger and the sinks behind it.
type SlogManager struct {
	logger *slog.Logger
	fanout *Fanout
}

// NewSlogManager creates a new slog-based logging manager.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// Option adds an output or enrichment to Setup.
type Option func(*setupOptions)

type setupOptions struct {
	format  string
	gelf    io.Writer
	session Session
}

// WithFormat selects the console format: text (default), json or console.
func WithFormat(format string) Option {
	return func(o *setupOptions) {
		o.format = strings.ToLower(format)
	}
}

// WithGELF also ships every record as JSON to a Graylog GELF writer.
func WithGELF(w io.Writer) Option {
	return func(o *setupOptions) {
		o.gelf = w
	}
}

// WithSession stamps the active run and peer count from s on every record.
func WithSession(s Session) Option {
	return func(o *setupOptions) {
		o.session = s
	}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// formatTime renders record times as RFC3339 UTC.
func formatTime(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
		}
	}
	return a
}

// zerologFields renames slog's JSON keys to the ones zerolog.ConsoleWriter
// reads.
func zerologFields(groups []string, a slog.Attr) slog.Attr {
	a = formatTime(groups, a)
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.MessageKey:
		a.Key = zerolog.MessageFieldName
	case slog.LevelKey:
		a.Key = zerolog.LevelFieldName
		a.Value = slog.StringValue(strings.ToLower(a.Value.String()))
	}
	return a
}

// Setup initializes the logging system. Records go to the console when file is
// nil, otherwise to file only; optionally also to Graylog and, if provider is
// non-nil, to OTel.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, opts ...Option) {
	o := setupOptions{format: FormatText}
	for _, opt := range opts {
		opt(&o)
	}

	lvl := parseLevel(level)

	handlerOpts := &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: formatTime,
	}

	sinks := []Sink{{Name: SinkConsole, Handler: newHandler(osStdout, o.format, handlerOpts)}}
	if file != nil {
		sinks = []Sink{{Name: SinkFile, Handler: newHandler(file, o.format, handlerOpts)}}
	}
	if o.gelf != nil {
		sinks = append(sinks, Sink{Name: SinkGELF, Handler: slog.NewJSONHandler(o.gelf, handlerOpts)})
	}
	if provider != nil {
		sinks = append(sinks, Sink{
			Name:    SinkOTel,
			Handler: otelslog.NewHandler("simlink", otelslog.WithLoggerProvider(provider)),
		})
	}
	m.fanout = NewFanout(sinks...)

	var handler slog.Handler = m.fanout
	if o.session != nil {
		handler = NewSessionHandler(handler, o.session)
	}

	m.logger = slog.New(handler)
	m.logger.Info("Logging initialized", "level", level, "format", o.format)
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	switch format {
	case FormatJSON:
		return slog.NewJSONHandler(w, opts)
	case FormatConsole:
		cw := zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    w != osStdout,
		}
		return slog.NewJSONHandler(cw, &slog.HandlerOptions{
			Level:       opts.Level,
			ReplaceAttr: zerologFields,
		})
	default:
		return slog.NewTextHandler(w, opts)
	}
}

// Logger returns the configured slog.Logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		// Return a default logger if Setup hasn't been called
		return slog.Default()
	}
	return m.logger
}

// SinkFailures returns the per-sink count of records that could not be
// written. It is empty before Setup.
func (m *SlogManager) SinkFailures() map[string]uint64 {
	if m.fanout == nil {
		return map[string]uint64{}
	}
	return m.fanout.Failures()
}

// NewZerolog builds the zerolog logger used by the database and Influx
// managers, writing console-formatted lines without colour to out.
func NewZerolog(out io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    true,
	}).Level(lvl).With().Timestamp().Logger()
}
