package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/evnchn/3D-Print-Me/config"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// represents a single log entry to be processed asynchronously
type LogMessage struct {
	Level LogLevel
	Msg   string
	Args  []any
	Time  time.Time
}

// SlogAdapter implements outbound.Logger on top of slog.
// Callers only enqueue; a single goroutine formats and writes.
type SlogAdapter struct {
	logger    *slog.Logger
	config    *config.Config
	logChan   chan LogMessage
	done      chan struct{}
	finished  chan struct{}
	stopOnce  sync.Once
	slogLevel *slog.LevelVar
	closer    io.Closer
	dropped   atomic.Int64
}

var _ outbound.Logger = (*SlogAdapter)(nil)

// NewSlogAdapter writes to the output named by cfg.Logging
func NewSlogAdapter(cfg *config.Config) (*SlogAdapter, error) {
	var (
		w      io.Writer
		closer io.Closer
	)

	switch cfg.Logging.Output {
	case "stderr":
		w = os.Stderr
	case "file":
		f, err := os.OpenFile(cfg.Logging.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w, closer = f, f
	default:
		w = os.Stdout
	}

	adapter := NewSlogAdapterWithWriter(cfg, w)
	adapter.closer = closer
	return adapter, nil
}

func NewSlogAdapterWithWriter(cfg *config.Config, w io.Writer) *SlogAdapter {
	levelVar := &slog.LevelVar{}
	levelVar.Set(parseSlogLevel(cfg.General.LogLevel))

	handlerOpts := &slog.HandlerOptions{
		Level: levelVar,
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}

	size := cfg.Logging.ChannelSize
	if size < 1 {
		size = 1
	}

	adapter := &SlogAdapter{
		logger:    slog.New(handler),
		config:    cfg,
		logChan:   make(chan LogMessage, size),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		slogLevel: levelVar,
	}

	go adapter.processLogs()

	return adapter
}

// UpdateLevel changes the level at runtime
func (s *SlogAdapter) UpdateLevel(logLvl string) {
	normalizedLevel := strings.ToLower(logLvl)
	s.slogLevel.Set(parseSlogLevel(normalizedLevel))
	s.Info("Logger level updated dynamically", "new_level", normalizedLevel)
}

// processLogs owns the handler; logChan is never closed so late senders cannot panic
func (s *SlogAdapter) processLogs() {
	defer close(s.finished)

	for {
		select {
		case msg := <-s.logChan:
			s.writeLog(msg)
		case <-s.done:
			for {
				select {
				case msg := <-s.logChan:
					s.writeLog(msg)
				default:
					return
				}
			}
		}
	}
}

// converts string level to slog.Level
func parseSlogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelError:
		return slog.LevelError
	case LevelWarn:
		return slog.LevelWarn
	case LevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func (s *SlogAdapter) writeLog(msg LogMessage) {
	r := slog.NewRecord(msg.Time, toSlogLevel(msg.Level), msg.Msg, 0)
	r.Add(expandErrors(msg.Args)...)
	_ = s.logger.Handler().Handle(context.Background(), r)
}

func (s *SlogAdapter) sendLog(level LogLevel, msg string, args ...any) {
	select {
	case <-s.done:
		s.dropped.Add(1)
		return
	default:
	}

	select {
	case s.logChan <- LogMessage{
		Level: level,
		Msg:   msg,
		Args:  args,
		Time:  time.Now(),
	}:
	default:
		s.dropped.Add(1)
	}
}

func (s *SlogAdapter) shouldLog(level LogLevel) bool {
	return toSlogLevel(level) >= s.slogLevel.Level()
}

func (s *SlogAdapter) Error(msg string, args ...any) {
	if !s.shouldLog(LevelError) {
		return
	}
	s.sendLog(LevelError, msg, args...)
}

func (s *SlogAdapter) Warn(msg string, args ...any) {
	if !s.shouldLog(LevelWarn) {
		return
	}
	s.sendLog(LevelWarn, msg, args...)
}

func (s *SlogAdapter) Info(msg string, args ...any) {
	if !s.shouldLog(LevelInfo) {
		return
	}
	s.sendLog(LevelInfo, msg, args...)
}

func (s *SlogAdapter) Debug(msg string, args ...any) {
	if !s.shouldLog(LevelDebug) {
		return
	}
	s.sendLog(LevelDebug, msg, args...)
}

// Dropped returns how many messages were discarded because the buffer was full or the logger stopped
func (s *SlogAdapter) Dropped() int64 {
	return s.dropped.Load()
}

// Shutdown flushes queued messages and stops the writer goroutine. Safe to call twice.
func (s *SlogAdapter) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.done)
		<-s.finished
		if s.closer != nil {
			_ = s.closer.Close()
		}
	})
}

// expandErrors replaces error values with a group carrying the oops code and context
func expandErrors(args []any) []any {
	out := make([]any, len(args))
	copy(out, args)

	for i := 1; i < len(out); i += 2 {
		if _, ok := out[i-1].(string); !ok {
			continue
		}
		if err, ok := out[i].(error); ok {
			out[i] = ErrorValue(err)
		}
	}
	return out
}

// ErrorValue renders err for structured logs. Plain errors stay a string.
func ErrorValue(err error) slog.Value {
	if err == nil {
		return slog.StringValue("<nil>")
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return slog.StringValue(err.Error())
	}

	attrs := []slog.Attr{slog.String("message", err.Error())}
	if code := fmt.Sprint(oopsErr.Code()); code != "" && code != "<nil>" {
		attrs = append(attrs, slog.String("code", code))
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, slog.Any("context", ctx))
	}
	return slog.GroupValue(attrs...)
}
