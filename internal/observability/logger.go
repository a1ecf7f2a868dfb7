package observability

import (
	"io"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeSession     EventType = "session"
	EventTypeReasoning   EventType = "reasoning"
	EventTypeToolCall    EventType = "tool_call"
	EventTypeToolResult  EventType = "tool_result"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeStep        EventType = "step"
	EventTypeLLM         EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType
	SessionID string
	Step      int
	Data      any
	Timestamp time.Time
}

// Options control where events go. File enables a rotated JSON log that
// also receives the full LLM exchanges.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	Console    io.Writer
}

// Logger handles structured logging.
type Logger struct {
	zl  *zap.Logger
	llm *zap.Logger
}

func NewLogger(opts Options) (*Logger, error) {
	level := zap.NewAtomicLevel()
	if opts.Level == "" {
		opts.Level = "info"
	}
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, err
	}

	console := opts.Console
	if console == nil {
		console = NewTermWriter()
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	consoleCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(console), level)
	cores := []zapcore.Core{consoleCore}

	llm := zap.NewNop()
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: opts.MaxBackups,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileWriter, level))
		llm = zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), fileWriter, zap.DebugLevel))
	}

	return &Logger{zl: zap.New(zapcore.NewTee(cores...)), llm: llm}, nil
}

// FromZap wraps an existing zap logger; LLM exchanges go to the same sink.
func FromZap(zl *zap.Logger) *Logger {
	return &Logger{zl: zl, llm: zl}
}

// Nop discards everything.
func Nop() *Logger {
	return FromZap(zap.NewNop())
}

// Zap exposes the underlying logger for components that log directly.
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// Sync flushes both sinks. Callers usually ignore the error since stdout
// and stderr cannot be synced on every platform.
func (l *Logger) Sync() error {
	_ = l.llm.Sync()
	return l.zl.Sync()
}

// Log emits a structured event.
func (l *Logger) Log(evt Event) {
	l.write(l.zl, zapcore.InfoLevel, evt)
}

func (l *Logger) write(zl *zap.Logger, lvl zapcore.Level, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	fields := []zap.Field{zap.Time("event_time", evt.Timestamp)}
	if evt.SessionID != "" {
		fields = append(fields, zap.String("session_id", evt.SessionID))
	}
	if evt.Step > 0 {
		fields = append(fields, zap.Int("step", evt.Step))
	}
	if evt.Data != nil {
		fields = append(fields, zap.Any("data", evt.Data))
	}
	if ce := zl.Check(lvl, string(evt.Type)); ce != nil {
		ce.Write(fields...)
	}
}

// Helper methods for common events

func (l *Logger) LogSession(sessionID, state string, data map[string]any) {
	payload := map[string]any{"state": state}
	for k, v := range data {
		payload[k] = v
	}
	l.Log(Event{Type: EventTypeSession, SessionID: sessionID, Data: payload})
}

func (l *Logger) LogReasoning(sessionID string, step int, content string) {
	l.Log(Event{
		Type:      EventTypeReasoning,
		SessionID: sessionID,
		Step:      step,
		Data:      map[string]string{"content": content},
	})
}

func (l *Logger) LogToolCall(sessionID string, step int, tool string, args map[string]any) {
	l.Log(Event{
		Type:      EventTypeToolCall,
		SessionID: sessionID,
		Step:      step,
		Data: map[string]any{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(sessionID string, step int, tool string, observation map[string]any) {
	lvl := zapcore.InfoLevel
	if _, failed := observation["error"]; failed {
		lvl = zapcore.WarnLevel
	}
	l.write(l.zl, lvl, Event{
		Type:      EventTypeToolResult,
		SessionID: sessionID,
		Step:      step,
		Data: map[string]any{
			"tool":        tool,
			"observation": observation,
		},
	})
}

func (l *Logger) LogPolicyCheck(sessionID, tool, effect, reason string) {
	l.Log(Event{
		Type:      EventTypePolicyCheck,
		SessionID: sessionID,
		Data: map[string]string{
			"tool":   tool,
			"effect": effect,
			"reason": reason,
		},
	})
}

func (l *Logger) LogStep(sessionID string, step int, image, html, summary string) {
	l.Log(Event{
		Type:      EventTypeStep,
		SessionID: sessionID,
		Step:      step,
		Data: map[string]string{
			"image":   image,
			"html":    html,
			"summary": summary,
		},
	})
}

// LogLLM records one planner exchange. It only reaches the file log.
func (l *Logger) LogLLM(sessionID string, step int, provider string, turns int, reply any) {
	l.write(l.llm, zapcore.DebugLevel, Event{
		Type:      EventTypeLLM,
		SessionID: sessionID,
		Step:      step,
		Data: map[string]any{
			"provider": provider,
			"turns":    turns,
			"reply":    reply,
		},
	})
}

func (l *Logger) Error(sessionID string, msg string, err error) {
	l.zl.Error(msg, zap.String("session_id", sessionID), zap.Error(err))
}
