package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with the service's domain log lines
type Logger struct {
	*slog.Logger
}

type contextKey int

const (
	requestIDKey contextKey = iota
	entrantIDKey
)

// New builds the process logger from LOG_LEVEL and the gin mode
func New() *Logger {
	level := getLogLevel(os.Getenv("LOG_LEVEL"))
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Text output is easier to read while developing, JSON is for log shipping
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if gin.Mode() == gin.DebugMode {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return NewWithHandler(handler)
}

// NewWithHandler wraps handler so records logged with a request context
// carry its request and entrant ids.
func NewWithHandler(handler slog.Handler) *Logger {
	return &Logger{Logger: slog.New(contextHandler{Handler: handler})}
}

func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ContextWithRequestID tags ctx so every *Context log call made with it
// includes request_id.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func ContextWithEntrantID(ctx context.Context, entrantID string) context.Context {
	return context.WithValue(ctx, entrantIDKey, entrantID)
}

// RequestIDFromContext returns the id set by ContextWithRequestID
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, record slog.Record) error {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		record.AddAttrs(slog.String("request_id", id))
	}
	if id, ok := ctx.Value(entrantIDKey).(string); ok && id != "" {
		record.AddAttrs(slog.String("entrant_id", id))
	}
	return h.Handler.Handle(ctx, record)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}

func (l *Logger) with(attrs ...any) *Logger {
	return &Logger{Logger: l.Logger.With(attrs...)}
}

// WithRequestID pins request_id for code that logs without a context
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with(slog.String("request_id", requestID))
}

func (l *Logger) WithEntrantID(entrantID string) *Logger {
	return l.with(slog.String("entrant_id", entrantID))
}

// HTTP

func (l *Logger) LogHTTPRequest(c *gin.Context, duration time.Duration) {
	level := slog.LevelInfo
	if c.Writer.Status() >= 500 {
		level = slog.LevelWarn
	}
	l.Logger.LogAttrs(c.Request.Context(), level, "HTTP Request",
		slog.String("method", c.Request.Method),
		slog.String("route", c.FullPath()),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", duration),
		slog.String("ip", c.ClientIP()),
		slog.Int("size", c.Writer.Size()),
	)
}

func (l *Logger) LogHTTPError(c *gin.Context, err error, statusCode int) {
	l.Logger.LogAttrs(c.Request.Context(), slog.LevelError, "HTTP Error",
		slog.String("method", c.Request.Method),
		slog.String("route", c.FullPath()),
		slog.Int("status", statusCode),
		slog.String("error", err.Error()),
	)
}

// Waitlist and lottery

func (l *Logger) LogWaitlistJoin(ctx context.Context, eventID, entrantID, outcome string) {
	l.logMembership(ctx, "Waitlist Join", eventID, entrantID, outcome)
}

func (l *Logger) LogWaitlistLeave(ctx context.Context, eventID, entrantID, outcome string) {
	l.logMembership(ctx, "Waitlist Leave", eventID, entrantID, outcome)
}

func (l *Logger) LogInvitationResponse(ctx context.Context, eventID, entrantID, outcome string) {
	l.logMembership(ctx, "Invitation Response", eventID, entrantID, outcome)
}

func (l *Logger) logMembership(ctx context.Context, msg, eventID, entrantID, outcome string) {
	l.Logger.LogAttrs(ctx, slog.LevelInfo, msg,
		slog.String("event_id", eventID),
		slog.String("entrant", entrantID),
		slog.String("outcome", outcome),
	)
}

// LogDrawCompleted records a committed draw. Entrant ids are left out, the
// notification audit log holds who won.
func (l *Logger) LogDrawCompleted(ctx context.Context, eventID string, winners, losers int) {
	l.Logger.LogAttrs(ctx, slog.LevelInfo, "Lottery Draw Completed",
		slog.String("event_id", eventID),
		slog.Int("winners", winners),
		slog.Int("losers", losers),
	)
}

func (l *Logger) LogDrawAborted(ctx context.Context, eventID string, err error) {
	l.Logger.LogAttrs(ctx, slog.LevelWarn, "Lottery Draw Aborted",
		slog.String("event_id", eventID),
		slog.String("error", err.Error()),
	)
}

// LogNotificationDispatched summarises one fan-out, at warn level when any
// recipient failed.
func (l *Logger) LogNotificationDispatched(ctx context.Context, eventID string, delivered, failed int) {
	level := slog.LevelInfo
	if failed > 0 {
		level = slog.LevelWarn
	}
	l.Logger.LogAttrs(ctx, level, "Notifications Dispatched",
		slog.String("event_id", eventID),
		slog.Int("delivered", delivered),
		slog.Int("failed", failed),
	)
}

func (l *Logger) LogRateLimitExceeded(ctx context.Context, ip, endpoint string) {
	l.Logger.LogAttrs(ctx, slog.LevelWarn, "Rate Limit Exceeded",
		slog.String("ip", ip),
		slog.String("endpoint", endpoint),
	)
}

func fieldAttrs(fields map[string]interface{}) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(fields)+1)
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *Logger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.Logger.LogAttrs(ctx, slog.LevelInfo, msg, fieldAttrs(fields)...)
}

func (l *Logger) ErrorWithContext(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	attrs := fieldAttrs(fields)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.Logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
}

var defaultLogger = New()

func GetDefault() *Logger {
	return defaultLogger
}

func SetDefault(logger *Logger) {
	defaultLogger = logger
}
