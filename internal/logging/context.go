// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type conversationCtxKey struct{}
type runCtxKey struct{}
type loggerCtxKey struct{}

// Conversation identifies the page whose messages are being collected.
type Conversation struct {
	Source string
	ID     string
}

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if conv, ok := ctx.Value(conversationCtxKey{}).(Conversation); ok {
		fields = append(fields,
			zap.String("source", conv.Source),
			zap.String("conversation.id", conv.ID),
		)
	}

	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("run.id", runID))
	}

	return fields
}

// WithConversation tags ctx with the page source and conversation id.
func WithConversation(ctx context.Context, source, id string) context.Context {
	return context.WithValue(ctx, conversationCtxKey{}, Conversation{Source: source, ID: id})
}

// ConversationFromContext returns the conversation stored by WithConversation.
func ConversationFromContext(ctx context.Context) (Conversation, bool) {
	c, ok := ctx.Value(conversationCtxKey{}).(Conversation)
	return c, ok
}

// WithRunID tags ctx with an extraction run id.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runCtxKey{}, runID)
}

// RunIDFromContext returns the run id, or "".
func RunIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(runCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
