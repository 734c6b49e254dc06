// Package logging provides structured logging for contextkeeper.
//
// Logger wraps Zap with a custom Trace level, optional OpenTelemetry log
// export, field redaction and level-aware sampling. Every method takes a
// context and prepends its correlation fields:
//
//	ctx = logging.WithConversation(ctx, "chatgpt.com", "/c/abc")
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "batch relayed", zap.Int("messages", n))
//
// produces
//
//	{"level":"info","msg":"batch relayed","source":"chatgpt.com",
//	 "conversation.id":"/c/abc","run.id":"...","messages":3}
//
// Library packages accept a *zap.Logger; pass Logger.Underlying() to them.
//
// Tests use NewTestLogger and its Assert helpers.
package logging
