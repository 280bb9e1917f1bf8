package engine

import "context"

type runMetaContextKey string

const (
	conversationIDContextKey runMetaContextKey = "conversation_id"
	inferenceIDContextKey    runMetaContextKey = "inference_id"
)

// WithRunMeta stores the conversation and inference identifiers of a run in
// ctx so streamers can tag their events and logs.
func WithRunMeta(ctx context.Context, conversationID, inferenceID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if conversationID != "" {
		ctx = context.WithValue(ctx, conversationIDContextKey, conversationID)
	}
	if inferenceID != "" {
		ctx = context.WithValue(ctx, inferenceIDContextKey, inferenceID)
	}
	return ctx
}

// ConversationIDFromContext returns the conversation id attached with
// WithRunMeta, or "" when unavailable.
func ConversationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(conversationIDContextKey).(string)
	return id
}

// InferenceIDFromContext returns the inference id attached with WithRunMeta,
// or "" when unavailable.
func InferenceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(inferenceIDContextKey).(string)
	return id
}
