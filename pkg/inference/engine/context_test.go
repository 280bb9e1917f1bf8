package engine

import (
	"context"
	"testing"
)

func TestWithRunMetaRoundTrip(t *testing.T) {
	ctx := WithRunMeta(context.Background(), "1-1", "i-1")
	if got := ConversationIDFromContext(ctx); got != "1-1" {
		t.Fatalf("ConversationIDFromContext() = %q, want %q", got, "1-1")
	}
	if got := InferenceIDFromContext(ctx); got != "i-1" {
		t.Fatalf("InferenceIDFromContext() = %q, want %q", got, "i-1")
	}
}

func TestRunMetaAccessorsMissing(t *testing.T) {
	if got := ConversationIDFromContext(context.Background()); got != "" {
		t.Fatalf("ConversationIDFromContext() = %q, want empty", got)
	}
	if got := InferenceIDFromContext(context.Background()); got != "" {
		t.Fatalf("InferenceIDFromContext() = %q, want empty", got)
	}
}

func TestWithRunMetaSkipsEmptyValues(t *testing.T) {
	ctx := WithRunMeta(WithRunMeta(context.Background(), "1-1", "i-1"), "", "i-2")
	if got := ConversationIDFromContext(ctx); got != "1-1" {
		t.Fatalf("ConversationIDFromContext() = %q, want %q", got, "1-1")
	}
	if got := InferenceIDFromContext(ctx); got != "i-2" {
		t.Fatalf("InferenceIDFromContext() = %q, want %q", got, "i-2")
	}
}
