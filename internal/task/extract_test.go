package task

import (
	"context"
	"testing"
)

func TestExtractAndUpdateNoFactLoss(t *testing.T) {
	state := NewConversationState()
	state.Facts["location"] = "downtown"

	updated, err := ExtractAndUpdate(context.Background(), PatternExtractor{}, "location: uptown", state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Facts["location"] != "downtown" {
		t.Fatalf("fact should not be overwritten without a correction marker, got %v", updated.Facts["location"])
	}
}

func TestExtractAndUpdateHonorsCorrection(t *testing.T) {
	state := NewConversationState()
	state.Facts["location"] = "downtown"

	updated, err := ExtractAndUpdate(context.Background(), PatternExtractor{}, "actually, location: uptown", state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Facts["location"] != "uptown" {
		t.Fatalf("explicit correction should overwrite the fact, got %v", updated.Facts["location"])
	}
}

func TestExtractAndUpdateIsIdempotent(t *testing.T) {
	state := NewConversationState()
	u := "location: downtown"

	first, _ := ExtractAndUpdate(context.Background(), PatternExtractor{}, u, state)
	before := first.Facts["location"]

	second, _ := ExtractAndUpdate(context.Background(), PatternExtractor{}, u, first)
	if second.Facts["location"] != before {
		t.Fatalf("re-applying the same utterance changed the fact: %v -> %v", before, second.Facts["location"])
	}
}

type erroringExtractor struct{}

func (erroringExtractor) Extract(context.Context, string, *ConversationState) ([]Extraction, error) {
	return nil, context.DeadlineExceeded
}

func TestExtractAndUpdateExtractorErrorIsNoOp(t *testing.T) {
	state := NewConversationState()
	state.Facts["location"] = "downtown"

	updated, err := ExtractAndUpdate(context.Background(), erroringExtractor{}, "anything", state)
	if err != nil {
		t.Fatalf("extractor errors must be absorbed as a no-op, got %v", err)
	}
	if updated.Facts["location"] != "downtown" {
		t.Fatalf("state should be unchanged on extractor error")
	}
}
