package search_test

import (
	"context"
	"testing"

	"github.com/factly/gopie/internal/search"
)

func TestNewGenAIEmbedderRequiresAPIKey(t *testing.T) {
	if _, err := search.NewGenAIEmbedder(context.Background(), "", "gemini-embedding-001"); err == nil {
		t.Error("want error without an API key")
	}
}
