package catalog

import (
	"testing"

	"sketchgen/internal/providers"
)

func TestEveryCapabilityHasAClient(t *testing.T) {
	clients, err := All(Options{})
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	for _, id := range providers.IDs() {
		if clients[id] == nil {
			t.Fatalf("no client for %s", id)
		}
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(providers.ID("dalle-classic"), Options{}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
