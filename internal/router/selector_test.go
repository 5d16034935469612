package router

import (
	"errors"
	"testing"

	"sketchgen/internal/domain"
	"sketchgen/internal/providers"
)

func TestSelectSingleCandidate(t *testing.T) {
	id, err := Select(providers.Request{Prompt: "x"}, []providers.ID{providers.OpenAI}, Preference{})
	if err != nil || id != providers.OpenAI {
		t.Fatalf("got %s, %v", id, err)
	}
}

func TestSelectNoneIsNoProvider(t *testing.T) {
	req := providers.Request{Prompt: "x", Quality: domain.QualityUltra}
	_, err := Select(req, []providers.ID{providers.Qwen, providers.OpenAI}, Preference{})
	var pe *providers.Error
	if !errors.As(err, &pe) || pe.Kind != providers.KindNoProvider || pe.Retryable {
		t.Fatalf("expected no_provider, got %v", err)
	}
}

func TestSelectHighestScoreWins(t *testing.T) {
	all := providers.IDs()
	id, err := Select(providers.Request{Prompt: "x"}, all, Preference{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	best := 0.0
	var want providers.ID
	for _, c := range providers.Capabilities() {
		if s := Score(c); s > best {
			best, want = s, c.ID
		}
	}
	if id != want {
		t.Fatalf("selected %s, want %s", id, want)
	}
}

func TestSelectPreferenceBypassesScoring(t *testing.T) {
	all := providers.IDs()
	id, err := Select(providers.Request{Prompt: "x"}, all, Preference{Provider: providers.OpenAI})
	if err != nil || id != providers.OpenAI {
		t.Fatalf("got %s, %v", id, err)
	}
	// a preference that cannot serve the request falls back to scoring
	id, err = Select(providers.Request{Prompt: "x", Quality: domain.QualityUltra}, all, Preference{Provider: providers.OpenAI})
	if err != nil || id != providers.Gemini {
		t.Fatalf("got %s, %v", id, err)
	}
}

func TestSelectTieGoesToDeclarationOrder(t *testing.T) {
	qwen, _ := providers.Lookup(providers.Qwen)
	twin := qwen
	twin.ID = providers.Gemini
	req := providers.Request{Prompt: "x"}.Normalized()
	available := []providers.ID{providers.Gemini, providers.Qwen}

	id, err := selectFrom([]providers.Capability{qwen, twin}, req, available, Preference{})
	if err != nil || id != providers.Qwen {
		t.Fatalf("got %s, %v; want the first declared", id, err)
	}
	id, err = selectFrom([]providers.Capability{twin, qwen}, req, available, Preference{})
	if err != nil || id != providers.Gemini {
		t.Fatalf("got %s, %v; want the first declared", id, err)
	}
}

func TestScoreComponents(t *testing.T) {
	c := providers.Capability{
		MaxWidth:          512,
		MaxHeight:         1024,
		RequestsPerMinute: 10,
		CostPerCall:       0.05,
		Qualities:         []domain.Quality{domain.QualityStandard},
	}
	// 40 + 10 (half the reference area) + 10 (10 rpm) + 5 (5 cents) + 10/3 (standard)
	want := 40 + 10 + 10 + 5 + 10.0/3
	if got := Score(c); got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("Score = %f, want %f", got, want)
	}
}
