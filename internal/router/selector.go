package router

import (
	"slices"

	"sketchgen/internal/domain"
	"sketchgen/internal/providers"
)

// Preference is the caller's say in provider selection.
type Preference struct {
	// Provider, when it supports the request, is used without scoring.
	Provider providers.ID
}

// Select picks the provider for req among available. Candidates must support the request
// and be available; the highest score wins and ties go to the earlier table entry.
func Select(req providers.Request, available []providers.ID, pref Preference) (providers.ID, error) {
	return selectFrom(providers.Capabilities(), req.Normalized(), available, pref)
}

func selectFrom(table []providers.Capability, req providers.Request, available []providers.ID, pref Preference) (providers.ID, error) {
	if pref.Provider != "" {
		for _, c := range table {
			if c.ID == pref.Provider && c.Supports(req) {
				return pref.Provider, nil
			}
		}
	}

	var (
		best      providers.ID
		bestScore = -1.0
		matched   int
	)
	for _, c := range table {
		if !slices.Contains(available, c.ID) || !c.Supports(req) {
			continue
		}
		matched++
		// strict comparison keeps the earlier entry on ties
		if s := Score(c); s > bestScore {
			best, bestScore = c.ID, s
		}
	}
	if matched == 0 {
		return "", providers.NewError("", providers.KindNoProvider, "no provider supports the request")
	}
	return best, nil
}

// Score rates a capability out of 100.
func Score(c providers.Capability) float64 {
	const capabilityMatch = 40.0
	resolution := min(20, float64(c.MaxPixels())/float64(providers.ReferencePixels)*20)
	throughput := min(20, float64(c.RequestsPerMinute)/20*20)
	cost := max(0, 10-c.CostPerCall*100)
	quality := 10 * float64(c.BestQuality().Rank()) / float64(domain.QualityUltra.Rank())
	return capabilityMatch + resolution + throughput + cost + quality
}
