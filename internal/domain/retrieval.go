package domain

import "math"

// DefaultRelevanceTemperature is the decay constant for mapping L2 distance
// to a bounded relevance score.
const DefaultRelevanceTemperature = 10.0

// RetrievalResult is an ephemeral search hit: a chunk joined with its
// query distance and the [0,1] relevance transform of that distance.
type RetrievalResult struct {
	Chunk     *Chunk
	Distance  float64
	Relevance float64
}

// RelevanceScore maps a squared L2 distance to a score in [0,1] using
// exponential decay, so smaller distances land near 1.
func RelevanceScore(distance, temperature float64) float64 {
	if temperature <= 0 {
		temperature = DefaultRelevanceTemperature
	}
	score := math.Exp(-distance / temperature)
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

// TotalContextChars returns the combined length of the retrieved chunk
// texts, used by the agent's sufficiency verdict.
func TotalContextChars(results []*RetrievalResult) int {
	total := 0
	for _, r := range results {
		if r != nil && r.Chunk != nil {
			total += len(r.Chunk.Text)
		}
	}
	return total
}
