package inference

import "github.com/chewxy/math32"

// Greedy picks the argmax token from one float32 logit row. Ties go to
// the lower id, matching deterministic greedy decoding.
func Greedy(logits []float32) int64 {
	best := int64(0)
	bestScore := math32.Inf(-1)
	for i, score := range logits {
		if score > bestScore {
			bestScore = score
			best = int64(i)
		}
	}
	return best
}
