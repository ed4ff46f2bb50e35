package benchmark

// Combination is one point of the benchmark grid.
type Combination struct {
	BatchSize    int
	PromptLength int
	NewTokens    int
}

// Grid is the sweep of combinations a run covers.
type Grid struct {
	BatchSizes    []int
	PromptLengths []int
	NewTokens     []int
}

// SweepGrid is the fixed grid used in sweep mode. It overrides whatever
// single values the CLI carries.
func SweepGrid() Grid {
	return Grid{
		BatchSizes:    []int{1, 2, 4, 8, 16},
		PromptLengths: []int{512},
		NewTokens:     []int{512},
	}
}

// SingleGrid wraps one CLI-specified combination.
func SingleGrid(batchSize, promptLength, newTokens int) Grid {
	return Grid{
		BatchSizes:    []int{batchSize},
		PromptLengths: []int{promptLength},
		NewTokens:     []int{newTokens},
	}
}

// WithPrefill forces single-token generation so only the prefill step
// is measured. Applied last: it wins over both sweep and CLI values.
func (g Grid) WithPrefill() Grid {
	g.NewTokens = []int{1}
	return g
}

// Combinations expands the grid in batch-size major order.
func (g Grid) Combinations() []Combination {
	combos := make([]Combination, 0, g.Size())
	for _, batchSize := range g.BatchSizes {
		for _, promptLength := range g.PromptLengths {
			for _, newTokens := range g.NewTokens {
				combos = append(combos, Combination{
					BatchSize:    batchSize,
					PromptLength: promptLength,
					NewTokens:    newTokens,
				})
			}
		}
	}
	return combos
}

// Size is the number of combinations the grid expands to.
func (g Grid) Size() int {
	return len(g.BatchSizes) * len(g.PromptLengths) * len(g.NewTokens)
}
