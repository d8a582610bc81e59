package harvest

import "slices"

// Batch splits keywords into contiguous chunks of at most maxPerBatch, keeping order and
// duplicates. maxPerBatch <= 0 is treated as 1.
func Batch(keywords []string, maxPerBatch int) [][]string {
	if maxPerBatch <= 0 {
		maxPerBatch = 1
	}

	batches := make([][]string, 0, (len(keywords)+maxPerBatch-1)/maxPerBatch)
	for chunk := range slices.Chunk(keywords, maxPerBatch) {
		batches = append(batches, chunk)
	}

	return batches
}
