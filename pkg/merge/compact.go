// Package merge rebuilds canonical tables from their append-only staging log
package merge

import (
	"sort"

	"github.com/ethpandaops/trendsync/pkg/store"
)

// Compact is the last-write-wins projection of a staging log: for every distinct
// natural key it keeps the row with the greatest BatchedAt. Ties keep the row that
// was appended first. The output is ordered by key.
func Compact(rows []store.Observation, key []string) ([]store.Observation, error) {
	type winner struct {
		row store.Observation
		key string
	}

	best := make(map[string]int, len(rows))
	winners := make([]winner, 0, len(rows))

	for _, row := range rows {
		k, err := store.KeyOf(row, key)
		if err != nil {
			return nil, err
		}

		idx, seen := best[k]
		if !seen {
			best[k] = len(winners)
			winners = append(winners, winner{row: row, key: k})

			continue
		}

		if row.BatchedAt.After(winners[idx].row.BatchedAt) {
			winners[idx].row = row
		}
	}

	sort.SliceStable(winners, func(i, j int) bool {
		return winners[i].key < winners[j].key
	})

	out := make([]store.Observation, 0, len(winners))
	for _, w := range winners {
		out = append(out, w.row)
	}

	return out, nil
}
