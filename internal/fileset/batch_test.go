package fileset

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeFileSets(n int) []FileSet {
	sets := make([]FileSet, n)
	for i := range sets {
		sets[i] = FileSet{"DATA": {fmt.Sprintf("process/file_%03d.csv", i)}}
	}
	return sets
}

func TestDistributeRejectsBadConfig(t *testing.T) {
	_, err := Distribute(makeFileSets(1), 0, 1)
	assert.Error(t, err)
	_, err = Distribute(makeFileSets(1), 1, 0)
	assert.Error(t, err)
}

func TestDistributeEmptyInput(t *testing.T) {
	batches, err := Distribute(nil, 3, 2)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func TestDistributeExampleScenario(t *testing.T) {
	// Two file sets with max_batches=2, min_per_batch=1 yield two batches
	// of one file set each.
	sets := makeFileSets(2)
	batches, err := Distribute(sets, 2, 1)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, []FileSet{sets[0]}, batches[0])
	assert.Equal(t, []FileSet{sets[1]}, batches[1])
}

func TestDistributeFallbackSingleBatch(t *testing.T) {
	// Fewer file sets than the minimum: everything lands in one batch.
	sets := makeFileSets(3)
	batches, err := Distribute(sets, 4, 5)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, sets, batches[0])
}

func TestDistributeRoundRobinOverflow(t *testing.T) {
	// 7 sets, max 3 batches of min 2: chunks (0,1) (2,3) (4,5), then set 6
	// wraps around to batch 0.
	sets := makeFileSets(7)
	batches, err := Distribute(sets, 3, 2)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, []FileSet{sets[0], sets[1], sets[6]}, batches[0])
	assert.Equal(t, []FileSet{sets[2], sets[3]}, batches[1])
	assert.Equal(t, []FileSet{sets[4], sets[5]}, batches[2])
}

func TestDistributeCoverageAndFairness(t *testing.T) {
	for _, tc := range []struct {
		numSets, maxBatches, minPerBatch int
	}{
		{1, 1, 1},
		{5, 2, 2},
		{10, 3, 2},
		{17, 4, 3},
		{100, 8, 5},
		{3, 10, 1},
	} {
		name := fmt.Sprintf("%d_sets_%d_max_%d_min", tc.numSets, tc.maxBatches, tc.minPerBatch)
		t.Run(name, func(t *testing.T) {
			sets := makeFileSets(tc.numSets)
			batches, err := Distribute(sets, tc.maxBatches, tc.minPerBatch)
			require.NoError(t, err)
			require.LessOrEqual(t, len(batches), tc.maxBatches)

			// Every file set appears exactly once across all batches.
			seen := map[string]int{}
			total := 0
			minSize, maxSize := tc.numSets, 0
			for _, batch := range batches {
				require.NotEmpty(t, batch)
				total += len(batch)
				if len(batch) < minSize {
					minSize = len(batch)
				}
				if len(batch) > maxSize {
					maxSize = len(batch)
				}
				for _, fs := range batch {
					seen[fs["DATA"][0]]++
				}
			}
			require.Equal(t, tc.numSets, total)
			for _, fs := range sets {
				assert.Equal(t, 1, seen[fs["DATA"][0]])
			}

			// Round-robin fairness: sizes differ by at most one, except in
			// the single-batch fallback where fairness is vacuous.
			if len(batches) > 1 {
				assert.LessOrEqual(t, maxSize-minSize, 1)
			}
		})
	}
}

func TestDistributeDoesNotAliasInput(t *testing.T) {
	sets := makeFileSets(4)
	batches, err := Distribute(sets, 2, 2)
	require.NoError(t, err)

	batches[0][0] = FileSet{"DATA": {"mutated"}}
	assert.Equal(t, "process/file_000.csv", sets[0]["DATA"][0])
}
