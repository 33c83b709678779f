package fileset

import "fmt"

// Distribute partitions chronologically ordered file sets into at most
// maxBatches batches of at least minPerBatch file sets each.
//
// Consecutive chunks of exactly minPerBatch file sets are sliced off until
// either maxBatches chunks exist or fewer than minPerBatch file sets
// remain. If no chunk could be formed, all file sets land in a single
// batch. Remaining file sets are then distributed one at a time,
// round-robin across the existing batches, which bounds batch count at
// maxBatches while keeping load within one file set of even.
func Distribute(fileSets []FileSet, maxBatches, minPerBatch int) ([][]FileSet, error) {
	if maxBatches < 1 {
		return nil, fmt.Errorf("max batches must be >= 1, got %d", maxBatches)
	}
	if minPerBatch < 1 {
		return nil, fmt.Errorf("min file sets per batch must be >= 1, got %d", minPerBatch)
	}
	if len(fileSets) == 0 {
		return nil, nil
	}

	var batches [][]FileSet
	next := 0
	for next+minPerBatch <= len(fileSets) && len(batches) < maxBatches {
		chunk := make([]FileSet, minPerBatch)
		copy(chunk, fileSets[next:next+minPerBatch])
		batches = append(batches, chunk)
		next += minPerBatch
	}

	// Fewer file sets than minPerBatch: everything goes into one batch.
	if len(batches) == 0 {
		single := make([]FileSet, len(fileSets))
		copy(single, fileSets)
		return [][]FileSet{single}, nil
	}

	for i, fs := range fileSets[next:] {
		idx := i % len(batches)
		batches[idx] = append(batches[idx], fs)
	}
	return batches, nil
}
