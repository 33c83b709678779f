package fileset

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// FileSet is a group of logically related files, keyed by type name, that is
// processed downstream as one atomic unit. Multiple files per type are
// supported.
type FileSet map[string][]string

// Paths returns a flat list of every file path in the set. Type names are
// visited in sorted order so the result is deterministic.
func (fs FileSet) Paths() []string {
	names := make([]string, 0, len(fs))
	for name := range fs {
		names = append(names, name)
	}
	sort.Strings(names)

	var paths []string
	for _, name := range names {
		paths = append(paths, fs[name]...)
	}
	return paths
}

// Files returns the paths of the given type, or nil if the set holds none.
func (fs FileSet) Files(typeName string) []string {
	return fs[typeName]
}

// TotalSize sums the on-disk sizes of the files in the set. Files missing
// from disk contribute zero.
func (fs FileSet) TotalSize() int64 {
	var total int64
	for _, path := range fs.Paths() {
		if info, err := os.Stat(path); err == nil {
			total += info.Size()
		}
	}
	return total
}

// EncodeBatch serializes a batch of file sets for cross-process handoff.
// The wire format is a JSON array of objects mapping type name to path
// list, e.g. [{"DATA": ["process/a.csv"], "META": ["process/a.json"]}].
func EncodeBatch(batch []FileSet) ([]byte, error) {
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	return data, nil
}

// DecodeBatch reverses EncodeBatch. Round-tripping reproduces the same
// type-to-paths mapping by name.
func DecodeBatch(data []byte) ([]FileSet, error) {
	var batch []FileSet
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	return batch, nil
}
