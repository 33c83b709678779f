package fileset

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Timestamps embedded in filenames are expected in the format
// YYYY-MM-DDTHH:MM:SS with an optional sub-second fraction and an optional
// UTC offset or Z suffix.
var timestampRegex = regexp.MustCompile(
	`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d{1,6})?(?:[+-]\d{2}:\d{2}|Z)?`,
)

// Layouts tried in order when parsing an embedded timestamp. Timestamps
// without an offset are treated as UTC.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// UnmatchedFilesError reports files within one chronological group that
// matched no configured type pattern. The whole grouping pass fails rather
// than silently dropping files.
type UnmatchedFilesError struct {
	GroupTime time.Time
	Files     []string
}

func (e *UnmatchedFilesError) Error() string {
	return fmt.Sprintf("no file type pattern matched files %s in group %s",
		strings.Join(e.Files, ", "), e.GroupTime.UTC().Format(time.RFC3339Nano))
}

// Grouper clusters files into file sets by a timestamp derived from each
// filename, then classifies every member by type.
type Grouper struct {
	types []TypePattern
	rng   *rand.Rand
}

// NewGrouper builds a grouper over the given ordered type patterns. The
// seed drives the sub-second jitter applied to files without an embedded
// timestamp; zero seeds from the clock. Tests pass a fixed seed for
// reproducible grouping.
func NewGrouper(types []TypePattern, seed int64) *Grouper {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Grouper{
		types: types,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Group clusters the given file paths into file sets and returns them in
// chronological order of their clustering key.
//
// The clustering key is the timestamp embedded in the filename when
// present. Files without one fall back to their last-modified time plus a
// random jitter of up to one million microseconds, so unrelated files that
// happen to share a modification time do not end up co-grouped.
//
// Every file in a group must match a configured type pattern; an unmatched
// file fails the whole pass with an UnmatchedFilesError.
func (g *Grouper) Group(paths []string) ([]FileSet, error) {
	byMicros := make(map[int64][]string)
	for _, path := range paths {
		micros, err := g.clusterKey(path)
		if err != nil {
			return nil, err
		}
		byMicros[micros] = append(byMicros[micros], path)
	}

	keys := make([]int64, 0, len(byMicros))
	for k := range byMicros {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var fileSets []FileSet
	for _, key := range keys {
		group := byMicros[key]
		// Sort members so the produced sets do not depend on input
		// iteration order.
		sort.Strings(group)

		fs := FileSet{}
		var unmatched []string
		for _, path := range group {
			typeName, ok := Classify(filepath.Base(path), g.types)
			if !ok {
				unmatched = append(unmatched, filepath.Base(path))
				continue
			}
			fs[typeName] = append(fs[typeName], path)
		}
		if len(unmatched) > 0 {
			return nil, &UnmatchedFilesError{
				GroupTime: time.UnixMicro(key).UTC(),
				Files:     unmatched,
			}
		}
		if len(fs) > 0 {
			fileSets = append(fileSets, fs)
		}
	}
	return fileSets, nil
}

// clusterKey derives the grouping key for one file, in microseconds since
// the epoch.
func (g *Grouper) clusterKey(path string) (int64, error) {
	if match := timestampRegex.FindString(filepath.Base(path)); match != "" {
		t, err := parseTimestamp(match)
		if err != nil {
			return 0, fmt.Errorf("parse timestamp in %q: %w", filepath.Base(path), err)
		}
		return t.UnixMicro(), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %q for grouping fallback: %w", path, err)
	}
	jitter := int64(g.rng.Intn(1_000_000))
	return info.ModTime().UnixMicro() + jitter, nil
}
