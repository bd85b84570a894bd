package extensions

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/boyter/gocodewalker"
	"github.com/canvas-rr/csinject/pkg/util"
)

// DiscoverTargets finds every source script under dir. Built outputs
// (*.content.js), files matched by the default extension exclusions and
// anything at or below one of the skip paths (the output directory, files
// shipped unchanged) are left out. Destinations keep the source's path
// relative to dir.
func DiscoverTargets(dir string, skip ...string) ([]Target, error) {
	fileQueue := make(chan *gocodewalker.File, 64)
	walker := gocodewalker.NewFileWalker(dir, fileQueue)
	walker.AllowListExtensions = []string{"js"}
	walker.ExcludeDirectory = append(walker.ExcludeDirectory, util.DefaultExtensionExclusions.ExcludeDirectory...)

	errChan := make(chan error, 1)
	go func() {
		errChan <- walker.Start()
	}()

	var targets []Target
	for f := range fileQueue {
		if strings.HasSuffix(f.Filename, contentExt) ||
			util.MatchesAny(f.Filename, util.DefaultExtensionExclusions.ExcludeFilenamePatterns) {
			continue
		}
		if skipped(f.Location, skip) {
			continue
		}
		rel, err := filepath.Rel(dir, f.Location)
		if err != nil {
			continue
		}
		targets = append(targets, Target{
			Src:  f.Location,
			Dest: filepath.Join(filepath.Dir(rel), DefaultDest(rel)),
		})
	}
	if err := <-errChan; err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	slices.SortFunc(targets, func(a, b Target) int {
		return strings.Compare(a.Src, b.Src)
	})
	return targets, nil
}

func skipped(path string, skip []string) bool {
	for _, s := range skip {
		if s == "" {
			continue
		}
		if inside, err := util.IsWithin(s, path); err == nil && inside {
			return true
		}
	}
	return false
}
