package util

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/boyter/gocodewalker"
)

// DefaultExtensionExclusions lists files that never belong in a packaged
// extension. Directories go to gocodewalker's ExcludeDirectory; filename
// patterns are matched with filepath.Match.
var DefaultExtensionExclusions = struct {
	ExcludeDirectory        []string
	ExcludeFilenamePatterns []string
}{
	ExcludeDirectory: []string{
		"node_modules",
		".git",
		"__tests__",
		"coverage",
	},

	ExcludeFilenamePatterns: []string{
		"*.test.js",
		"*.test.ts",
		"*.spec.js",
		"*.spec.ts",
		"*.log",
		"*.swp",
		".DS_Store",
		// leftovers from WriteFileAtomic
		".*.tmp-*",
	},
}

// ExtensionZipOptions configures extension-specific zipping behavior
type ExtensionZipOptions struct {
	ExcludeDefaults bool     // If true, don't apply default exclusions
	ExcludePatterns []string // Extra filename patterns to leave out
	Verbose         bool     // Track individual excluded files
}

// ZipStats tracks statistics about the zipping operation
type ZipStats struct {
	mu            sync.Mutex
	FilesIncluded int
	FilesExcluded int
	BytesIncluded int64
	BytesExcluded int64
	ExcludedPaths []string
}

func (s *ZipStats) AddIncluded(bytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FilesIncluded++
	s.BytesIncluded += bytes
}

func (s *ZipStats) AddExcluded(path string, bytes int64, verbose bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FilesExcluded++
	s.BytesExcluded += bytes
	if verbose {
		s.ExcludedPaths = append(s.ExcludedPaths, path)
	}
}

// MatchesAny reports whether the base name of path matches one of patterns.
func MatchesAny(path string, patterns []string) bool {
	name := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, err := filepath.Match(pattern, name); err == nil && matched {
			return true
		}
	}
	return false
}

// ZipExtensionDirectory zips a built extension directory, leaving out
// development files. destZip must not lie inside srcDir.
func ZipExtensionDirectory(srcDir, destZip string, opts *ExtensionZipOptions) (*ZipStats, error) {
	if opts == nil {
		opts = &ExtensionZipOptions{}
	}

	inside, err := IsWithin(srcDir, destZip)
	if err != nil {
		return nil, err
	}
	if inside {
		return nil, fmt.Errorf("zip file %s must not be inside %s", destZip, srcDir)
	}

	patterns := append([]string(nil), opts.ExcludePatterns...)
	if !opts.ExcludeDefaults {
		patterns = append(patterns, DefaultExtensionExclusions.ExcludeFilenamePatterns...)
	}

	if err := os.MkdirAll(filepath.Dir(destZip), defaultDirMode); err != nil {
		return nil, err
	}
	zipFile, err := os.Create(destZip)
	if err != nil {
		return nil, err
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)
	defer zipWriter.Close()

	stats := &ZipStats{}

	fileQueue := make(chan *gocodewalker.File, 256)
	walker := gocodewalker.NewFileWalker(srcDir, fileQueue)
	walker.IncludeHidden = true
	// Build output is packaged as-is, whatever a .gitignore says.
	walker.IgnoreGitIgnore = true
	walker.IgnoreIgnoreFile = true
	if !opts.ExcludeDefaults {
		walker.ExcludeDirectory = append(walker.ExcludeDirectory, DefaultExtensionExclusions.ExcludeDirectory...)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- walker.Start()
	}()

	// Drain the queue on early return so the walker goroutine can finish.
	defer func() {
		for range fileQueue {
		}
	}()

	dirsAdded := make(map[string]struct{})

	for f := range fileQueue {
		relPath, err := filepath.Rel(srcDir, f.Location)
		if err != nil {
			return stats, err
		}
		relPath = filepath.ToSlash(relPath)

		fileInfo, err := os.Lstat(f.Location)
		if err != nil {
			return stats, err
		}

		if MatchesAny(relPath, patterns) {
			stats.AddExcluded(relPath, fileInfo.Size(), opts.Verbose)
			continue
		}

		if dir := filepath.Dir(relPath); dir != "." && dir != "" {
			var current string
			for _, segment := range strings.Split(dir, "/") {
				if current == "" {
					current = segment
				} else {
					current = current + "/" + segment
				}
				if _, exists := dirsAdded[current+"/"]; !exists {
					if _, err := zipWriter.Create(current + "/"); err != nil {
						return stats, err
					}
					dirsAdded[current+"/"] = struct{}{}
				}
			}
		}

		if fileInfo.Mode()&os.ModeSymlink != 0 {
			linkTarget, err := os.Readlink(f.Location)
			if err != nil {
				return stats, err
			}

			hdr := &zip.FileHeader{
				Name:   relPath,
				Method: zip.Store,
			}
			hdr.SetMode(os.ModeSymlink | 0777)

			w, err := zipWriter.CreateHeader(hdr)
			if err != nil {
				return stats, err
			}
			if _, err := w.Write([]byte(linkTarget)); err != nil {
				return stats, err
			}
			stats.AddIncluded(int64(len(linkTarget)))
			continue
		}

		hdr, err := zip.FileInfoHeader(fileInfo)
		if err != nil {
			return stats, err
		}
		hdr.Name = relPath
		hdr.Method = zip.Deflate

		w, err := zipWriter.CreateHeader(hdr)
		if err != nil {
			return stats, err
		}

		file, err := os.Open(f.Location)
		if err != nil {
			return stats, err
		}
		written, err := io.Copy(w, file)
		closeErr := file.Close()
		if err != nil {
			return stats, err
		}
		if closeErr != nil {
			return stats, closeErr
		}

		stats.AddIncluded(written)
	}

	if err := <-errChan; err != nil {
		return stats, fmt.Errorf("directory walk failed: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return stats, err
	}
	return stats, zipFile.Close()
}
