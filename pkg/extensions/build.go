package extensions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/canvas-rr/csinject/pkg/injector"
	"github.com/canvas-rr/csinject/pkg/jsliteral"
	"github.com/canvas-rr/csinject/pkg/table"
	"github.com/canvas-rr/csinject/pkg/util"
	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDirMode = 0755

	sourceExt  = ".js"
	contentExt = ".content.js"
)

var (
	// ErrUnsafeClean is returned when the output directory is one that must
	// never be removed.
	ErrUnsafeClean = errors.New("refusing to clean output directory")

	// ErrDuplicateDest is returned when two targets would write the same file.
	ErrDuplicateDest = errors.New("duplicate destination")

	// ErrNoTargets is returned when a build has nothing to do.
	ErrNoTargets = errors.New("no content scripts to build")
)

// Target is one content script to embed. Dest is relative to the output
// directory.
type Target struct {
	Src  string `json:"src" yaml:"src"`
	Dest string `json:"dest,omitempty" yaml:"dest,omitempty"`
}

type BuildInput struct {
	OutDir  string
	Targets []Target
	Copy    []string // Files or directories shipped unchanged
	ZipPath string   // Optional archive of OutDir
	// ZipExclude adds filename patterns left out of the archive.
	ZipExclude []string
	Tag        string
	// Name fixes the script name in every loader announcement. Empty uses
	// each target's source file name.
	Name     string
	Parallel int
	// Protect lists paths Clean must never delete.
	Protect []string
}

type TargetResult struct {
	Src         string        `json:"src"`
	Dest        string        `json:"dest"`
	InputBytes  int           `json:"input_bytes"`
	OutputBytes int           `json:"output_bytes"`
	Specials    int           `json:"specials"`
	SHA256      string        `json:"sha256"`
	Duration    time.Duration `json:"duration"`
}

type CopyResult struct {
	Src  string `json:"src"`
	Dest string `json:"dest"`
}

type ZipResult struct {
	Path          string   `json:"path"`
	FilesIncluded int      `json:"files_included"`
	FilesExcluded int      `json:"files_excluded"`
	Bytes         int64    `json:"bytes"`
	Excluded      []string `json:"excluded,omitempty"`
}

// BuildOutput reports a completed build.
type BuildOutput struct {
	ID        string         `json:"id"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	OutDir    string         `json:"out_dir"`
	Targets   []TargetResult `json:"targets"`
	Copied    []CopyResult   `json:"copied,omitempty"`
	Zip       *ZipResult     `json:"zip,omitempty"`
}

// BuildContentScripts cleans the output directory, embeds every target into
// an injector document, copies the extra files and optionally zips the
// result.
func BuildContentScripts(ctx context.Context, in BuildInput) (*BuildOutput, error) {
	if len(in.Targets) == 0 {
		return nil, ErrNoTargets
	}
	targets, err := ResolveTargets(in.Targets)
	if err != nil {
		return nil, err
	}
	if err := checkCopyDests(targets, in.Copy); err != nil {
		return nil, err
	}

	outDir, err := filepath.Abs(in.OutDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output path: %w", err)
	}

	out := &BuildOutput{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		OutDir:    outDir,
	}

	protect := append(lo.Map(targets, func(t Target, _ int) string { return t.Src }), in.Copy...)
	protect = append(protect, in.Protect...)
	if err := Clean(outDir, protect...); err != nil {
		return nil, err
	}

	out.Targets, err = buildTargets(ctx, outDir, targets, in)
	if err != nil {
		return nil, err
	}

	for _, src := range in.Copy {
		res, err := copyIntoOutput(src, outDir)
		if err != nil {
			return nil, err
		}
		out.Copied = append(out.Copied, res)
	}

	if in.ZipPath != "" {
		pterm.Printf("[zip %s]\n", in.ZipPath)
		stats, err := util.ZipExtensionDirectory(outDir, in.ZipPath, &util.ExtensionZipOptions{
			ExcludePatterns: in.ZipExclude,
			Verbose:         true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to zip %s: %w", outDir, err)
		}
		out.Zip = &ZipResult{
			Path:          in.ZipPath,
			FilesIncluded: stats.FilesIncluded,
			FilesExcluded: stats.FilesExcluded,
			Bytes:         stats.BytesIncluded,
			Excluded:      stats.ExcludedPaths,
		}
	}

	out.Duration = time.Since(out.StartedAt)
	pterm.Println("Build complete.")
	return out, nil
}

func buildTargets(ctx context.Context, outDir string, targets []Target, in BuildInput) ([]TargetResult, error) {
	limit := in.Parallel
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	results := make([]TargetResult, len(targets))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, t := range targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			tpl, err := templateFor(in, t)
			if err != nil {
				return err
			}
			res, err := BuildTarget(tpl, t.Src, filepath.Join(outDir, t.Dest))
			if err != nil {
				return err
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func templateFor(in BuildInput, t Target) (*injector.Template, error) {
	name := in.Name
	if name == "" {
		name = filepath.Base(t.Src)
	}
	tpl, err := injector.New(injector.Options{Tag: in.Tag, Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare loader for %s: %w", t.Src, err)
	}
	return tpl, nil
}

// BuildTarget embeds the script at src into tpl and writes it to dest.
func BuildTarget(tpl *injector.Template, src, dest string) (*TargetResult, error) {
	pterm.Printf("[build_content_script %s]\n", src)
	start := time.Now()

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", src, err)
	}
	doc := tpl.FromScript(data)
	if err := util.WriteFileAtomic(dest, doc); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", dest, err)
	}
	pterm.Printf("   (%d bytes) => %s\n", len(doc), dest)

	sum := sha256.Sum256(doc)
	return &TargetResult{
		Src:         src,
		Dest:        dest,
		InputBytes:  len(data),
		OutputBytes: len(doc),
		Specials:    jsliteral.CountSpecial(data),
		SHA256:      hex.EncodeToString(sum[:]),
		Duration:    time.Since(start),
	}, nil
}

// Clean removes outDir and recreates it empty. It refuses the working
// directory, any of its parents, the filesystem root and any directory
// holding one of the protected paths.
func Clean(outDir string, protect ...string) error {
	pterm.Println("[clean]")

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}
	if absOut == filepath.Dir(absOut) {
		return fmt.Errorf("%w: %s is the filesystem root", ErrUnsafeClean, absOut)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	if inside, err := util.IsWithin(absOut, cwd); err != nil {
		return err
	} else if inside {
		return fmt.Errorf("%w: %s contains the working directory", ErrUnsafeClean, absOut)
	}

	for _, p := range protect {
		inside, err := util.IsWithin(absOut, p)
		if err != nil {
			return err
		}
		if inside {
			return fmt.Errorf("%w: %s contains %s", ErrUnsafeClean, absOut, p)
		}
	}

	if st, err := os.Stat(absOut); err == nil && !st.IsDir() {
		return fmt.Errorf("output path exists and is not a directory: %s", absOut)
	}
	if err := os.RemoveAll(absOut); err != nil {
		return fmt.Errorf("failed to remove %s: %w", absOut, err)
	}
	if err := os.MkdirAll(absOut, defaultDirMode); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

func copyIntoOutput(src, outDir string) (CopyResult, error) {
	dest := filepath.Join(outDir, filepath.Base(src))
	pterm.Printf("[copy %s]\n", src)

	st, err := os.Stat(src)
	if err != nil {
		return CopyResult{}, fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if st.IsDir() {
		err = util.CopyDir(src, dest)
	} else {
		err = util.CopyFile(src, dest)
	}
	if err != nil {
		return CopyResult{}, fmt.Errorf("failed to copy %s: %w", src, err)
	}
	pterm.Printf("   (%s) => %s\n", util.FormatBytes(st.Size()), dest)
	return CopyResult{Src: src, Dest: dest}, nil
}

// DefaultDest names the output of a source script: "x.js" becomes
// "x.content.js".
func DefaultDest(src string) string {
	base := filepath.Base(src)
	return strings.TrimSuffix(base, sourceExt) + contentExt
}

// ResolveTargets fills in default destinations, drops repeated sources and
// rejects targets that would overwrite each other or escape the output
// directory.
func ResolveTargets(targets []Target) ([]Target, error) {
	resolved := lo.Map(targets, func(t Target, _ int) Target {
		if t.Dest == "" {
			t.Dest = DefaultDest(t.Src)
		}
		t.Dest = filepath.Clean(t.Dest)
		return t
	})
	resolved = lo.UniqBy(resolved, func(t Target) string {
		return filepath.Clean(t.Src) + "\x00" + t.Dest
	})

	for _, t := range resolved {
		if filepath.IsAbs(t.Dest) || t.Dest == ".." || strings.HasPrefix(t.Dest, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("destination %s for %s is outside the output directory", t.Dest, t.Src)
		}
	}

	dups := lo.FindDuplicatesBy(resolved, func(t Target) string { return t.Dest })
	if len(dups) > 0 {
		names := lo.Map(dups, func(t Target, _ int) string { return t.Dest })
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDest, strings.Join(names, ", "))
	}
	return resolved, nil
}

// checkCopyDests rejects copied files that would land on a built target or
// on each other. Copies go to the top of the output directory under their
// base name.
func checkCopyDests(targets []Target, copies []string) error {
	taken := make(map[string]string, len(targets)+len(copies))
	for _, t := range targets {
		taken[t.Dest] = t.Src
	}
	for _, src := range copies {
		dest := filepath.Base(src)
		if prev, ok := taken[dest]; ok {
			return fmt.Errorf("%w: %s (copy of %s collides with %s)", ErrDuplicateDest, dest, src, prev)
		}
		taken[dest] = src
	}
	return nil
}

// DisplayBuildSuccess prints a per-target summary of out.
func DisplayBuildSuccess(out *BuildOutput) {
	pterm.Println()
	pterm.Println(table.Heading("Content scripts"))

	rows := pterm.TableData{{"Source", "Output", "Input", "Output Size", "Escaped", "SHA-256", "Time"}}
	for _, r := range out.Targets {
		rel, err := filepath.Rel(out.OutDir, r.Dest)
		if err != nil {
			rel = r.Dest
		}
		rows = append(rows, []string{
			r.Src,
			rel,
			util.FormatBytes(int64(r.InputBytes)),
			util.FormatBytes(int64(r.OutputBytes)),
			fmt.Sprintf("%d", r.Specials),
			r.SHA256[:12],
			util.FormatDuration(r.Duration),
		})
	}
	table.PrintTableNoPad(rows, true)

	if len(out.Copied) > 0 {
		pterm.Println()
		pterm.Info.Printf("Copied %s\n", strings.Join(lo.Map(out.Copied, func(c CopyResult, _ int) string {
			return filepath.Base(c.Dest)
		}), ", "))
	}

	var zipPath, excluded string
	if out.Zip != nil {
		zipPath = fmt.Sprintf("%s (%d files, %s)", out.Zip.Path, out.Zip.FilesIncluded, util.FormatBytes(out.Zip.Bytes))
		excluded = strings.Join(out.Zip.Excluded, ", ")
	}
	pterm.Println()
	table.PrintTableNoPad(pterm.TableData{
		{"Property", "Value"},
		{"Build ID", out.ID},
		{"Output", out.OutDir},
		{"Zip", util.OrDash(zipPath)},
		{"Left out of zip", util.OrDash(excluded)},
		{"Duration", util.FormatDuration(out.Duration)},
	}, true)
}
