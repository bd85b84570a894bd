// Package config loads build settings from csinject.yaml, CSINJECT_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Masterminds/semver/v3"
	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/canvas-rr/csinject/pkg/extensions"
)

const (
	DefaultFile = "csinject.yaml"
	DefaultOut  = "out"

	EnvConfig   = "CSINJECT_CONFIG"
	EnvOut      = "CSINJECT_OUT"
	EnvTag      = "CSINJECT_TAG"
	EnvName     = "CSINJECT_NAME"
	EnvParallel = "CSINJECT_PARALLEL"
	EnvZip      = "CSINJECT_ZIP"
)

// ErrVersionMismatch is returned when the running binary does not satisfy
// the config's requires constraint.
var ErrVersionMismatch = errors.New("csinject version does not satisfy requires")

// Config describes one build.
type Config struct {
	Requires string              `yaml:"requires"`
	Out      string              `yaml:"out"`
	Tag      string              `yaml:"tag"`
	Name     string              `yaml:"name"`
	Parallel int                 `yaml:"parallel"`
	Targets  []extensions.Target `yaml:"targets"`
	Discover string              `yaml:"discover"`
	Copy     []string            `yaml:"copy"`
	Zip      string              `yaml:"zip"`
	// ZipExclude lists extra filename patterns left out of the zip.
	ZipExclude []string `yaml:"zip_exclude"`

	// Path is the file the config was read from, empty when none was found.
	Path string `yaml:"-"`
	// Dir is the directory relative paths resolve against.
	Dir string `yaml:"-"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{Out: DefaultOut}
}

// LoadEnv loads .env style files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the config at path. An empty path falls back to
// $CSINJECT_CONFIG and then to csinject.yaml in the working directory; only
// that last default may be absent. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	explicit := true
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		path = DefaultFile
		explicit = false
	}

	cfg := Default()
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		cfg.Path = abs
		cfg.Dir = filepath.Dir(abs)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.Dir = cwd
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides applies CSINJECT_* variables. Paths given this way are
// relative to the working directory, not the config file.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(EnvOut); v != "" {
		abs, err := filepath.Abs(v)
		if err != nil {
			return err
		}
		c.Out = abs
	}
	if v := os.Getenv(EnvZip); v != "" {
		abs, err := filepath.Abs(v)
		if err != nil {
			return err
		}
		c.Zip = abs
	}
	if v := os.Getenv(EnvTag); v != "" {
		c.Tag = v
	}
	if v := os.Getenv(EnvName); v != "" {
		c.Name = v
	}
	if v := os.Getenv(EnvParallel); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvParallel, v, err)
		}
		c.Parallel = n
	}
	return nil
}

// ApplyFlags overrides fields with the flags the user actually set. Flags
// missing from the set are skipped.
func (c *Config) ApplyFlags(flags *pflag.FlagSet) error {
	changed := func(name string) bool {
		return flags.Lookup(name) != nil && flags.Changed(name)
	}

	if changed("out") {
		v, _ := flags.GetString("out")
		abs, err := filepath.Abs(v)
		if err != nil {
			return err
		}
		c.Out = abs
	}
	if changed("zip") {
		v, _ := flags.GetString("zip")
		abs, err := filepath.Abs(v)
		if err != nil {
			return err
		}
		c.Zip = abs
	}
	if changed("tag") {
		c.Tag, _ = flags.GetString("tag")
	}
	if changed("name") {
		c.Name, _ = flags.GetString("name")
	}
	if changed("parallel") {
		c.Parallel, _ = flags.GetInt("parallel")
	}
	return nil
}

// AddSources appends targets given on the command line, relative to the
// working directory.
func (c *Config) AddSources(srcs ...string) error {
	for _, src := range srcs {
		abs, err := filepath.Abs(src)
		if err != nil {
			return err
		}
		c.Targets = append(c.Targets, extensions.Target{Src: abs})
	}
	return nil
}

// Validate checks field values that do not depend on the filesystem.
func (c *Config) Validate() error {
	if c.Out == "" {
		return fmt.Errorf("out must not be empty")
	}
	if c.Parallel < 0 {
		return fmt.Errorf("parallel must not be negative, got %d", c.Parallel)
	}
	if c.Requires != "" {
		if _, err := semver.NewConstraint(c.Requires); err != nil {
			return fmt.Errorf("invalid requires %q: %w", c.Requires, err)
		}
	}
	return nil
}

// CheckVersion verifies that version satisfies Requires. Development builds
// are let through with a warning.
func (c *Config) CheckVersion(version string) error {
	if c.Requires == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(c.Requires)
	if err != nil {
		return fmt.Errorf("invalid requires %q: %w", c.Requires, err)
	}
	if version == "" || version == "dev" {
		pterm.Warning.Printf("Skipping requires %q check for a development build\n", c.Requires)
		return nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid csinject version %q: %w", version, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: %s does not match %q", ErrVersionMismatch, v, c.Requires)
	}
	return nil
}

// resolve makes p absolute against the config directory.
func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// BuildInput turns the config into a build request, resolving relative
// paths and scanning the discover directory.
func (c *Config) BuildInput() (extensions.BuildInput, error) {
	targets := make([]extensions.Target, 0, len(c.Targets))
	for _, t := range c.Targets {
		targets = append(targets, extensions.Target{Src: c.resolve(t.Src), Dest: t.Dest})
	}

	copies := make([]string, 0, len(c.Copy))
	for _, p := range c.Copy {
		copies = append(copies, c.resolve(p))
	}
	outDir := c.resolve(c.Out)

	if c.Discover != "" {
		skip := append([]string{outDir}, copies...)
		found, err := extensions.DiscoverTargets(c.resolve(c.Discover), skip...)
		if err != nil {
			return extensions.BuildInput{}, err
		}
		targets = append(targets, found...)
	}

	in := extensions.BuildInput{
		OutDir:     outDir,
		Targets:    targets,
		Copy:       copies,
		ZipPath:    c.resolve(c.Zip),
		ZipExclude: c.ZipExclude,
		Tag:        c.Tag,
		Name:       c.Name,
		Parallel:   c.Parallel,
	}
	if c.Path != "" {
		in.Protect = append(in.Protect, c.Path)
	}
	return in, nil
}

// Sources lists the resolved source paths, for watching.
func (c *Config) Sources(in extensions.BuildInput) []string {
	srcs := make([]string, 0, len(in.Targets)+len(in.Copy)+1)
	for _, t := range in.Targets {
		srcs = append(srcs, t.Src)
	}
	srcs = append(srcs, in.Copy...)
	if c.Path != "" {
		srcs = append(srcs, c.Path)
	}
	return srcs
}
