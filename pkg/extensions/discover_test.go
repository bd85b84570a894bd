package extensions

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverTargets(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"rr-record.js",
		"lib/helpers.js",
		"rr-record.content.js",
		"rr-record.test.js",
		"node_modules/dep/index.js",
		"README.md",
	} {
		writeFile(t, filepath.Join(dir, name), "// "+name)
	}

	targets, err := DiscoverTargets(dir)
	require.NoError(t, err)

	assert.Equal(t, []Target{
		{Src: filepath.Join(dir, "lib", "helpers.js"), Dest: filepath.Join("lib", "helpers.content.js")},
		{Src: filepath.Join(dir, "rr-record.js"), Dest: "rr-record.content.js"},
	}, targets)
}

func TestDiscoverTargetsEmpty(t *testing.T) {
	targets, err := DiscoverTargets(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestDiscoverTargetsSkipsOutputAndCopies(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"rec.js",
		"replay.js",
		"out/replay.js",
		"out/nested/old.js",
		"vendor/lib.js",
	} {
		writeFile(t, filepath.Join(dir, name), "// "+name)
	}

	targets, err := DiscoverTargets(dir,
		filepath.Join(dir, "out"),
		filepath.Join(dir, "replay.js"),
		filepath.Join(dir, "vendor"),
		"",
	)
	require.NoError(t, err)

	assert.Equal(t, []Target{
		{Src: filepath.Join(dir, "rec.js"), Dest: "rec.content.js"},
	}, targets)
}
