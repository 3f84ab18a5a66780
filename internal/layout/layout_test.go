package layout

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/kcltrap/internal/discovery"
)

func TestNew_CreatesDirs(t *testing.T) {
	t.Parallel()
	l, err := New(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	for _, dir := range []string{l.TrapDir(), l.SrcDir(), l.DiagnosticDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(l.Root, "extraction.db"), l.LedgerPath())
}

func TestResetDiagnostics(t *testing.T) {
	t.Parallel()
	l, err := New(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	stale := filepath.Join(l.DiagnosticDir(), "extractor-1.jsonl")
	require.NoError(t, os.WriteFile(stale, []byte("{}\n"), 0o644))

	require.NoError(t, l.ResetDiagnostics())
	entries, err := os.ReadDir(l.DiagnosticDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPaths_MirrorSource(t *testing.T) {
	t.Parallel()
	l := &Layout{Root: "/db"}
	assert.Equal(t, filepath.FromSlash("/db/trap/proj/app/main.k.trap"), l.TrapPath("/proj/app/main.k"))
	assert.Equal(t, filepath.FromSlash("/db/src/proj/app/main.k"), l.ArchivePath("/proj/app/main.k"))
}

func TestArchive(t *testing.T) {
	t.Parallel()
	l, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, l.Archive("/proj/a.k", []byte("a = 1\n")))
	data, err := os.ReadFile(l.ArchivePath("/proj/a.k"))
	require.NoError(t, err)
	assert.Equal(t, "a = 1\n", string(data))
}

func TestManifest_RoundTrip(t *testing.T) {
	t.Parallel()
	l, err := New(t.TempDir())
	require.NoError(t, err)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	m := Manifest{
		SourceLocationPrefix: "/proj",
		PrimaryLanguage:      "kcl",
		BaselineLinesOfCode:  42,
		CreationMetadata:     CreationMetadata{RunID: "r1", CreationTime: now, Files: 3, FailedFiles: 1},
	}
	require.NoError(t, l.WriteManifest(m))

	got, err := ReadManifest(l.Root)
	require.NoError(t, err)
	assert.Equal(t, m, *got)

	raw, err := os.ReadFile(l.ManifestPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "sourceLocationPrefix: /proj")
}

func TestManifestFile_MatchesResolverMarker(t *testing.T) {
	t.Parallel()
	assert.Equal(t, discovery.DatabaseMarker, ManifestFile)
}
