// Package layout owns the on-disk shape of an extraction database: TRAP
// files, the source archive, diagnostics, the run ledger and the manifest.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	trapDir       = "trap"
	srcDir        = "src"
	diagnosticDir = "diagnostic"
	ledgerFile    = "extraction.db"

	// ManifestFile marks a directory as a database. The resolver never
	// descends into a directory holding one.
	ManifestFile = "codeql-database.yml"
)

// Layout is a database directory.
type Layout struct {
	Root string
}

// New creates the database directory and its subdirectories.
func New(root string) (*Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("database dir: %w", err)
	}
	l := &Layout{Root: abs}
	for _, dir := range []string{l.TrapDir(), l.SrcDir(), l.DiagnosticDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return l, nil
}

func (l *Layout) TrapDir() string       { return filepath.Join(l.Root, trapDir) }
func (l *Layout) SrcDir() string        { return filepath.Join(l.Root, srcDir) }
func (l *Layout) DiagnosticDir() string { return filepath.Join(l.Root, diagnosticDir) }
func (l *Layout) LedgerPath() string    { return filepath.Join(l.Root, ledgerFile) }
func (l *Layout) ManifestPath() string  { return filepath.Join(l.Root, ManifestFile) }

// ResetDiagnostics empties the diagnostics directory. Diagnostics describe
// the latest run only.
func (l *Layout) ResetDiagnostics() error {
	dir := l.DiagnosticDir()
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("reset diagnostics: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

// mirror maps an absolute source path below dir.
func mirror(dir, file string) string {
	abs, err := filepath.Abs(file)
	if err != nil {
		abs = file
	}
	abs = strings.TrimPrefix(abs, filepath.VolumeName(abs))
	return filepath.Join(dir, abs)
}

// TrapPath is where the facts for file are written.
func (l *Layout) TrapPath(file string) string {
	return mirror(l.TrapDir(), file) + ".trap"
}

// ArchivePath is where the archived copy of file lives.
func (l *Layout) ArchivePath(file string) string {
	return mirror(l.SrcDir(), file)
}

// Archive stores the raw source of file in the source archive.
func (l *Layout) Archive(file string, content []byte) error {
	dst := l.ArchivePath(file)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("archive %s: %w", file, err)
	}
	if err := os.WriteFile(dst, content, 0o644); err != nil {
		return fmt.Errorf("archive %s: %w", file, err)
	}
	return nil
}

// Manifest describes a finished database.
type Manifest struct {
	SourceLocationPrefix string           `yaml:"sourceLocationPrefix"`
	PrimaryLanguage      string           `yaml:"primaryLanguage"`
	BaselineLinesOfCode  int              `yaml:"baselineLinesOfCode"`
	CreationMetadata     CreationMetadata `yaml:"creationMetadata"`
}

type CreationMetadata struct {
	RunID        string    `yaml:"runId"`
	CreationTime time.Time `yaml:"creationTime"`
	Files        int       `yaml:"files"`
	FailedFiles  int       `yaml:"failedFiles"`
}

// WriteManifest writes m atomically.
func (l *Layout) WriteManifest(m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	tmp := l.ManifestPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, l.ManifestPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest of the database at root.
func ReadManifest(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestFile))
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}
