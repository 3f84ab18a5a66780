// Package config loads and validates the extractor configuration.
package config

import "runtime"

// Config is the complete extractor configuration. It can be loaded from
// kcltrap.yml in the source root with KCLTRAP_* environment overrides.
type Config struct {
	SourceRoot   string            `yaml:"source_root" mapstructure:"source_root"`
	Include      []string          `yaml:"include" mapstructure:"include"`       // paths relative to the source root
	Exclude      []string          `yaml:"exclude" mapstructure:"exclude"`       // paths relative to the source root
	Filters      []string          `yaml:"filters" mapstructure:"filters"`       // "include:PAT" or "exclude:PAT"
	FileTypes    map[string]string `yaml:"file_types" mapstructure:"file_types"` // extension (no leading dot) -> file type name
	Threads      int               `yaml:"threads" mapstructure:"threads"`
	Encoding     string            `yaml:"encoding" mapstructure:"encoding"`
	SourceType   string            `yaml:"source_type" mapstructure:"source_type"`
	ExtractLines bool              `yaml:"extract_lines" mapstructure:"extract_lines"`
	OutputDir    string            `yaml:"output_dir" mapstructure:"output_dir"`
	TrapCache    TrapCacheConfig   `yaml:"trap_cache" mapstructure:"trap_cache"`
	Parser       ParserConfig      `yaml:"parser" mapstructure:"parser"`
}

// TrapCacheConfig configures the content-addressable TRAP cache.
type TrapCacheConfig struct {
	Dir     string `yaml:"dir" mapstructure:"dir"`         // "" disables caching
	Backend string `yaml:"backend" mapstructure:"backend"` // "dir", "bolt" or "memory"
	Bound   string `yaml:"bound" mapstructure:"bound"`     // e.g. "500m"; dir backend only
	Write   bool   `yaml:"write" mapstructure:"write"`     // false makes the cache read-only
}

// ParserConfig configures the parser services.
type ParserConfig struct {
	KCLCommand []string `yaml:"kcl_command" mapstructure:"kcl_command"`
}

const (
	BackendDir    = "dir"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Source types. Only KCL is extracted today; the selector exists so a
// database can record what it was built from.
const (
	SourceKCL = "kcl"
)

// Default returns a configuration with the default values.
func Default() *Config {
	return &Config{
		SourceRoot: ".",
		Include:    []string{},
		Exclude:    []string{},
		Filters:    []string{},
		FileTypes:  map[string]string{},
		Threads:    1,
		Encoding:   "utf-8",
		SourceType: SourceKCL,
		OutputDir:  "kcltrap-db",
		TrapCache: TrapCacheConfig{
			Backend: BackendDir,
			Write:   true,
		},
		Parser: ParserConfig{
			KCLCommand: []string{"kcl-ast"},
		},
	}
}

// Workers returns the effective worker count: Threads, or the number of CPUs
// when Threads is 0.
func (c *Config) Workers() int {
	if c.Threads == 0 {
		return runtime.NumCPU()
	}
	return c.Threads
}
