package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the source root.
const FileName = "kcltrap.yml"

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir    string
	configFile string
}

// NewLoader creates a loader reading kcltrap.yml from rootDir.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

// NewFileLoader creates a loader reading an explicit configuration file.
// rootDir is still the default source root.
func NewFileLoader(rootDir, configFile string) Loader {
	return &loader{rootDir: rootDir, configFile: configFile}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (KCLTRAP_*)
// 2. Config file (kcltrap.yml in the root, or the explicit file)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		v.SetConfigType("yaml")
		v.AddConfigPath(l.rootDir)
	}

	v.SetEnvPrefix("KCLTRAP")
	v.AutomaticEnv()
	// Replace . with _ in env var names (e.g., KCLTRAP_TRAP_CACHE_DIR)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range []string{
		"source_root", "threads", "encoding", "source_type", "extract_lines", "output_dir",
		"trap_cache.dir", "trap_cache.backend", "trap_cache.bound", "trap_cache.write",
	} {
		_ = v.BindEnv(key)
	}

	setDefaults(v, l.rootDir)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &Error{Err: fmt.Errorf("read config file: %w", err)}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &Error{Err: fmt.Errorf("unmarshal config: %w", err)}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, rootDir string) {
	defaults := Default()
	if rootDir != "" {
		defaults.SourceRoot = rootDir
	}

	v.SetDefault("source_root", defaults.SourceRoot)
	v.SetDefault("include", defaults.Include)
	v.SetDefault("exclude", defaults.Exclude)
	v.SetDefault("filters", defaults.Filters)
	v.SetDefault("file_types", defaults.FileTypes)
	v.SetDefault("threads", defaults.Threads)
	v.SetDefault("encoding", defaults.Encoding)
	v.SetDefault("source_type", defaults.SourceType)
	v.SetDefault("extract_lines", defaults.ExtractLines)
	v.SetDefault("output_dir", defaults.OutputDir)

	v.SetDefault("trap_cache.dir", defaults.TrapCache.Dir)
	v.SetDefault("trap_cache.backend", defaults.TrapCache.Backend)
	v.SetDefault("trap_cache.bound", defaults.TrapCache.Bound)
	v.SetDefault("trap_cache.write", defaults.TrapCache.Write)

	v.SetDefault("parser.kcl_command", defaults.Parser.KCLCommand)
}

// LoadFromDir loads configuration for the source root rootDir.
func LoadFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
