package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jward/kcltrap/internal/discovery"
	"github.com/jward/kcltrap/internal/extractor"
	"github.com/jward/kcltrap/internal/trapcache"
)

var (
	// ErrInvalidSourceType indicates an unsupported source type
	ErrInvalidSourceType = errors.New("invalid source type")

	// ErrInvalidThreads indicates a negative worker count
	ErrInvalidThreads = errors.New("invalid threads")

	// ErrInvalidFileType indicates an override naming an unknown file type
	ErrInvalidFileType = errors.New("invalid file type")

	// ErrInvalidEncoding indicates an encoding name with no decoder
	ErrInvalidEncoding = errors.New("invalid encoding")

	// ErrInvalidBackend indicates an unsupported cache backend
	ErrInvalidBackend = errors.New("invalid trap cache backend")

	// ErrInvalidBound indicates a malformed cache size bound
	ErrInvalidBound = errors.New("invalid trap cache bound")

	// ErrInvalidFilter indicates a malformed include/exclude filter
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrEmptyCommand indicates a missing KCL parser command
	ErrEmptyCommand = errors.New("empty kcl parser command")

	// ErrEmptyOutputDir indicates a missing database directory
	ErrEmptyOutputDir = errors.New("empty output directory")
)

// FileTypeNames lists the file type names an override may refer to.
var FileTypeNames = []string{"kcl", "yaml"}

// Error is a fatal configuration error. It wraps every problem found.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "invalid configuration: " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Validate checks the configuration and reports every problem at once.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.SourceType != SourceKCL {
		errs = append(errs, fmt.Errorf("%w: must be %q, got %q", ErrInvalidSourceType, SourceKCL, cfg.SourceType))
	}
	if cfg.Threads < 0 {
		errs = append(errs, fmt.Errorf("%w: must be >= 0, got %d", ErrInvalidThreads, cfg.Threads))
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		errs = append(errs, ErrEmptyOutputDir)
	}
	if err := extractor.CheckEncoding(cfg.Encoding); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidEncoding, err))
	}
	if err := discovery.CheckFilters(cfg.Filters); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidFilter, err))
	}
	for ext, name := range cfg.FileTypes {
		if !knownFileType(name) {
			errs = append(errs, fmt.Errorf("%w: %q for extension %q (known: %s)",
				ErrInvalidFileType, name, ext, strings.Join(FileTypeNames, ", ")))
		}
	}
	if len(cfg.Parser.KCLCommand) == 0 || strings.TrimSpace(cfg.Parser.KCLCommand[0]) == "" {
		errs = append(errs, ErrEmptyCommand)
	}
	if err := validateTrapCache(&cfg.TrapCache); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return &Error{Err: errors.Join(errs...)}
	}
	return nil
}

func validateTrapCache(cfg *TrapCacheConfig) error {
	var errs []error
	switch strings.ToLower(cfg.Backend) {
	case BackendDir, BackendBolt, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("%w: must be 'dir', 'bolt' or 'memory', got '%s'", ErrInvalidBackend, cfg.Backend))
	}
	if _, err := trapcache.ParseSize(cfg.Bound); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidBound, err))
	}
	return errors.Join(errs...)
}

func knownFileType(name string) bool {
	for _, n := range FileTypeNames {
		if n == name {
			return true
		}
	}
	return false
}
