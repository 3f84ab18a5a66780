package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
)

// DefaultKCLCommand is the helper that parses and resolves one KCL file and
// prints its AST as JSON.
var DefaultKCLCommand = []string{"kcl-ast"}

// oomStatus is the exit status of a process killed for running out of memory.
const oomStatus = 137

// KCLService runs an external command per file. The command receives the
// file path as its last argument and the decoded source on stdin, and must
// print a single JSON document:
//
//	{"program": {...}, "schema_types": {"<node id>": "pkg.Name"}, "errors": [...]}
//
// where program follows the KCL AST's JSON serialisation. Parser node IDs are
// replaced by structural IDs so output does not vary between runs.
type KCLService struct {
	command []string
}

var _ Service = (*KCLService)(nil)

// NewKCLService returns a service running command (DefaultKCLCommand if
// empty).
func NewKCLService(command []string) *KCLService {
	if len(command) == 0 {
		command = DefaultKCLCommand
	}
	return &KCLService{command: command}
}

type kclOutput struct {
	Program     *rawProgram       `json:"program"`
	SchemaTypes map[string]string `json:"schema_types"`
	Errors      []rawError        `json:"errors"`
}

type rawError struct {
	Message   string `json:"message"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"end_line"`
	EndColumn int    `json:"end_column"`
}

// Parse runs the helper on path.
func (s *KCLService) Parse(ctx context.Context, path string, src []byte) (*Result, error) {
	args := append(append([]string{}, s.command[1:]...), path)
	cmd := exec.CommandContext(ctx, s.command[0], args...)
	cmd.Stdin = bytes.NewReader(src)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if outOfMemory(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrOutOfMemory)
		}
		return nil, fmt.Errorf("run %s: %w: %s", s.command[0], err, firstLine(stderr.String()))
	}
	return DecodeKCL(stdout.Bytes())
}

// DecodeKCL converts the helper's JSON output into a Result.
func DecodeKCL(data []byte) (*Result, error) {
	var out kclOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode kcl ast: %w", err)
	}
	res := &Result{}
	for _, e := range out.Errors {
		res.Errors = append(res.Errors, ParseError{
			Message:   e.Message,
			Line:      e.Line,
			Column:    e.Column,
			EndLine:   e.EndLine,
			EndColumn: e.EndColumn,
		})
	}
	if out.Program == nil {
		return res, nil
	}
	d := newDecoder()
	prog, err := d.program(out.Program)
	if err != nil {
		return nil, err
	}
	res.Program = prog

	symbols := make(SchemaTypes, len(out.SchemaTypes))
	for parserID, fqn := range out.SchemaTypes {
		if id, ok := d.remap[parserID]; ok {
			symbols[id] = fqn
		}
	}
	res.Symbols = symbols
	return res, nil
}

func outOfMemory(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	if exitErr.ExitCode() == oomStatus {
		return true
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		return ws.Signaled() && ws.Signal() == syscall.SIGKILL
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
