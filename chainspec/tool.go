package chainspec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var _ Tool = (*binaryTool)(nil)

// Tool runs the chain binary subcommands the pipeline needs.
// As an interface so we can mock chain binaries in tests.
type Tool interface {
	// Writes the human readable spec of [chain] to [out].
	BuildSpec(ctx context.Context, bin, chain, out string) error
	// Writes the raw form of the spec document at [spec] to [out].
	BuildRawSpec(ctx context.Context, bin, spec, out string) error
	// Returns the hex encoded genesis state of an allychain.
	ExportGenesisState(ctx context.Context, bin string, opts ExportOptions) (string, error)
	// Returns the hex encoded genesis code of an allychain.
	ExportGenesisWasm(ctx context.Context, bin string, opts ExportOptions) (string, error)
	// Returns the allychain id written in the spec [bin] generates for [chain].
	AllychainID(ctx context.Context, bin, chain string) (string, error)
}

// ExportOptions select the chain an export is done for.
// Both fields are left empty for binaries that support
// exactly one implicit chain.
type ExportOptions struct {
	AllychainID string
	Chain       string
}

// ExecError is returned when a chain binary exits with an error.
type ExecError struct {
	Bin    string
	Args   []string
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Bin, strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

type binaryTool struct {
	log *zap.Logger
	fs  afero.Fs
}

// NewBinaryTool returns a Tool that executes chain binaries
// and writes generated specs to [fs].
func NewBinaryTool(log *zap.Logger, fs afero.Fs) Tool {
	return &binaryTool{
		log: log,
		fs:  fs,
	}
}

func (t *binaryTool) BuildSpec(ctx context.Context, bin, chain, out string) error {
	t.log.Info("generating chain spec", zap.String("chain", chain), zap.String("path", out))
	spec, err := t.run(ctx, bin, "build-spec", "--chain="+chain, "--disable-default-bootnode")
	if err != nil {
		return err
	}
	return afero.WriteFile(t.fs, out, spec, 0o644)
}

func (t *binaryTool) BuildRawSpec(ctx context.Context, bin, spec, out string) error {
	t.log.Info("generating raw chain spec", zap.String("spec", spec), zap.String("path", out))
	raw, err := t.run(ctx, bin, "build-spec", "--chain="+spec, "--raw", "--disable-default-bootnode")
	if err != nil {
		return err
	}
	return afero.WriteFile(t.fs, out, raw, 0o644)
}

func (t *binaryTool) ExportGenesisState(ctx context.Context, bin string, opts ExportOptions) (string, error) {
	args := []string{"export-genesis-state"}
	if opts.AllychainID != "" {
		args = append(args, "--allychain-id="+opts.AllychainID)
	}
	if opts.Chain != "" {
		args = append(args, "--chain="+opts.Chain)
	}
	out, err := t.run(ctx, bin, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ExportGenesisWasm only selects the chain.
// The genesis code does not depend on the allychain id.
func (t *binaryTool) ExportGenesisWasm(ctx context.Context, bin string, opts ExportOptions) (string, error) {
	args := []string{"export-genesis-wasm"}
	if opts.Chain != "" {
		args = append(args, "--chain="+opts.Chain)
	}
	out, err := t.run(ctx, bin, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (t *binaryTool) AllychainID(ctx context.Context, bin, chain string) (string, error) {
	args := []string{"build-spec"}
	if chain != "" {
		args = append(args, "--chain="+chain)
	}
	out, err := t.run(ctx, bin, args...)
	if err != nil {
		return "", err
	}
	return allychainIDFromSpec(out)
}

func (t *binaryTool) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	t.log.Debug("running chain binary", zap.String("bin", bin), zap.Strings("args", args))
	if err := cmd.Run(); err != nil {
		return nil, &ExecError{
			Bin:    bin,
			Args:   args,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

// allychainIDFromSpec reads the allychain id of a generated spec,
// which binaries name either `para_id` or `paraId`.
func allychainIDFromSpec(spec []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(spec))
	dec.UseNumber()
	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return "", fmt.Errorf("couldn't decode generated spec: %w", err)
	}
	for _, key := range []string{"para_id", "paraId"} {
		switch id := doc[key].(type) {
		case json.Number:
			return id.String(), nil
		case string:
			if id != "" {
				return id, nil
			}
		}
	}
	return "", ErrNoAllychainID
}
