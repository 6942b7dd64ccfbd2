package chainspec

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/axia-network/axia-launch/network"
	"github.com/axia-network/axia-launch/utils"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Stage is one step of a spec build.
type Stage string

const (
	StageGenerate             Stage = "generate"
	StageGenesisOverrides     Stage = "genesis-overrides"
	StageRegisterAllychains   Stage = "register-allychains"
	StageRegisterHrmpChannels Stage = "register-hrmp-channels"
	StageRegisterBootNodes    Stage = "register-boot-nodes"
	StageFinalize             Stage = "finalize"
)

// StageError is returned when a stage of a spec build fails.
// No later stage has run when it is returned.
type StageError struct {
	Stage Stage
	Chain string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("chain spec %q: stage %s failed: %v", e.Chain, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Paths of the human readable and raw forms of a chain spec.
type Paths struct {
	Spec string
	Raw  string
}

// RelaySpecPaths returns `<chain>.relay.json` and `<chain>.relay.raw.json` under [dir].
func RelaySpecPaths(dir, chain string) Paths {
	return Paths{
		Spec: filepath.Join(dir, chain+".relay.json"),
		Raw:  filepath.Join(dir, chain+".relay.raw.json"),
	}
}

// AllychainSpecPaths returns `<chain>.ally.json` and `<chain>.ally.raw.json` under [dir].
func AllychainSpecPaths(dir, chain string) Paths {
	return Paths{
		Spec: filepath.Join(dir, chain+".ally.json"),
		Raw:  filepath.Join(dir, chain+".ally.raw.json"),
	}
}

// GenesisAllychain is an allychain to register in the relay genesis.
type GenesisAllychain struct {
	Bin string
	// Resolved id.
	ID    string
	Chain string
	// Simple allychains support one implicit chain
	// so exports are done without chain or id.
	Simple bool
}

func (a GenesisAllychain) exportOptions() ExportOptions {
	if a.Simple {
		return ExportOptions{}
	}
	return ExportOptions{
		AllychainID: a.ID,
		Chain:       a.Chain,
	}
}

// BuildOptions of one spec build. Relay builds set the genesis overrides,
// allychains and HRMP channels. Allychain builds only set their own nodes.
type BuildOptions struct {
	Bin   string
	Chain string
	Paths Paths
	// Keep an existing raw spec instead of rebuilding it.
	Reuse bool

	Genesis      map[string]interface{}
	Allychains   []GenesisAllychain
	HrmpChannels []network.HrmpChannelConfig
	// Allychain ids already in the genesis. Ids registered by
	// this build are added to it.
	Registry *Registry

	// Nodes whose addresses become the spec's boot nodes.
	// Nodes without a node key get one.
	Nodes []*network.NodeConfig
}

// Pipeline builds chain specs by generating a spec with the chain binary,
// mutating it and finalizing it to its raw form.
type Pipeline struct {
	log  *zap.Logger
	fs   afero.Fs
	tool Tool
}

func NewPipeline(log *zap.Logger, fs afero.Fs, tool Tool) *Pipeline {
	return &Pipeline{
		log:  log,
		fs:   fs,
		tool: tool,
	}
}

// Build runs the spec stages in order and returns the path of the raw spec.
// When [opts.Reuse] is set and the raw spec exists no stage runs.
func (p *Pipeline) Build(ctx context.Context, opts BuildOptions) (string, error) {
	rawExists, err := utils.FileExists(p.fs, opts.Paths.Raw)
	if err != nil {
		return "", err
	}
	if opts.Reuse && rawExists {
		p.log.Info("`reuseChainSpec` flag enabled, will use existing raw spec, delete it if you don't want to reuse",
			zap.String("path", opts.Paths.Raw),
		)
		return opts.Paths.Raw, nil
	}

	fail := func(stage Stage, err error) (string, error) {
		return "", &StageError{Stage: stage, Chain: opts.Chain, Err: err}
	}

	if err := p.tool.BuildSpec(ctx, opts.Bin, opts.Chain, opts.Paths.Spec); err != nil {
		return fail(StageGenerate, err)
	}
	if len(opts.Genesis) > 0 {
		if err := ChangeGenesisConfig(p.fs, opts.Paths.Spec, opts.Genesis); err != nil {
			return fail(StageGenesisOverrides, err)
		}
	}
	if len(opts.Allychains) > 0 {
		if err := p.registerAllychains(ctx, opts); err != nil {
			return fail(StageRegisterAllychains, err)
		}
	}
	if len(opts.HrmpChannels) > 0 {
		p.log.Info("⛓ adding genesis HRMP channels", zap.Int("channels", len(opts.HrmpChannels)))
		for _, channel := range opts.HrmpChannels {
			if err := AddGenesisHrmpChannel(p.fs, opts.Paths.Spec, channel); err != nil {
				return fail(StageRegisterHrmpChannels, err)
			}
		}
	}
	bootNodes, err := utils.DeriveBootNodes(opts.Nodes)
	if err != nil {
		return fail(StageRegisterBootNodes, err)
	}
	if err := AddBootNodes(p.fs, opts.Paths.Spec, bootNodes); err != nil {
		return fail(StageRegisterBootNodes, err)
	}
	if err := p.tool.BuildRawSpec(ctx, opts.Bin, opts.Paths.Spec, opts.Paths.Raw); err != nil {
		return fail(StageFinalize, err)
	}
	return opts.Paths.Raw, nil
}

// registerAllychains writes every allychain not yet in the registry into the
// genesis. All exports of an allychain succeed before it is written.
func (p *Pipeline) registerAllychains(ctx context.Context, opts BuildOptions) error {
	p.log.Info("⛓ adding genesis allychains", zap.Int("allychains", len(opts.Allychains)))
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	for _, allychain := range opts.Allychains {
		if err := utils.CheckExecPath(p.fs, allychain.Bin); err != nil {
			return fmt.Errorf("allychain binary: %w", err)
		}
		if registry.Has(allychain.ID) {
			p.log.Debug("allychain already registered", zap.String("id", allychain.ID))
			continue
		}
		exportOpts := allychain.exportOptions()
		head, err := p.tool.ExportGenesisState(ctx, allychain.Bin, exportOpts)
		if err != nil {
			return fmt.Errorf("couldn't export genesis state of allychain %s: %w", allychain.ID, err)
		}
		wasm, err := p.tool.ExportGenesisWasm(ctx, allychain.Bin, exportOpts)
		if err != nil {
			return fmt.Errorf("couldn't export genesis wasm of allychain %s: %w", allychain.ID, err)
		}
		if err := AddGenesisAllychain(p.fs, opts.Paths.Spec, allychain.ID, head, wasm, true); err != nil {
			return err
		}
		registry.Add(allychain.ID)
		p.log.Info("  ✓ registered allychain", zap.String("id", allychain.ID))
	}
	return nil
}
