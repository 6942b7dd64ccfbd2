// Package launcher launches a relay chain and its allychains
// from a network config.
package launcher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/axia-network/axia-launch/chainspec"
	"github.com/axia-network/axia-launch/local"
	"github.com/axia-network/axia-launch/network"
	"github.com/axia-network/axia-launch/rpc"
	"github.com/axia-network/axia-launch/utils"
	"github.com/axia-network/axia-launch/ux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Config of a Launcher. Only [Log] is required.
type Config struct {
	Log *zap.Logger
	// Defaults to the OS filesystem.
	Fs afero.Fs
	// Directory binary paths of the network config are relative to.
	ConfigDir string
	// Directory chain specs are written to.
	SpecDir string
	// Defaults to running the chain binaries.
	Tool chainspec.Tool
	// Defaults to local processes.
	Nodes local.NodeLauncher
	// Defaults to a websocket client.
	Dial rpc.DialFunc
	// Defaults to a new registry.
	Registerer prometheus.Registerer
}

// Result of a successful launch.
type Result struct {
	// Path of the raw relay chain spec the nodes were started with.
	RelaySpec string
	// Started processes, in start order.
	Processes []local.NodeProcess
}

type Launcher struct {
	log       *zap.Logger
	fs        afero.Fs
	configDir string
	specDir   string
	tool      chainspec.Tool
	nodes     local.NodeLauncher
	dial      rpc.DialFunc
	pipeline  *chainspec.Pipeline
	metrics   *metrics
}

func New(config Config) (*Launcher, error) {
	if config.Log == nil {
		config.Log = zap.NewNop()
	}
	if config.Fs == nil {
		config.Fs = afero.NewOsFs()
	}
	if config.Tool == nil {
		config.Tool = chainspec.NewBinaryTool(config.Log, config.Fs)
	}
	if config.Nodes == nil {
		config.Nodes = local.NewNodeLauncher(config.Log, local.Config{})
	}
	if config.Dial == nil {
		config.Dial = rpc.NewDialer(config.Log, rpc.Config{})
	}
	if config.Registerer == nil {
		config.Registerer = prometheus.NewRegistry()
	}
	m, err := newMetrics(config.Registerer)
	if err != nil {
		return nil, fmt.Errorf("couldn't register metrics: %w", err)
	}
	return &Launcher{
		log:       config.Log,
		fs:        config.Fs,
		configDir: config.ConfigDir,
		specDir:   config.SpecDir,
		tool:      config.Tool,
		nodes:     config.Nodes,
		dial:      config.Dial,
		pipeline:  chainspec.NewPipeline(config.Log, config.Fs, config.Tool),
		metrics:   m,
	}, nil
}

// RunRelay builds the relay chain spec, registering every allychain in
// its genesis, and starts the relay chain nodes.
func (l *Launcher) RunRelay(ctx context.Context, config *network.Config) (*Result, error) {
	r := l.newRun(config)
	if err := r.prepare(ctx); err != nil {
		return nil, err
	}
	if err := r.step(StateBuildingRelaySpec, func() error { return r.buildRelaySpec(ctx) }); err != nil {
		return nil, err
	}
	if err := r.step(StateLaunchingRelayNodes, func() error { return r.launchRelayNodes(ctx) }); err != nil {
		return nil, err
	}
	return r.done(), nil
}

// RunAllychains starts the allychains of [config] against a running relay
// chain launched from the same config, then leases and funds them.
func (l *Launcher) RunAllychains(ctx context.Context, config *network.Config) (*Result, error) {
	r := l.newRun(config)
	if err := r.prepare(ctx); err != nil {
		return nil, err
	}
	if err := r.launchAllychains(ctx); err != nil {
		return nil, err
	}
	return r.done(), nil
}

// Run launches the relay chain and then its allychains.
func (l *Launcher) Run(ctx context.Context, config *network.Config) (*Result, error) {
	r := l.newRun(config)
	if err := r.prepare(ctx); err != nil {
		return nil, err
	}
	if err := r.step(StateBuildingRelaySpec, func() error { return r.buildRelaySpec(ctx) }); err != nil {
		return nil, err
	}
	if err := r.step(StateLaunchingRelayNodes, func() error { return r.launchRelayNodes(ctx) }); err != nil {
		return nil, err
	}
	if err := r.launchAllychains(ctx); err != nil {
		return nil, err
	}
	return r.done(), nil
}

// run holds the state of one launch.
type run struct {
	*Launcher
	config   *network.Config
	registry *chainspec.Registry
	resolver *resolver
	result   Result
}

func (l *Launcher) newRun(config *network.Config) *run {
	return &run{
		Launcher: l,
		config:   config,
		registry: chainspec.NewRegistry(),
		resolver: newResolver(l.log, l.tool),
	}
}

// step runs [f] in [state] and wraps its error.
func (r *run) step(state State, f func() error) error {
	start := time.Now()
	err := f()
	r.metrics.observeState(state, time.Since(start))
	if err != nil {
		return &LaunchError{State: state, Err: err}
	}
	return nil
}

// prepare validates the config and resolves the allychain ids.
func (r *run) prepare(ctx context.Context) error {
	if err := r.step(StateValidating, func() error {
		if !network.Check(r.log, r.config) {
			return &configError{err: r.config.Validate()}
		}
		return nil
	}); err != nil {
		return err
	}
	return r.step(StateResolvingIdentifiers, func() error { return r.resolveIdentifiers(ctx) })
}

func (r *run) done() *Result {
	ux.Print(r.log, "🚀 AXIA LAUNCH COMPLETE 🚀")
	return &r.result
}

func (r *run) binPath(bin string) string {
	return utils.ResolvePath(r.configDir, bin)
}

func (r *run) relaySpecPaths() chainspec.Paths {
	return chainspec.RelaySpecPaths(r.specDir, r.config.Relaychain.Chain)
}

func (r *run) resolveIdentifiers(ctx context.Context) error {
	ux.Print(r.log, "🧹 resolving allychain ids...")
	for _, allychain := range r.config.Allychains {
		if allychain.ID != "" {
			allychain.ResolvedID = allychain.ID.String()
			continue
		}
		bin := r.binPath(allychain.Bin)
		if err := utils.CheckExecPath(r.fs, bin); err != nil {
			return fmt.Errorf("allychain binary: %w", err)
		}
		id, err := r.resolver.resolve(ctx, bin, allychain.Chain)
		if err != nil {
			return fmt.Errorf("couldn't read allychain id of %s: %w", allychain.Bin, err)
		}
		allychain.ResolvedID = id
		ux.Print(r.log, "  ✓ read allychain id for %s: %s", allychain.Bin, id)
	}
	for _, allychain := range r.config.SimpleAllychains {
		allychain.ResolvedID = allychain.ID.String()
	}
	return nil
}

// specReused reports whether a build with [reuse] keeps the raw spec at [raw].
func (r *run) specReused(raw string) bool {
	if !r.config.ReuseChainSpec {
		return false
	}
	exists, err := utils.FileExists(r.fs, raw)
	return err == nil && exists
}

func (r *run) buildRelaySpec(ctx context.Context) error {
	relay := r.config.Relaychain
	bin := r.binPath(relay.Bin)
	if err := utils.CheckExecPath(r.fs, bin); err != nil {
		return fmt.Errorf("relay chain binary: %w", err)
	}

	allychains := make([]chainspec.GenesisAllychain, 0, len(r.config.Allychains)+len(r.config.SimpleAllychains))
	for _, allychain := range r.config.Allychains {
		allychains = append(allychains, chainspec.GenesisAllychain{
			Bin:   r.binPath(allychain.Bin),
			ID:    allychain.ResolvedID,
			Chain: allychain.Chain,
		})
	}
	for _, allychain := range r.config.SimpleAllychains {
		allychains = append(allychains, chainspec.GenesisAllychain{
			Bin:    r.binPath(allychain.Bin),
			ID:     allychain.ResolvedID,
			Simple: true,
		})
	}

	paths := r.relaySpecPaths()
	reused := r.specReused(paths.Raw)
	registered := r.registry.Len()
	raw, err := r.pipeline.Build(ctx, chainspec.BuildOptions{
		Bin:          bin,
		Chain:        relay.Chain,
		Paths:        paths,
		Reuse:        r.config.ReuseChainSpec,
		Genesis:      relay.Genesis,
		Allychains:   allychains,
		HrmpChannels: r.config.HrmpChannels,
		Registry:     r.registry,
		Nodes:        relay.Nodes,
	})
	if err != nil {
		return err
	}
	r.countSpecBuild("relay", reused)
	r.metrics.allychainsRegistered.Add(float64(r.registry.Len() - registered))
	r.result.RelaySpec = raw
	return nil
}

func (r *run) launchRelayNodes(ctx context.Context) error {
	relay := r.config.Relaychain
	bin := r.binPath(relay.Bin)
	for _, node := range relay.Nodes {
		// keys are missing when the chain spec was reused
		if err := utils.EnsureNodeKey(node); err != nil {
			return err
		}
		ux.Print(r.log, "starting relay chain node %s... ws port: %d, rpc port: %d, port: %d",
			node.Name, node.WSPort, node.RPCPort, node.Port)
		proc, err := r.nodes.StartNode(ctx, local.NodeOptions{
			Bin:      bin,
			Name:     node.Name,
			WSPort:   node.WSPort,
			RPCPort:  node.RPCPort,
			Port:     node.Port,
			NodeKey:  node.NodeKey,
			Spec:     r.result.RelaySpec,
			BasePath: node.BasePath,
			Flags:    node.Flags.Args(),
		})
		if err != nil {
			return err
		}
		r.started("validator", proc)
	}
	return nil
}

// launchAllychains connects to the first relay chain node, starts every
// allychain and funds it. The connection is closed on return.
func (r *run) launchAllychains(ctx context.Context) (err error) {
	var client rpc.Client
	if err := r.step(StateConnectingRelay, func() error {
		var err error
		client, err = r.connectRelay(ctx)
		return err
	}); err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("couldn't close relay chain connection: %w", closeErr))
		}
	}()

	for _, allychain := range r.config.Allychains {
		if err := r.launchAllychain(ctx, client, allychain); err != nil {
			return err
		}
	}
	for _, allychain := range r.config.SimpleAllychains {
		if err := r.launchSimpleAllychain(ctx, client, allychain); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) connectRelay(ctx context.Context) (rpc.Client, error) {
	relay := r.config.Relaychain
	if err := utils.CheckExecPath(r.fs, r.binPath(relay.Bin)); err != nil {
		return nil, fmt.Errorf("relay chain binary: %w", err)
	}
	if r.result.RelaySpec == "" {
		raw := r.relaySpecPaths().Raw
		exists, err := utils.FileExists(r.fs, raw)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("relay chain raw spec: %w: %s", utils.ErrNotExists, raw)
		}
		r.result.RelaySpec = raw
	}
	typeDefs, err := r.config.LoadTypeDefs(r.fs)
	if err != nil {
		return nil, err
	}
	return r.dial(ctx, relay.Nodes[0].WSPort, typeDefs)
}

func (r *run) launchAllychain(ctx context.Context, client rpc.Client, allychain *network.AllychainConfig) error {
	bin := r.binPath(allychain.Bin)
	chain := allychain.Chain

	if err := r.step(StateBuildingAllychainSpec, func() error {
		if err := utils.CheckExecPath(r.fs, bin); err != nil {
			return fmt.Errorf("allychain binary: %w", err)
		}
		if allychain.Chain == "" {
			if r.config.ReuseChainSpec {
				r.log.Warn("`reuseChainSpec` flag enabled, you need to specify `chain` to take effect",
					zap.String("allychain-id", allychain.ResolvedID),
				)
			}
			return nil
		}
		paths := chainspec.AllychainSpecPaths(r.specDir, allychain.Chain)
		reused := r.specReused(paths.Raw)
		raw, err := r.pipeline.Build(ctx, chainspec.BuildOptions{
			Bin:   bin,
			Chain: allychain.Chain,
			Paths: paths,
			Reuse: r.config.ReuseChainSpec,
			Nodes: allychain.Nodes,
		})
		if err != nil {
			return err
		}
		r.countSpecBuild("allychain", reused)
		chain = raw
		return nil
	}); err != nil {
		return err
	}

	account, err := utils.AllychainAccount(allychain.ResolvedID)
	if err != nil {
		return &LaunchError{State: StateLaunchingAllychainNodes, Err: err}
	}
	if err := r.step(StateLaunchingAllychainNodes, func() error {
		for _, node := range allychain.Nodes {
			if err := utils.EnsureNodeKey(node); err != nil {
				return err
			}
			ux.Print(r.log, "starting a collator for allychain %s: %s, port: %d, ws port: %d, rpc port: %d",
				allychain.ResolvedID, account, node.Port, node.WSPort, node.RPCPort)
			proc, err := r.nodes.StartCollator(ctx, local.CollatorOptions{
				Bin:                  bin,
				AllychainID:          allychain.ResolvedID,
				Name:                 node.Name,
				WSPort:               node.WSPort,
				RPCPort:              node.RPCPort,
				Port:                 node.Port,
				NodeKey:              node.NodeKey,
				Chain:                chain,
				BasePath:             node.BasePath,
				Flags:                node.Flags.Args(),
				SkipIDArg:            allychain.ID == "",
				OnlyOneAllychainNode: len(allychain.Nodes) == 1,
				RelaySpec:            r.result.RelaySpec,
			})
			if err != nil {
				return err
			}
			r.started("collator", proc)
		}
		return nil
	}); err != nil {
		return err
	}

	return r.step(StatePostLaunchFunding, func() error {
		err := client.ExtendLeasePeriod(ctx, allychain.ResolvedID, 0, r.config.Finalization)
		r.metrics.transaction("force_lease", err)
		if err != nil {
			return fmt.Errorf("couldn't extend lease period of allychain %s: %w", allychain.ResolvedID, err)
		}
		return r.fund(ctx, client, account, allychain.Balance.String())
	})
}

func (r *run) launchSimpleAllychain(ctx context.Context, client rpc.Client, allychain *network.SimpleAllychainConfig) error {
	var account string
	if err := r.step(StateLaunchingSimpleAllychains, func() error {
		bin := r.binPath(allychain.Bin)
		if err := utils.CheckExecPath(r.fs, bin); err != nil {
			return fmt.Errorf("allychain binary: %w", err)
		}
		port, err := strconv.ParseUint(allychain.Port.String(), 10, 16)
		if err != nil {
			return fmt.Errorf("invalid port %q of allychain %s: %w", allychain.Port, allychain.ResolvedID, err)
		}
		account, err = utils.AllychainAccount(allychain.ResolvedID)
		if err != nil {
			return err
		}
		ux.Print(r.log, "starting allychain %s: %s", allychain.ResolvedID, account)
		proc, err := r.nodes.StartSimpleCollator(ctx, local.SimpleCollatorOptions{
			Bin:         bin,
			AllychainID: allychain.ResolvedID,
			Port:        uint16(port),
			RelaySpec:   r.result.RelaySpec,
		})
		if err != nil {
			return err
		}
		r.started("simple-collator", proc)
		return nil
	}); err != nil {
		return err
	}
	return r.step(StatePostLaunchFunding, func() error {
		return r.fund(ctx, client, account, allychain.Balance.String())
	})
}

// fund sets the balance of [account] unless [balance] is empty or zero.
func (r *run) fund(ctx context.Context, client rpc.Client, account string, amount string) error {
	if amount == "" || amount == "0" {
		return nil
	}
	err := client.SetBalance(ctx, account, amount, r.config.Finalization)
	r.metrics.transaction("set_balance", err)
	if err != nil {
		return fmt.Errorf("couldn't set balance of %s: %w", account, err)
	}
	return nil
}

func (r *run) countSpecBuild(kind string, reused bool) {
	result := "built"
	if reused {
		result = "reused"
	}
	r.metrics.specBuilds.WithLabelValues(kind, result).Inc()
}

func (r *run) started(role string, proc local.NodeProcess) {
	r.result.Processes = append(r.result.Processes, proc)
	r.metrics.nodesStarted.WithLabelValues(role).Inc()
}
