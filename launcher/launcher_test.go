package launcher_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/axia-network/axia-launch/chainspec"
	"github.com/axia-network/axia-launch/launcher"
	"github.com/axia-network/axia-launch/network"
	"github.com/axia-network/axia-launch/utils"
	ginkgo "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	configDir = "/launch"
	specDir   = "/specs"
	relayRaw  = "/specs/rococo-local.relay.raw.json"
)

func testConfig() *network.Config {
	return &network.Config{
		Relaychain: &network.RelayChainConfig{
			Bin:   "bin/axia",
			Chain: "rococo-local",
			Nodes: []*network.NodeConfig{
				{Name: "alice", WSPort: 9944, Port: 30444},
				{Name: "bob", WSPort: 9955, Port: 30555},
			},
		},
		Allychains: []*network.AllychainConfig{
			{
				Bin:     "bin/allychain",
				ID:      "2000",
				Balance: "1000000",
				Nodes: []*network.NodeConfig{
					{WSPort: 9988, Port: 31200, Flags: network.NewFlags("--", "--execution=wasm")},
				},
			},
		},
	}
}

var _ = ginkgo.Describe("[Launcher]", func() {
	var (
		fs       afero.Fs
		tool     *fakeTool
		nodes    *fakeNodes
		client   *fakeClient
		dialer   *fakeDialer
		registry *prometheus.Registry
		l        *launcher.Launcher
		ctx      context.Context
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		fs = afero.NewMemMapFs()
		for _, bin := range []string{"bin/axia", "bin/allychain", "bin/adder"} {
			gomega.Ω(afero.WriteFile(fs, configDir+"/"+bin, []byte("#!/bin/sh"), 0o755)).Should(gomega.Succeed())
		}
		tool = &fakeTool{fs: fs}
		nodes = &fakeNodes{}
		client = &fakeClient{}
		dialer = &fakeDialer{client: client}
		registry = prometheus.NewRegistry()

		var err error
		l, err = launcher.New(launcher.Config{
			Log:        zap.NewNop(),
			Fs:         fs,
			ConfigDir:  configDir,
			SpecDir:    specDir,
			Tool:       tool,
			Nodes:      nodes,
			Dial:       dialer.dial,
			Registerer: registry,
		})
		gomega.Ω(err).Should(gomega.BeNil())
	})

	ginkgo.Context("relay launch", func() {
		ginkgo.It("builds the relay spec before starting the relay nodes", func() {
			config := testConfig()
			result, err := l.RunRelay(ctx, config)
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(result.RelaySpec).Should(gomega.Equal(relayRaw))
			gomega.Ω(result.Processes).Should(gomega.HaveLen(2))

			gomega.Ω(tool.buildCalls).Should(gomega.Equal([]string{"rococo-local"}))
			gomega.Ω(tool.rawCalls).Should(gomega.Equal([]string{"/specs/rococo-local.relay.json"}))
			gomega.Ω(nodes.started).Should(gomega.Equal([]string{"node:alice", "node:bob"}))

			// nodes are started with the key their boot node address was derived from
			raw, err := utils.ReadJSON(fs, relayRaw)
			gomega.Ω(err).Should(gomega.BeNil())
			bootNodes := raw["bootNodes"].([]interface{})
			gomega.Ω(bootNodes).Should(gomega.HaveLen(2))
			for i, opts := range nodes.nodes {
				gomega.Ω(opts.Spec).Should(gomega.Equal(relayRaw))
				gomega.Ω(opts.Bin).Should(gomega.Equal("/launch/bin/axia"))
				addr, err := utils.BootNodeAddr(opts.Port, opts.NodeKey)
				gomega.Ω(err).Should(gomega.BeNil())
				gomega.Ω(bootNodes[i]).Should(gomega.Equal(addr))
			}
			gomega.Ω(dialer.wsPorts).Should(gomega.BeEmpty())
		})

		ginkgo.It("registers an allychain listed twice only once", func() {
			config := testConfig()
			config.Relaychain.Nodes = append(config.Relaychain.Nodes, &network.NodeConfig{Name: "charlie", WSPort: 9966, Port: 30666})
			config.SimpleAllychains = []*network.SimpleAllychainConfig{
				{Bin: "bin/adder", ID: "2000", Port: "31300"},
				{Bin: "bin/adder", ID: "200", Port: "31301"},
			}
			_, err := l.RunRelay(ctx, config)
			gomega.Ω(err).Should(gomega.BeNil())

			gomega.Ω(tool.exportCalls).Should(gomega.Equal([]chainspec.ExportOptions{
				{AllychainID: "2000"},
				{},
			}))
			raw, err := utils.ReadJSON(fs, relayRaw)
			gomega.Ω(err).Should(gomega.BeNil())
			runtime := raw["genesis"].(map[string]interface{})["runtime"].(map[string]interface{})["runtime_genesis_config"].(map[string]interface{})
			paras := runtime["paras"].(map[string]interface{})["paras"].([]interface{})
			gomega.Ω(paras).Should(gomega.HaveLen(2))
			gomega.Ω(paras[0].([]interface{})[0]).Should(gomega.Equal(json.Number("2000")))
			gomega.Ω(paras[1].([]interface{})[0]).Should(gomega.Equal(json.Number("200")))

			gomega.Ω(testutil.GatherAndCompare(registry, strings.NewReader(`
# HELP axia_launch_allychains_registered_total Count of allychains written into a relay chain genesis.
# TYPE axia_launch_allychains_registered_total counter
axia_launch_allychains_registered_total 2
`), "axia_launch_allychains_registered_total")).Should(gomega.Succeed())
		})

		ginkgo.It("reuses an existing raw spec without generating anything", func() {
			gomega.Ω(afero.WriteFile(fs, relayRaw, []byte(`{"bootNodes": []}`), 0o644)).Should(gomega.Succeed())
			config := testConfig()
			config.ReuseChainSpec = true

			result, err := l.RunRelay(ctx, config)
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(result.RelaySpec).Should(gomega.Equal(relayRaw))
			gomega.Ω(tool.buildCalls).Should(gomega.BeEmpty())
			gomega.Ω(tool.rawCalls).Should(gomega.BeEmpty())
			gomega.Ω(tool.exportCalls).Should(gomega.BeEmpty())
			gomega.Ω(nodes.started).Should(gomega.HaveLen(2))
			for _, opts := range nodes.nodes {
				gomega.Ω(opts.NodeKey).ShouldNot(gomega.BeEmpty())
			}

			gomega.Ω(testutil.GatherAndCompare(registry, strings.NewReader(`
# HELP axia_launch_spec_builds_total Count of chain specs built or reused.
# TYPE axia_launch_spec_builds_total counter
axia_launch_spec_builds_total{kind="relay",result="reused"} 1
`), "axia_launch_spec_builds_total")).Should(gomega.Succeed())
		})

		ginkgo.It("aborts an invalid config before creating anything", func() {
			config := testConfig()
			config.Relaychain.Nodes = config.Relaychain.Nodes[:1]

			_, err := l.RunRelay(ctx, config)
			var launchErr *launcher.LaunchError
			gomega.Ω(errors.As(err, &launchErr)).Should(gomega.BeTrue())
			gomega.Ω(launchErr.State).Should(gomega.Equal(launcher.StateValidating))
			gomega.Ω(errors.Is(err, launcher.ErrInvalidConfig)).Should(gomega.BeTrue())
			gomega.Ω(errors.Is(err, network.ErrNotEnoughRelayNodes)).Should(gomega.BeTrue())

			gomega.Ω(tool.buildCalls).Should(gomega.BeEmpty())
			gomega.Ω(nodes.started).Should(gomega.BeEmpty())
			exists, err := afero.DirExists(fs, specDir)
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(exists).Should(gomega.BeFalse())
		})

		ginkgo.It("aborts a nil config", func() {
			_, err := l.Run(ctx, nil)
			gomega.Ω(errors.Is(err, network.ErrMissingConfig)).Should(gomega.BeTrue())
		})

		ginkgo.It("names the missing relay chain binary", func() {
			config := testConfig()
			config.Relaychain.Bin = "bin/missing"

			_, err := l.RunRelay(ctx, config)
			var launchErr *launcher.LaunchError
			gomega.Ω(errors.As(err, &launchErr)).Should(gomega.BeTrue())
			gomega.Ω(launchErr.State).Should(gomega.Equal(launcher.StateBuildingRelaySpec))
			gomega.Ω(errors.Is(err, utils.ErrNotExists)).Should(gomega.BeTrue())
			gomega.Ω(err.Error()).Should(gomega.ContainSubstring("/launch/bin/missing"))
			gomega.Ω(tool.buildCalls).Should(gomega.BeEmpty())
		})

		ginkgo.It("never finalizes a spec when an export fails", func() {
			tool.exportErr = errors.New("unknown chain")

			_, err := l.RunRelay(ctx, testConfig())
			var stageErr *chainspec.StageError
			gomega.Ω(errors.As(err, &stageErr)).Should(gomega.BeTrue())
			gomega.Ω(stageErr.Stage).Should(gomega.Equal(chainspec.StageRegisterAllychains))
			gomega.Ω(tool.rawCalls).Should(gomega.BeEmpty())
			gomega.Ω(nodes.started).Should(gomega.BeEmpty())
			exists, err := afero.Exists(fs, relayRaw)
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(exists).Should(gomega.BeFalse())
		})

		ginkgo.It("resolves a missing allychain id once per binary and chain", func() {
			config := testConfig()
			config.Relaychain.Nodes = append(config.Relaychain.Nodes, &network.NodeConfig{Name: "charlie", WSPort: 9966, Port: 30666})
			config.Allychains[0].ID = ""
			config.Allychains = append(config.Allychains, &network.AllychainConfig{
				Bin:   "bin/allychain",
				Nodes: []*network.NodeConfig{{WSPort: 9989, Port: 31201}},
			})

			_, err := l.RunRelay(ctx, config)
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(tool.idCalls).Should(gomega.Equal(1))
			for _, allychain := range config.Allychains {
				gomega.Ω(allychain.ResolvedID).Should(gomega.Equal("1000"))
			}
			// the resolved id is exported like a given one
			gomega.Ω(tool.exportCalls).Should(gomega.Equal([]chainspec.ExportOptions{{AllychainID: "1000"}}))
		})
	})

	ginkgo.Context("allychain launch", func() {
		ginkgo.BeforeEach(func() {
			gomega.Ω(afero.WriteFile(fs, relayRaw, []byte(`{"bootNodes": []}`), 0o644)).Should(gomega.Succeed())
		})

		ginkgo.It("funds the allychain account after starting its collators", func() {
			config := testConfig()
			config.Types = json.RawMessage(`{"AllychainId": "u32"}`)

			result, err := l.RunAllychains(ctx, config)
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(result.RelaySpec).Should(gomega.Equal(relayRaw))
			gomega.Ω(result.Processes).Should(gomega.HaveLen(1))

			gomega.Ω(dialer.wsPorts).Should(gomega.Equal([]uint16{9944}))
			gomega.Ω(dialer.typeDefs).Should(gomega.HaveKey("AllychainId"))

			gomega.Ω(nodes.collators).Should(gomega.HaveLen(1))
			collator := nodes.collators[0]
			gomega.Ω(collator.AllychainID).Should(gomega.Equal("2000"))
			gomega.Ω(collator.RelaySpec).Should(gomega.Equal(relayRaw))
			gomega.Ω(collator.SkipIDArg).Should(gomega.BeFalse())
			gomega.Ω(collator.OnlyOneAllychainNode).Should(gomega.BeTrue())
			gomega.Ω(collator.Chain).Should(gomega.BeEmpty())
			gomega.Ω(collator.NodeKey).ShouldNot(gomega.BeEmpty())
			gomega.Ω(collator.Flags).Should(gomega.Equal([]string{"--", "--execution=wasm"}))

			account, err := utils.AllychainAccount("2000")
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(account).Should(gomega.Equal("5EGSiAZ8bLxnmPR2cX2TQJcHYjKMMnCAaU5bqdg1PhBW79Bd"))
			gomega.Ω(client.calls).Should(gomega.Equal([]string{
				"lease:2000:0",
				"balance:" + account + ":1000000",
			}))
			gomega.Ω(client.finalization).Should(gomega.Equal([]bool{false, false}))
			gomega.Ω(client.closed).Should(gomega.BeTrue())
			gomega.Ω(tool.buildCalls).Should(gomega.BeEmpty())
		})

		ginkgo.It("builds the allychain spec when a chain is given", func() {
			config := testConfig()
			config.Finalization = true
			config.Allychains[0].Chain = "dev"
			config.Allychains[0].Balance = ""

			_, err := l.RunAllychains(ctx, config)
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(tool.buildCalls).Should(gomega.Equal([]string{"dev"}))
			gomega.Ω(tool.rawCalls).Should(gomega.Equal([]string{"/specs/dev.ally.json"}))
			gomega.Ω(nodes.collators[0].Chain).Should(gomega.Equal("/specs/dev.ally.raw.json"))

			raw, err := utils.ReadJSON(fs, "/specs/dev.ally.raw.json")
			gomega.Ω(err).Should(gomega.BeNil())
			addr, err := utils.BootNodeAddr(31200, nodes.collators[0].NodeKey)
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(raw["bootNodes"]).Should(gomega.Equal([]interface{}{addr}))

			// no balance means no funding
			gomega.Ω(client.calls).Should(gomega.Equal([]string{"lease:2000:0"}))
			gomega.Ω(client.finalization).Should(gomega.Equal([]bool{true}))
		})

		ginkgo.It("reuses an existing allychain spec", func() {
			gomega.Ω(afero.WriteFile(fs, "/specs/dev.ally.raw.json", []byte(`{}`), 0o644)).Should(gomega.Succeed())
			config := testConfig()
			config.ReuseChainSpec = true
			config.Allychains[0].Chain = "dev"

			_, err := l.RunAllychains(ctx, config)
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(tool.buildCalls).Should(gomega.BeEmpty())
			gomega.Ω(nodes.collators[0].Chain).Should(gomega.Equal("/specs/dev.ally.raw.json"))
		})

		ginkgo.It("rejects an empty allychain node before starting anything", func() {
			config := testConfig()
			config.Allychains[0].Nodes = append(config.Allychains[0].Nodes, nil)

			_, err := l.RunAllychains(ctx, config)
			var launchErr *launcher.LaunchError
			gomega.Ω(errors.As(err, &launchErr)).Should(gomega.BeTrue())
			gomega.Ω(launchErr.State).Should(gomega.Equal(launcher.StateValidating))
			gomega.Ω(errors.Is(err, network.ErrEmptyAllychainNode)).Should(gomega.BeTrue())
			gomega.Ω(nodes.started).Should(gomega.BeEmpty())
			gomega.Ω(dialer.wsPorts).Should(gomega.BeEmpty())
		})

		ginkgo.It("rejects an empty simple allychain before starting anything", func() {
			config := testConfig()
			config.SimpleAllychains = []*network.SimpleAllychainConfig{nil}

			_, err := l.RunAllychains(ctx, config)
			var launchErr *launcher.LaunchError
			gomega.Ω(errors.As(err, &launchErr)).Should(gomega.BeTrue())
			gomega.Ω(launchErr.State).Should(gomega.Equal(launcher.StateValidating))
			gomega.Ω(errors.Is(err, network.ErrEmptySimpleAllychain)).Should(gomega.BeTrue())
			gomega.Ω(nodes.started).Should(gomega.BeEmpty())
		})

		ginkgo.It("reads type definitions from a file on the launch filesystem", func() {
			gomega.Ω(afero.WriteFile(fs, "/launch/types.json", []byte(`{"Header": {"number": "u64"}}`), 0o644)).Should(gomega.Succeed())
			config := testConfig()
			config.Types = json.RawMessage(`"/launch/types.json"`)

			_, err := l.RunAllychains(ctx, config)
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(dialer.typeDefs).Should(gomega.HaveKey("Header"))
		})

		ginkgo.It("launches and funds simple allychains", func() {
			config := testConfig()
			config.SimpleAllychains = []*network.SimpleAllychainConfig{
				{Bin: "bin/adder", ID: "200", Port: "31300", Balance: "5000"},
			}

			_, err := l.RunAllychains(ctx, config)
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(nodes.started).Should(gomega.Equal([]string{"collator:2000", "simple:200"}))
			gomega.Ω(nodes.simple[0].Port).Should(gomega.Equal(uint16(31300)))
			gomega.Ω(nodes.simple[0].RelaySpec).Should(gomega.Equal(relayRaw))

			account, err := utils.AllychainAccount("200")
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(client.calls[len(client.calls)-1]).Should(gomega.Equal("balance:" + account + ":5000"))
			gomega.Ω(client.calls).Should(gomega.HaveLen(3))
		})

		ginkgo.It("requires the relay chain raw spec", func() {
			gomega.Ω(fs.Remove(relayRaw)).Should(gomega.Succeed())

			_, err := l.RunAllychains(ctx, testConfig())
			var launchErr *launcher.LaunchError
			gomega.Ω(errors.As(err, &launchErr)).Should(gomega.BeTrue())
			gomega.Ω(launchErr.State).Should(gomega.Equal(launcher.StateConnectingRelay))
			gomega.Ω(errors.Is(err, utils.ErrNotExists)).Should(gomega.BeTrue())
			gomega.Ω(err.Error()).Should(gomega.ContainSubstring(relayRaw))
			gomega.Ω(dialer.wsPorts).Should(gomega.BeEmpty())
		})

		ginkgo.It("names the missing allychain binary", func() {
			config := testConfig()
			config.Allychains[0].Bin = "bin/gone"

			_, err := l.RunAllychains(ctx, config)
			var launchErr *launcher.LaunchError
			gomega.Ω(errors.As(err, &launchErr)).Should(gomega.BeTrue())
			gomega.Ω(launchErr.State).Should(gomega.Equal(launcher.StateBuildingAllychainSpec))
			gomega.Ω(err.Error()).Should(gomega.ContainSubstring("/launch/bin/gone"))
			gomega.Ω(nodes.started).Should(gomega.BeEmpty())
			gomega.Ω(client.closed).Should(gomega.BeTrue())
		})

		ginkgo.It("reports transaction failures and closes the connection", func() {
			client.txErr = errors.New("bad origin")
			client.closeErr = errors.New("connection reset")

			_, err := l.RunAllychains(ctx, testConfig())
			var launchErr *launcher.LaunchError
			gomega.Ω(errors.As(err, &launchErr)).Should(gomega.BeTrue())
			gomega.Ω(launchErr.State).Should(gomega.Equal(launcher.StatePostLaunchFunding))
			gomega.Ω(errors.Is(err, client.txErr)).Should(gomega.BeTrue())
			gomega.Ω(err.Error()).Should(gomega.ContainSubstring("connection reset"))
			gomega.Ω(client.calls).Should(gomega.Equal([]string{"lease:2000:0"}))
			gomega.Ω(client.closed).Should(gomega.BeTrue())
		})

		ginkgo.It("stops at the first node that fails to start", func() {
			nodes.err = errors.New("node not ready")

			_, err := l.RunAllychains(ctx, testConfig())
			var launchErr *launcher.LaunchError
			gomega.Ω(errors.As(err, &launchErr)).Should(gomega.BeTrue())
			gomega.Ω(launchErr.State).Should(gomega.Equal(launcher.StateLaunchingAllychainNodes))
			gomega.Ω(client.calls).Should(gomega.BeEmpty())
			gomega.Ω(client.closed).Should(gomega.BeTrue())
		})
	})

	ginkgo.Context("full launch", func() {
		ginkgo.It("starts the relay chain before the allychains", func() {
			config := testConfig()
			config.SimpleAllychains = []*network.SimpleAllychainConfig{
				{Bin: "bin/adder", ID: "200", Port: "31300"},
			}

			result, err := l.Run(ctx, config)
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(result.Processes).Should(gomega.HaveLen(4))
			gomega.Ω(nodes.started).Should(gomega.Equal([]string{"node:alice", "node:bob", "collator:2000", "simple:200"}))
			gomega.Ω(tool.buildCalls).Should(gomega.Equal([]string{"rococo-local"}))
			gomega.Ω(tool.exportCalls).Should(gomega.HaveLen(2))
			gomega.Ω(client.calls).Should(gomega.HaveLen(2))

			gomega.Ω(testutil.GatherAndCompare(registry, strings.NewReader(`
# HELP axia_launch_nodes_started_total Count of node processes started.
# TYPE axia_launch_nodes_started_total counter
axia_launch_nodes_started_total{role="collator"} 1
axia_launch_nodes_started_total{role="simple-collator"} 1
axia_launch_nodes_started_total{role="validator"} 2
`), "axia_launch_nodes_started_total")).Should(gomega.Succeed())
		})

		ginkgo.It("keeps registrations separate between launches", func() {
			_, err := l.RunRelay(ctx, testConfig())
			gomega.Ω(err).Should(gomega.BeNil())
			_, err = l.RunRelay(ctx, testConfig())
			gomega.Ω(err).Should(gomega.BeNil())
			gomega.Ω(tool.exportCalls).Should(gomega.HaveLen(2))
		})
	})
})
