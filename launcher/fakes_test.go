package launcher_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/axia-network/axia-launch/chainspec"
	"github.com/axia-network/axia-launch/local"
	"github.com/axia-network/axia-launch/network/node/status"
	"github.com/axia-network/axia-launch/rpc"
	"github.com/spf13/afero"
)

const baseSpec = `{
	"name": "Local Testnet",
	"bootNodes": [],
	"genesis": {"runtime": {"runtime_genesis_config": {"paras": {"paras": []}, "hrmp": {"preopenHrmpChannels": []}}}}
}`

var (
	_ chainspec.Tool     = (*fakeTool)(nil)
	_ local.NodeLauncher = (*fakeNodes)(nil)
	_ local.NodeProcess  = (*fakeProcess)(nil)
	_ rpc.Client         = (*fakeClient)(nil)
)

type fakeTool struct {
	fs          afero.Fs
	buildCalls  []string
	rawCalls    []string
	exportCalls []chainspec.ExportOptions
	idCalls     int
	exportErr   error
}

func (f *fakeTool) BuildSpec(_ context.Context, _, chain, out string) error {
	f.buildCalls = append(f.buildCalls, chain)
	return afero.WriteFile(f.fs, out, []byte(baseSpec), 0o644)
}

func (f *fakeTool) BuildRawSpec(_ context.Context, _, spec, out string) error {
	f.rawCalls = append(f.rawCalls, spec)
	b, err := afero.ReadFile(f.fs, spec)
	if err != nil {
		return err
	}
	return afero.WriteFile(f.fs, out, b, 0o644)
}

func (f *fakeTool) ExportGenesisState(_ context.Context, _ string, opts chainspec.ExportOptions) (string, error) {
	f.exportCalls = append(f.exportCalls, opts)
	if f.exportErr != nil {
		return "", f.exportErr
	}
	return "0x00", nil
}

func (f *fakeTool) ExportGenesisWasm(context.Context, string, chainspec.ExportOptions) (string, error) {
	return "0x01", nil
}

func (f *fakeTool) AllychainID(context.Context, string, string) (string, error) {
	f.idCalls++
	return "1000", nil
}

type fakeProcess struct {
	name string
}

func (p *fakeProcess) Name() string               { return p.name }
func (p *fakeProcess) Pid() int                   { return 1 }
func (p *fakeProcess) LogPath() string            { return p.name + ".log" }
func (p *fakeProcess) Stop(context.Context) error { return nil }
func (p *fakeProcess) Wait() error                { return nil }
func (p *fakeProcess) Status() status.Status      { return status.Running }

type fakeNodes struct {
	// in start order: "node:<name>", "collator:<id>", "simple:<id>"
	started   []string
	nodes     []local.NodeOptions
	collators []local.CollatorOptions
	simple    []local.SimpleCollatorOptions
	err       error
}

func (f *fakeNodes) StartNode(_ context.Context, opts local.NodeOptions) (local.NodeProcess, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.nodes = append(f.nodes, opts)
	f.started = append(f.started, "node:"+opts.Name)
	return &fakeProcess{name: opts.Name}, nil
}

func (f *fakeNodes) StartCollator(_ context.Context, opts local.CollatorOptions) (local.NodeProcess, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.collators = append(f.collators, opts)
	f.started = append(f.started, "collator:"+opts.AllychainID)
	return &fakeProcess{name: opts.Name}, nil
}

func (f *fakeNodes) StartSimpleCollator(_ context.Context, opts local.SimpleCollatorOptions) (local.NodeProcess, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.simple = append(f.simple, opts)
	f.started = append(f.started, "simple:"+opts.AllychainID)
	return &fakeProcess{name: "allychain-" + opts.AllychainID}, nil
}

type fakeClient struct {
	// "lease:<id>:<period>" and "balance:<address>:<amount>", in submit order
	calls        []string
	finalization []bool
	txErr        error
	closeErr     error
	closed       bool
}

func (c *fakeClient) ExtendLeasePeriod(_ context.Context, allychainID string, period uint32, finalization bool) error {
	c.calls = append(c.calls, fmt.Sprintf("lease:%s:%d", allychainID, period))
	c.finalization = append(c.finalization, finalization)
	return c.txErr
}

func (c *fakeClient) SetBalance(_ context.Context, address string, amount string, finalization bool) error {
	c.calls = append(c.calls, fmt.Sprintf("balance:%s:%s", address, amount))
	c.finalization = append(c.finalization, finalization)
	return c.txErr
}

func (c *fakeClient) Close() error {
	if c.closed {
		return errors.New("closed twice")
	}
	c.closed = true
	return c.closeErr
}

type fakeDialer struct {
	client   *fakeClient
	wsPorts  []uint16
	typeDefs map[string]interface{}
}

func (d *fakeDialer) dial(_ context.Context, wsPort uint16, typeDefs map[string]interface{}) (rpc.Client, error) {
	d.wsPorts = append(d.wsPorts, wsPort)
	d.typeDefs = typeDefs
	return d.client, nil
}
