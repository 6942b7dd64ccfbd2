package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/axia-network/axia-launch/utils"
	"go.uber.org/zap"
)

const (
	DefaultReadyTimeout = 2 * time.Minute

	readyPollInterval = 500 * time.Millisecond
	stopTimeout       = 10 * time.Second
)

var (
	ErrNodeNotReady = errors.New("node not ready")
	ErrNodeExited   = errors.New("node exited before it was ready")
)

var _ NodeLauncher = (*localLauncher)(nil)

// NodeLauncher starts chain binaries and returns once they accept connections.
// A node that does not get ready is stopped before the error is returned.
type NodeLauncher interface {
	StartNode(ctx context.Context, opts NodeOptions) (NodeProcess, error)
	StartCollator(ctx context.Context, opts CollatorOptions) (NodeProcess, error)
	StartSimpleCollator(ctx context.Context, opts SimpleCollatorOptions) (NodeProcess, error)
}

// Config of a NodeLauncher.
type Config struct {
	// Directory node logs are written to. Defaults to the working directory.
	LogDir string
	// Bound on the time a node takes to accept connections.
	// Defaults to [DefaultReadyTimeout].
	ReadyTimeout time.Duration
}

type localLauncher struct {
	log          *zap.Logger
	logDir       string
	readyTimeout time.Duration
	// Set in tests that serve a node's endpoint themselves.
	skipPortCheck bool
}

// NewNodeLauncher returns a NodeLauncher running binaries on this host.
// Launched processes outlive the launcher.
func NewNodeLauncher(log *zap.Logger, config Config) NodeLauncher {
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = DefaultReadyTimeout
	}
	return &localLauncher{
		log:          log,
		logDir:       config.LogDir,
		readyTimeout: config.ReadyTimeout,
	}
}

func (ln *localLauncher) StartNode(ctx context.Context, opts NodeOptions) (NodeProcess, error) {
	name := logName(opts.Name, opts.WSPort)
	ln.log.Info("starting relay chain node",
		zap.String("name", opts.Name),
		zap.Uint16("ws-port", opts.WSPort),
		zap.Uint16("rpc-port", opts.RPCPort),
		zap.Uint16("port", opts.Port),
	)
	return ln.start(ctx, startRequest{
		name:  name,
		bin:   opts.Bin,
		args:  opts.args(),
		ports: []uint16{opts.Port, opts.WSPort, opts.RPCPort},
		ready: wsProbe(opts.WSPort),
	})
}

func (ln *localLauncher) StartCollator(ctx context.Context, opts CollatorOptions) (NodeProcess, error) {
	name := logName(opts.Name, opts.WSPort)
	ln.log.Info("starting collator",
		zap.String("allychain-id", opts.AllychainID),
		zap.String("name", opts.Name),
		zap.Uint16("ws-port", opts.WSPort),
		zap.Uint16("rpc-port", opts.RPCPort),
		zap.Uint16("port", opts.Port),
	)
	return ln.start(ctx, startRequest{
		name:  name,
		bin:   opts.Bin,
		args:  opts.args(),
		ports: []uint16{opts.Port, opts.WSPort, opts.RPCPort},
		ready: wsProbe(opts.WSPort),
	})
}

func (ln *localLauncher) StartSimpleCollator(ctx context.Context, opts SimpleCollatorOptions) (NodeProcess, error) {
	ln.log.Info("starting simple collator",
		zap.String("allychain-id", opts.AllychainID),
		zap.Uint16("port", opts.Port),
	)
	return ln.start(ctx, startRequest{
		name:  "allychain-" + opts.AllychainID,
		bin:   opts.Bin,
		args:  opts.args(),
		ports: []uint16{opts.Port},
		ready: tcpProbe(opts.Port),
	})
}

type startRequest struct {
	name  string
	bin   string
	args  []string
	ports []uint16
	ready probe
}

func (ln *localLauncher) start(ctx context.Context, req startRequest) (NodeProcess, error) {
	if !ln.skipPortCheck {
		if err := utils.CheckPortsFree(req.ports...); err != nil {
			return nil, fmt.Errorf("node %q: %w", req.name, err)
		}
	}
	logPath := filepath.Join(ln.logDir, req.name+".log")
	logFile, err := createLogFile(logPath)
	if err != nil {
		return nil, fmt.Errorf("couldn't create log file for node %q: %w", req.name, err)
	}
	// The child keeps its own descriptor.
	defer logFile.Close()

	// Not tied to [ctx]: the node must keep running after the launch returns.
	cmd := exec.Command(req.bin, req.args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	ln.log.Debug("spawning node",
		zap.String("name", req.name),
		zap.String("cmd", req.bin+" "+strings.Join(req.args, " ")),
		zap.String("log", logPath),
	)
	proc, err := startNodeProcess(req.name, logPath, cmd)
	if err != nil {
		return nil, err
	}
	if err := ln.waitReady(ctx, proc, req.ready); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if stopErr := proc.Stop(stopCtx); stopErr != nil {
			ln.log.Warn("couldn't stop node", zap.String("name", req.name), zap.Error(stopErr))
		}
		return nil, fmt.Errorf("node %q (log %s): %w", req.name, logPath, err)
	}
	ln.log.Info("node ready", zap.String("name", req.name), zap.Int("pid", proc.Pid()))
	return proc, nil
}

// waitReady polls [ready] until it succeeds, the process exits,
// [ctx] is cancelled or the ready timeout elapses.
func (ln *localLauncher) waitReady(ctx context.Context, proc *nodeProcess, ready probe) error {
	ctx, cancel := context.WithTimeout(ctx, ln.readyTimeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		err := ready(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-proc.done:
			return fmt.Errorf("%w: %v", ErrNodeExited, proc.Wait())
		case <-ctx.Done():
			return fmt.Errorf("%w after %s: %v", ErrNodeNotReady, ln.readyTimeout, err)
		case <-ticker.C:
		}
	}
}

func logName(name string, wsPort uint16) string {
	if name != "" {
		return strings.ToLower(name)
	}
	return fmt.Sprintf("%d", wsPort)
}

// createLogFile creates or truncates the file at [path] and its directory.
func createLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	return os.Create(path)
}
