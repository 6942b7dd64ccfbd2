package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/axia-network/axia-launch/network/node/status"
	"github.com/shirou/gopsutil/process"
)

var _ NodeProcess = (*nodeProcess)(nil)

// NodeProcess is a chain binary started by a NodeLauncher.
// An interface so that tests can fake running nodes.
type NodeProcess interface {
	// Name of the node, as given to the launcher.
	Name() string
	// Pid of the running process.
	Pid() int
	// LogPath is the file the process writes its output to.
	LogPath() string
	// Sends a SIGINT to this process and returns nil once it has exited.
	// If [ctx] is cancelled first, the process and its descendants are
	// killed and [ctx.Err()] is returned.
	// Calls after the first one return nil.
	Stop(ctx context.Context) error
	// Returns when the process exits, with a non-nil error
	// when it could not run or its exit code was non-zero.
	// Every call returns the same value.
	Wait() error
	Status() status.Status
}

type nodeProcess struct {
	name    string
	logPath string
	cmd     *exec.Cmd
	// Closed once the process has been reaped.
	done chan struct{}

	lock  sync.RWMutex
	state status.Status
	// Set before [done] is closed.
	exitErr error
}

// startNodeProcess starts [cmd] and reaps it in the background.
func startNodeProcess(name, logPath string, cmd *exec.Cmd) (*nodeProcess, error) {
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("couldn't start %s: %w", cmd.Path, err)
	}
	p := &nodeProcess{
		name:    name,
		logPath: logPath,
		cmd:     cmd,
		done:    make(chan struct{}),
		state:   status.Running,
	}
	go p.reap()
	return p, nil
}

func (p *nodeProcess) reap() {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		err = fmt.Errorf("%s exited with code %d: %w", p.name, exitErr.ExitCode(), err)
	}

	p.lock.Lock()
	p.state = status.Stopped
	p.exitErr = err
	p.lock.Unlock()
	close(p.done)
}

func (p *nodeProcess) Name() string {
	return p.name
}

func (p *nodeProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *nodeProcess) LogPath() string {
	return p.logPath
}

func (p *nodeProcess) Wait() error {
	<-p.done
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.exitErr
}

func (p *nodeProcess) Stop(ctx context.Context) error {
	p.lock.Lock()
	if p.state != status.Running {
		p.lock.Unlock()
		return nil
	}
	p.state = status.Stopping
	p.lock.Unlock()

	// A failed signal means the process already exited.
	_ = p.cmd.Process.Signal(os.Interrupt)

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		if err := killTree(int32(p.cmd.Process.Pid)); err != nil {
			_ = p.cmd.Process.Kill()
		}
		return ctx.Err()
	}
}

func (p *nodeProcess) Status() status.Status {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.state
}

// killTree kills the process [pid] after its descendants.
// Collators spawn an embedded relay node that would survive its parent.
func killTree(pid int32) error {
	procs, err := process.Processes()
	if err != nil {
		return err
	}
	var errs []error
	for _, proc := range procs {
		ppid, err := proc.Ppid()
		if err != nil || ppid != pid {
			continue
		}
		if err := killTree(proc.Pid); err != nil {
			errs = append(errs, err)
		}
	}
	root, err := process.NewProcess(pid)
	if err == nil {
		if err := root.Kill(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("couldn't kill process tree of %d: %v", pid, errs)
	}
	return nil
}
