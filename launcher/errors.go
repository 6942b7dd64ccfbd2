package launcher

import (
	"errors"
	"fmt"
)

// State of a launch. A failed launch reports the state it failed in.
type State string

const (
	StateValidating                State = "validating"
	StateResolvingIdentifiers      State = "resolving-identifiers"
	StateBuildingRelaySpec         State = "building-relay-spec"
	StateLaunchingRelayNodes       State = "launching-relay-nodes"
	StateConnectingRelay           State = "connecting-relay"
	StateBuildingAllychainSpec     State = "building-allychain-spec"
	StateLaunchingAllychainNodes   State = "launching-allychain-nodes"
	StatePostLaunchFunding         State = "post-launch-funding"
	StateLaunchingSimpleAllychains State = "launching-simple-allychains"
	StateDone                      State = "done"
)

// ErrInvalidConfig matches every config validation failure.
var ErrInvalidConfig = errors.New("invalid launch config")

// LaunchError is returned by every failed launch.
// Nothing has been started after the failing step.
type LaunchError struct {
	State State
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch failed while %s: %v", e.State, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// configError wraps the violated validation rule
// and matches ErrInvalidConfig.
type configError struct {
	err error
}

func (e *configError) Error() string {
	return fmt.Sprintf("%s: %v", ErrInvalidConfig, e.err)
}

func (e *configError) Unwrap() error {
	return e.err
}

func (e *configError) Is(target error) bool {
	return target == ErrInvalidConfig
}
