package status

// The status of a launched node process.
type Status byte

const (
	// state just after creating the node process.
	Initial Status = iota
	// process has been started and not yet asked to stop or found to be stopped
	Running
	// process has been asked to stop
	Stopping
	// process is verified to be stopped
	Stopped
)

func (s Status) String() string {
	switch s {
	case Initial:
		return "initial"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}
