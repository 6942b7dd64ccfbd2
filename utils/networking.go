package utils

import (
	"errors"
	"fmt"
	"net"
)

var ErrPortInUse = errors.New("port already in use")

// IsFreePort reports whether a TCP listener can be bound to [port] on all interfaces.
func IsFreePort(port uint16) bool {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// CheckPortsFree returns ErrPortInUse for the first of [ports] that is bound.
// Zero ports are ignored.
func CheckPortsFree(ports ...uint16) error {
	for _, port := range ports {
		if port == 0 {
			continue
		}
		if !IsFreePort(port) {
			return fmt.Errorf("%w: %d", ErrPortInUse, port)
		}
	}
	return nil
}
