package local

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/axia-network/axia-launch/utils/constants"
	"github.com/gorilla/websocket"
)

// probe returns nil once a node accepts connections.
type probe func(ctx context.Context) error

// wsProbe opens a websocket connection to the node's RPC endpoint.
func wsProbe(port uint16) probe {
	url := fmt.Sprintf("ws://%s:%d", constants.IPv4Lookback, port)
	return func(ctx context.Context) error {
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// tcpProbe connects to a node that serves no RPC endpoint.
func tcpProbe(port uint16) probe {
	addr := net.JoinHostPort(constants.IPv4Lookback, strconv.Itoa(int(port)))
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}
