package vpcd

import (
	"context"
	"fmt"
	"net"
	"strings"
)

const (
	// DefaultPort is the port vpcd listens on for virtual cards.
	DefaultPort = 35963

	// DefaultAddr is the address of a vpcd running on the local host.
	DefaultAddr = "127.0.0.1:35963"
)

// Dial connects to a vpcd daemon. An address of the form "unix:/path" selects a
// unix socket, anything else is a TCP host:port.
//
// The deadline of ctx only bounds connection establishment. No read or write
// deadlines are set on the returned connection.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	network, address := splitAddr(addr)

	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("connect to vpcd on %s: %w", addr, err)
	}
	return conn, nil
}

// Listen opens a listener for reverse mode, where vpcd connects to the card.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	network, address := splitAddr(addr)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ln, nil
}

func splitAddr(addr string) (network, address string) {
	if path, ok := strings.CutPrefix(addr, "unix:"); ok {
		return "unix", path
	}
	return "tcp", addr
}
