package portprobe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

const DefaultBound = 800 * time.Millisecond

// PortInUseError reports a port that accepted a connection before spawn.
type PortInUseError struct {
	Host string
	Port int
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("port %d on %s is already in use", e.Port, e.Host)
}

// IsFree reports whether nothing accepts TCP connections on host:port.
// Refused, unreachable and bound-exceeded attempts all count as free.
func IsFree(ctx context.Context, host string, port int, bound time.Duration) bool {
	if bound <= 0 {
		bound = DefaultBound
	}

	dialCtx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return true
	}
	_ = conn.Close()
	return false
}

// CheckFree probes ports concurrently and returns a *PortInUseError for the
// first busy port in argument order.
func CheckFree(ctx context.Context, host string, ports []int, bound time.Duration) error {
	free := make([]bool, len(ports))

	group, groupCtx := errgroup.WithContext(ctx)
	for index, port := range ports {
		index, port := index, port
		group.Go(func() error {
			free[index] = IsFree(groupCtx, host, port, bound)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}

	for index, port := range ports {
		if !free[index] {
			return &PortInUseError{Host: host, Port: port}
		}
	}
	return nil
}
