package netutil

import (
	"context"
	"net"
	"time"

	"github.com/ringo-is-a-color/lastcall/util/errors"
)

var (
	dialer        = net.Dialer{Timeout: dialerTimeout, KeepAlive: dialerKeepAlive}
	dialerTimeout = 10 * time.Second
	// TODO: https://github.com/golang/go/issues/62254#issuecomment-1791102281
	dialerKeepAlive = 1000 * time.Second
)

func Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	return errors.WithStack2(dialer.DialContext(ctx, network, addr))
}

func DialTCP(ctx context.Context, addr string) (*net.TCPConn, error) {
	conn, err := Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return conn.(*net.TCPConn), nil
}
