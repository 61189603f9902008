package echo

import (
	"context"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/ringo-is-a-color/lastcall/conf"
	"github.com/ringo-is-a-color/lastcall/shutdown"
	"github.com/ringo-is-a-color/lastcall/util/netutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go4.org/netipx"
)

func startServer(t *testing.T, allow conf.AllowList) (*Server, context.CancelFunc, <-chan error) {
	t.Helper()
	server := NewServer("127.0.0.1:0", allow)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- server.ListenAndServe(ctx)
	}()
	select {
	case <-server.Ready():
	case err := <-served:
		cancel()
		t.Fatalf("the echo server failed to listen: %v", err)
	}
	return server, cancel, served
}

func allowList(t *testing.T, prefix string) conf.AllowList {
	var builder netipx.IPSetBuilder
	builder.AddPrefix(netip.MustParsePrefix(prefix))
	ipSet, err := builder.IPSet()
	require.Nil(t, err)
	return conf.AllowList{IPSet: ipSet}
}

func TestEcho(t *testing.T) {
	server, cancel, served := startServer(t, conf.AllowList{})
	defer cancel()

	conn, err := netutil.DialTCP(context.Background(), server.Addr().String())
	require.Nil(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("last call"))
	require.Nil(t, err)
	buf := make([]byte, len("last call"))
	_, err = io.ReadFull(conn, buf)
	require.Nil(t, err)
	assert.Equal(t, "last call", string(buf))

	cancel()
	assert.Nil(t, <-served)
}

func TestRejectClientOutsideAllowList(t *testing.T) {
	server, cancel, _ := startServer(t, allowList(t, "10.0.0.0/8"))
	defer cancel()

	conn, err := netutil.DialTCP(context.Background(), server.Addr().String())
	require.Nil(t, err)
	defer conn.Close()
	require.Nil(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _ = conn.Write([]byte("ping"))
	_, err = conn.Read(make([]byte, 4))
	assert.NotNil(t, err)
	assert.Equal(t, 0, server.Conns())
}

func TestCleanupActionDisconnectsClients(t *testing.T) {
	server, cancel, served := startServer(t, allowList(t, "127.0.0.0/8"))
	defer cancel()

	conn, err := netutil.DialTCP(context.Background(), server.Addr().String())
	require.Nil(t, err)
	defer conn.Close()
	assert.Eventually(t, func() bool { return server.Conns() == 1 }, time.Second, time.Millisecond)

	coordinator := shutdown.NewWithExit(shutdown.DefaultConfig(), func(int) {})
	_, err = coordinator.RegisterNamed("echo server", server.CleanupAction(cancel, served))
	require.Nil(t, err)
	coordinator.Trigger(shutdown.Reason{Code: 0})

	report := coordinator.Report()
	require.NotNil(t, report)
	assert.Nil(t, report.Err())
	assert.Equal(t, 0, server.Conns())

	require.Nil(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.NotNil(t, err)

	_, err = netutil.DialTCP(context.Background(), server.Addr().String())
	assert.NotNil(t, err)
}

func TestListenAndServeTwice(t *testing.T) {
	server, cancel, served := startServer(t, conf.AllowList{})
	defer cancel()
	first := server.Addr().String()

	ctx, cancelSecond := context.WithCancel(context.Background())
	defer cancelSecond()
	listening := make(chan net.Addr, 1)
	secondServed := make(chan error, 1)
	go func() {
		secondServed <- server.listenAndServe(ctx, func(addr net.Addr) { listening <- addr })
	}()
	second := <-listening
	assert.NotEqual(t, first, second.String())
	assert.Equal(t, first, server.Addr().String())

	conn, err := netutil.DialTCP(context.Background(), second.String())
	require.Nil(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("again"))
	require.Nil(t, err)
	buf := make([]byte, len("again"))
	_, err = io.ReadFull(conn, buf)
	require.Nil(t, err)
	assert.Equal(t, "again", string(buf))

	cancelSecond()
	assert.Nil(t, <-secondServed)
	cancel()
	assert.Nil(t, <-served)
}
