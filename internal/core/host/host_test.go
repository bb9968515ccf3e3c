package host

import (
	"context"
	"crypto/ed25519"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-floodsub/config"
	"github.com/dep2p/go-floodsub/internal/core/eventbus"
	"github.com/dep2p/go-floodsub/internal/core/identity"
	pkgif "github.com/dep2p/go-floodsub/pkg/interfaces"
	"github.com/dep2p/go-floodsub/pkg/types"
)

const echoProtocol types.ProtocolID = "/test/echo/1.0.0"

func newTestHost(t *testing.T) *Host {
	t.Helper()

	id, err := identity.Generate()
	require.NoError(t, err)
	h, err := New(id, eventbus.NewBus(), WithListenAddr("127.0.0.1:0"))
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func subscribe(t *testing.T, h *Host, evt interface{}) pkgif.Subscription {
	t.Helper()
	sub, err := h.EventBus().Subscribe(evt, eventbus.BufSize(8))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

func nextEvent(t *testing.T, sub pkgif.Subscription) interface{} {
	t.Helper()
	select {
	case e := <-sub.Out():
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestParseAddr(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	expected, hp, err := parseAddr("127.0.0.1:4001")
	require.NoError(t, err)
	assert.Equal(t, types.EmptyPeerID, expected)
	assert.Equal(t, "127.0.0.1:4001", hp)

	expected, hp, err = parseAddr(id.PeerID().String() + "@localhost:9")
	require.NoError(t, err)
	assert.Equal(t, id.PeerID(), expected)
	assert.Equal(t, "localhost:9", hp)

	for _, bad := range []string{"", "no-port", "0OIl@127.0.0.1:1"} {
		_, _, err := parseAddr(bad)
		assert.ErrorIs(t, err, ErrInvalidAddr, bad)
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := map[string]Option{
		"dial timeout":      WithDialTimeout(0),
		"handshake timeout": WithHandshakeTimeout(-time.Second),
		"negotiation":       WithNegotiationTimeout(0),
		"keepalive":         WithKeepAliveInterval(-1),
	}
	for name, opt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			opt(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestHandshake(t *testing.T) {
	a, err := identity.Generate()
	require.NoError(t, err)
	b, err := identity.Generate()
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	type result struct {
		peer types.PeerID
		err  error
	}
	done := make(chan result, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			done <- result{err: err}
			return
		}
		defer c.Close()
		p, err := handshake(c, b, time.Second)
		done <- result{peer: p, err: err}
	}()

	c, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	got, err := handshake(c, a, time.Second)
	require.NoError(t, err)
	assert.Equal(t, b.PeerID(), got)

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, a.PeerID(), r.peer)
}

func TestHandshake_BadProof(t *testing.T) {
	srv, err := identity.Generate()
	require.NoError(t, err)
	fake, err := identity.Generate()
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	done := make(chan error, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			done <- err
			return
		}
		defer c.Close()
		_, err = handshake(c, srv, time.Second)
		done <- err
	}()

	c, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	hello := appendField(nil, fake.PublicKey())
	hello = append(hello, make([]byte, nonceSize)...)
	_, err = c.Write(hello)
	require.NoError(t, err)

	// 读掉对端的 hello 和 proof
	_, err = readField(byteReader{c}, ed25519.PublicKeySize)
	require.NoError(t, err)
	_, err = io.ReadFull(c, make([]byte, nonceSize))
	require.NoError(t, err)

	_, err = c.Write(appendField(nil, make([]byte, ed25519.SignatureSize)))
	require.NoError(t, err)

	err = <-done
	assert.ErrorIs(t, err, ErrHandshake)
	assert.ErrorIs(t, err, identity.ErrInvalidSignature)
}

func TestHost_ConnectAndStream(t *testing.T) {
	a := newTestHost(t)
	b := newTestHost(t)

	connected := subscribe(t, b, new(types.EvtPeerConnected))

	b.SetStreamHandler(echoProtocol, func(s pkgif.Stream) {
		defer s.Close()
		_, _ = io.Copy(s, s)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	remote, err := a.Connect(ctx, b.FullAddr())
	require.NoError(t, err)
	assert.Equal(t, b.ID(), remote)
	assert.Equal(t, []types.PeerID{b.ID()}, a.Peers())

	evt, ok := nextEvent(t, connected).(types.EvtPeerConnected)
	require.True(t, ok)
	assert.Equal(t, a.ID(), evt.PeerID)
	assert.Equal(t, types.DirInbound, evt.Direction)

	// 已连接时带 PeerID 的地址不会重复拨号
	again, err := a.Connect(ctx, b.FullAddr())
	require.NoError(t, err)
	assert.Equal(t, b.ID(), again)

	s, err := a.NewStream(ctx, b.ID(), echoProtocol)
	require.NoError(t, err)
	defer s.Reset()

	assert.Equal(t, echoProtocol, s.Protocol())
	assert.Equal(t, b.ID(), s.Conn().RemotePeer())
	assert.Equal(t, a.ID(), s.Conn().LocalPeer())

	_, err = s.Write([]byte("hello"))
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestHost_NegotiationErrors(t *testing.T) {
	a := newTestHost(t)
	b := newTestHost(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := a.NewStream(ctx, b.ID(), echoProtocol)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = a.Connect(ctx, b.FullAddr())
	require.NoError(t, err)

	_, err = a.NewStream(ctx, b.ID(), "/test/unsupported/1.0.0")
	assert.Error(t, err)

	b.SetStreamHandler(echoProtocol, func(s pkgif.Stream) { _ = s.Close() })
	b.RemoveStreamHandler(echoProtocol)
	_, err = a.NewStream(ctx, b.ID(), echoProtocol)
	assert.Error(t, err)
}

func TestHost_ConnectErrors(t *testing.T) {
	a := newTestHost(t)
	b := newTestHost(t)
	c := newTestHost(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := a.Connect(ctx, a.FullAddr())
	assert.ErrorIs(t, err, ErrSelfDial)

	// 地址属于 b，但声明的是 c
	_, err = a.Connect(ctx, c.ID().String()+"@"+b.Addrs()[0])
	assert.ErrorIs(t, err, ErrPeerMismatch)
	assert.Empty(t, a.Peers())

	// 不带 PeerID 拨自己的地址，握手时发现
	_, err = a.Connect(ctx, a.Addrs()[0])
	assert.ErrorIs(t, err, ErrSelfDial)

	_, err = a.Connect(ctx, "bad")
	assert.ErrorIs(t, err, ErrInvalidAddr)
}

func TestHost_DisconnectEvents(t *testing.T) {
	a := newTestHost(t)
	b := newTestHost(t)

	disconnected := subscribe(t, a, new(types.EvtPeerDisconnected))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := a.Connect(ctx, b.FullAddr())
	require.NoError(t, err)

	require.NoError(t, b.Close())

	evt, ok := nextEvent(t, disconnected).(types.EvtPeerDisconnected)
	require.True(t, ok)
	assert.Equal(t, b.ID(), evt.PeerID)
	assert.Eventually(t, func() bool { return len(a.Peers()) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHost_ClosePeer(t *testing.T) {
	a := newTestHost(t)
	b := newTestHost(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := a.Connect(ctx, b.FullAddr())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(b.Peers()) == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, a.ClosePeer(b.ID()))
	assert.Eventually(t, func() bool { return len(a.Peers()) == 0 && len(b.Peers()) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHost_Close(t *testing.T) {
	h := newTestHost(t)

	assert.ErrorIs(t, h.Listen("127.0.0.1:0"), ErrAlreadyListening)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())

	_, err := h.Connect(context.Background(), "127.0.0.1:1")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = h.NewStream(context.Background(), "x", echoProtocol)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, h.Listen("127.0.0.1:0"), ErrClosed)
}

func TestModule(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	var h pkgif.Host
	app := fxtest.New(t,
		fx.Supply(id),
		fx.Provide(func() pkgif.EventBus { return eventbus.NewBus() }),
		fx.Supply(&Config{
			ListenAddr:         "127.0.0.1:0",
			DialTimeout:        time.Second,
			HandshakeTimeout:   time.Second,
			NegotiationTimeout: time.Second,
			MaxStreamWindow:    DefaultMaxStreamWindow,
		}),
		Module(),
		fx.Populate(&h),
	)
	app.RequireStart()

	assert.Equal(t, id.PeerID(), h.ID())
	assert.Len(t, h.Addrs(), 1)

	app.RequireStop()
}

func TestConfigFromUnified(t *testing.T) {
	assert.Equal(t, DefaultConfig(), ConfigFromUnified(nil))

	unified := config.NewConfig()
	unified.Transport.ListenAddr = ""
	unified.Transport.KeepAliveInterval = 0

	cfg := ConfigFromUnified(unified)
	assert.Equal(t, "", cfg.ListenAddr)
	assert.Equal(t, time.Duration(0), cfg.KeepAliveInterval)
	assert.Equal(t, unified.Transport.DialTimeout.Duration(), cfg.DialTimeout)
	require.NoError(t, cfg.Validate())
}

func TestNegotiate(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	run := func(serverProto, clientProto types.ProtocolID) (error, error) {
		done := make(chan error, 1)
		go func() {
			c, err := l.Accept()
			if err != nil {
				done <- err
				return
			}
			defer c.Close()
			done <- negotiate(c, serverProto, true, time.Second)
		}()

		c, err := net.Dial("tcp", l.Addr().String())
		require.NoError(t, err)
		clientErr := negotiate(c, clientProto, false, time.Second)
		// 协商失败时服务端仍在等待提议，关闭连接让其返回
		_ = c.Close()
		return <-done, clientErr
	}

	serverErr, clientErr := run(echoProtocol, echoProtocol)
	assert.NoError(t, serverErr)
	assert.NoError(t, clientErr)

	_, clientErr = run(echoProtocol, "/test/other/1.0.0")
	assert.Error(t, clientErr)
}
