package host

import (
	"context"
	"io"
	"math"
	"net"
	"sync"

	"github.com/libp2p/go-yamux/v5"

	pkgif "github.com/dep2p/go-floodsub/pkg/interfaces"
	"github.com/dep2p/go-floodsub/pkg/types"
)

// yamuxConfig 根据 Host 配置生成 yamux 配置
func yamuxConfig(cfg *Config) *yamux.Config {
	c := yamux.DefaultConfig()
	c.MaxStreamWindowSize = cfg.MaxStreamWindow
	c.LogOutput = io.Discard
	c.MaxIncomingStreams = math.MaxUint32
	c.EnableKeepAlive = cfg.KeepAliveInterval > 0
	if c.EnableKeepAlive {
		c.KeepAliveInterval = cfg.KeepAliveInterval
	}
	return c
}

// peerConn 一条已完成身份交换的多路复用连接
type peerConn struct {
	local   types.PeerID
	remote  types.PeerID
	raddr   string
	session *yamux.Session
	inbound bool

	closeOnce sync.Once
	closeErr  error
}

var _ pkgif.Connection = (*peerConn)(nil)

// newPeerConn 在原始连接上建立 yamux 会话
//
// 入站连接作为 yamux 服务端，出站连接作为客户端。
func newPeerConn(raw net.Conn, local, remote types.PeerID, inbound bool, cfg *Config) (*peerConn, error) {
	var (
		sess *yamux.Session
		err  error
	)
	if inbound {
		sess, err = yamux.Server(raw, yamuxConfig(cfg), nil)
	} else {
		sess, err = yamux.Client(raw, yamuxConfig(cfg), nil)
	}
	if err != nil {
		return nil, err
	}
	return &peerConn{
		local:   local,
		remote:  remote,
		raddr:   raw.RemoteAddr().String(),
		session: sess,
		inbound: inbound,
	}, nil
}

func (c *peerConn) LocalPeer() types.PeerID {
	return c.local
}

func (c *peerConn) RemotePeer() types.PeerID {
	return c.remote
}

func (c *peerConn) RemoteAddr() string {
	return c.raddr
}

// openStream 打开一条出站流（尚未协商协议）
func (c *peerConn) openStream(ctx context.Context) (*stream, error) {
	s, err := c.session.OpenStream(ctx)
	if err != nil {
		return nil, err
	}
	return &stream{s: s, conn: c}, nil
}

// acceptStream 接受一条入站流
func (c *peerConn) acceptStream() (*stream, error) {
	s, err := c.session.AcceptStream()
	if err != nil {
		return nil, err
	}
	return &stream{s: s, conn: c}, nil
}

func (c *peerConn) isClosed() bool {
	return c.session.IsClosed()
}

// close 关闭会话，可重复调用
func (c *peerConn) close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.session.Close()
	})
	return c.closeErr
}
