package host

import (
	"context"
	"fmt"
	"net"
	"time"

	mss "github.com/multiformats/go-multistream"

	"github.com/dep2p/go-floodsub/pkg/protocolids"
	"github.com/dep2p/go-floodsub/pkg/types"
)

// negotiate 在原始连接上用 multistream-select 协商单个协议
//
// 入站一侧作为服务端等待提议，出站一侧提议 proto。
func negotiate(conn net.Conn, proto types.ProtocolID, inbound bool, timeout time.Duration) error {
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{})

	if inbound {
		m := mss.NewMultistreamMuxer[types.ProtocolID]()
		m.AddHandler(proto, nil)
		if _, _, err := m.Negotiate(conn); err != nil {
			return fmt.Errorf("server negotiation %s: %w", proto, err)
		}
		return nil
	}

	if err := mss.SelectProtoOrFail(proto, conn); err != nil {
		return fmt.Errorf("client negotiation %s: %w", proto, err)
	}
	return nil
}

// upgradeConn 把原始 TCP 连接升级为已认证的多路复用连接
//
// 顺序：协商身份交换协议 → 身份交换 → 协商 yamux → 建立会话。
// expected 非空时对端身份必须与之一致。失败时 raw 被关闭。
func (h *Host) upgradeConn(raw net.Conn, expected types.PeerID, inbound bool) (*peerConn, error) {
	fail := func(err error) (*peerConn, error) {
		_ = raw.Close()
		return nil, err
	}

	// 主机关闭时中断尚未完成的升级
	stop := context.AfterFunc(h.ctx, func() { _ = raw.Close() })
	defer stop()

	timeout := h.config.HandshakeTimeout
	if err := negotiate(raw, protocolids.Handshake, inbound, timeout); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrHandshake, err))
	}

	remote, err := handshake(raw, h.id, timeout)
	if err != nil {
		return fail(err)
	}
	if expected != types.EmptyPeerID && remote != expected {
		return fail(fmt.Errorf("%w: expected %s, got %s", ErrPeerMismatch, expected.ShortString(), remote.ShortString()))
	}

	if err := negotiate(raw, protocolids.Yamux, inbound, timeout); err != nil {
		return fail(fmt.Errorf("host: muxer: %w", err))
	}

	c, err := newPeerConn(raw, h.ID(), remote, inbound, h.config)
	if err != nil {
		return fail(fmt.Errorf("host: yamux: %w", err))
	}
	return c, nil
}
