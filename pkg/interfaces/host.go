// Package interfaces 定义 go-floodsub 公共接口
//
// 本文件定义 Host 接口，即 floodsub 所依赖的传输协作者。
package interfaces

import (
	"context"
	"time"

	"github.com/dep2p/go-floodsub/pkg/types"
)

// Host 定义 P2P 主机接口
//
// Host 负责连接管理、流多路复用和协议协商；floodsub 只通过它
// "向节点 P 打开/接受一条指定协议的双向流" 以及接收连接事件。
type Host interface {
	// ID 返回主机的 PeerID
	ID() types.PeerID

	// Addrs 返回主机监听的地址列表
	Addrs() []string

	// Connect 连接到指定地址，返回对端 PeerID
	Connect(ctx context.Context, addr string) (types.PeerID, error)

	// SetStreamHandler 为指定协议设置流处理器
	SetStreamHandler(protocolID types.ProtocolID, handler StreamHandler)

	// RemoveStreamHandler 移除指定协议的流处理器
	RemoveStreamHandler(protocolID types.ProtocolID)

	// NewStream 创建到指定节点的新流并完成协议协商
	NewStream(ctx context.Context, peerID types.PeerID, protocolID types.ProtocolID) (Stream, error)

	// Peers 返回当前已连接的节点
	Peers() []types.PeerID

	// EventBus 返回事件总线
	EventBus() EventBus

	// Close 关闭主机
	Close() error
}

// StreamHandler 定义流处理函数类型
type StreamHandler func(Stream)

// Stream 定义双向流接口
type Stream interface {
	// Read 从流中读取数据
	Read(p []byte) (n int, err error)

	// Write 向流中写入数据
	Write(p []byte) (n int, err error)

	// Close 关闭流
	Close() error

	// Reset 重置流（异常关闭）
	Reset() error

	// SetDeadline 设置读写超时
	SetDeadline(t time.Time) error

	// Protocol 返回流使用的协议 ID
	Protocol() types.ProtocolID

	// Conn 返回底层连接
	Conn() Connection
}

// Connection 定义流所属的连接
type Connection interface {
	// LocalPeer 返回本端 PeerID
	LocalPeer() types.PeerID

	// RemotePeer 返回对端 PeerID
	RemotePeer() types.PeerID

	// RemoteAddr 返回对端地址
	RemoteAddr() string
}
