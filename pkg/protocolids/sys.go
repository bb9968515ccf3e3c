package protocolids

import "github.com/dep2p/go-floodsub/pkg/types"

// FloodSub 洪泛发布订阅协议
const FloodSub types.ProtocolID = "/floodsub/1.0.0"

// Handshake 连接建立后的身份交换协议（在 yamux 会话之前，原始 TCP 上执行）
const Handshake types.ProtocolID = "/floodsub/id/1.0.0"

// Yamux 流多路复用协议
const Yamux types.ProtocolID = "/yamux/1.0.0"
