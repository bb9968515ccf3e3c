// Package host 实现最小化的 P2P 主机
//
// 每条连接的建立顺序：
//
//  1. TCP 建连（入站由监听循环接受，出站由 Connect 拨号）
//  2. multistream-select 协商 /floodsub/id/1.0.0
//  3. 身份交换：双方发送公钥与随机数，再对对端随机数签名，
//     校验通过后得到对端 PeerID
//  4. multistream-select 协商 /yamux/1.0.0，建立 yamux 会话
//  5. 每条流使用 multistream-select 协商协议，入站流交给
//     SetStreamHandler 注册的处理器
//
// 第 2 到 4 步每步各自受 HandshakeTimeout 限制。
//
// 同一节点可以有多条连接：第一条连接建立时发布 EvtPeerConnected，
// 最后一条连接断开时发布 EvtPeerDisconnected。
//
// Host 不做加密，不做 NAT 穿透和中继。
package host
