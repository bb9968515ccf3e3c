// Package types 定义 go-floodsub 的基础类型
//
// 本文件定义发布订阅消息相关类型。
package types

import (
	"encoding/hex"

	"github.com/multiformats/go-varint"
)

// MessageID 消息唯一标识
//
// 由 (source, seqno) 组成，与消息内容无关：两次独立的发布即使负载相同，
// 其 MessageID 也不同。
type MessageID string

// NewMessageID 由来源和序列号构造消息 ID
//
// 编码为 uvarint(len(from)) || from || seqno，来源带长度前缀，
// 不同的 (from, seqno) 拆分不会得到相同的 ID。
func NewMessageID(from PeerID, seqno []byte) MessageID {
	src := from.Bytes()
	buf := make([]byte, 0, varint.UvarintSize(uint64(len(src)))+len(src)+len(seqno))
	buf = append(buf, varint.ToUvarint(uint64(len(src)))...)
	buf = append(buf, src...)
	buf = append(buf, seqno...)
	return MessageID(buf)
}

// String 返回消息 ID 的十六进制表示（日志用）
func (id MessageID) String() string {
	return hex.EncodeToString([]byte(id))
}

// Message 发布订阅消息
type Message struct {
	// From 消息来源（发布者）
	From PeerID

	// Seqno 序列号，对同一来源唯一
	Seqno []byte

	// TopicIDs 消息所属主题集合
	TopicIDs []string

	// Data 消息负载
	Data []byte

	// ReceivedFrom 直接投递该消息的邻居节点（本地发布时为本节点）
	ReceivedFrom PeerID

	// Local 是否为本地发布的消息
	Local bool
}

// ID 返回消息身份
func (m *Message) ID() MessageID {
	return NewMessageID(m.From, m.Seqno)
}

// HasTopic 检查消息是否属于指定主题
func (m *Message) HasTopic(topic string) bool {
	for _, t := range m.TopicIDs {
		if t == topic {
			return true
		}
	}
	return false
}

// Delivered 本地投递事件
//
// 当本节点订阅的主题收到一条新消息时产生。
type Delivered struct {
	// Topic 触发投递的本地订阅主题
	Topic string

	// Message 被投递的消息
	Message *Message
}
