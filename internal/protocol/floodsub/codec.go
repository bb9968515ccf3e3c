// Package floodsub 实现洪泛发布订阅协议
package floodsub

import (
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
	"google.golang.org/protobuf/encoding/protowire"
)

// ============================================================================
//                              线路消息定义
// ============================================================================
//
// 与 libp2p floodsub (/floodsub/1.0.0) 的 rpc.proto 字段布局完全一致：
//
//	message RPC {
//	    repeated SubOpts subscriptions = 1;
//	    repeated Message publish = 2;
//	    message SubOpts {
//	        optional bool subscribe = 1;
//	        optional string topic_id = 2;
//	    }
//	}
//	message Message {
//	    optional bytes from = 1;
//	    optional bytes data = 2;
//	    optional bytes seqno = 3;
//	    repeated string topic_ids = 4;
//	}
//
// 未知字段（signature=5、key=6、control=3 等）在解码时跳过。

const (
	fieldRPCSubscriptions protowire.Number = 1
	fieldRPCPublish       protowire.Number = 2

	fieldSubSubscribe protowire.Number = 1
	fieldSubTopicID   protowire.Number = 2

	fieldMsgFrom     protowire.Number = 1
	fieldMsgData     protowire.Number = 2
	fieldMsgSeqno    protowire.Number = 3
	fieldMsgTopicIDs protowire.Number = 4
)

// RPC 一个完整的协议帧
//
// 一个帧可以携带订阅变更、发布消息或两者兼有。
type RPC struct {
	Subscriptions []SubOpts
	Publish       []*Message
}

// SubOpts 订阅变更
type SubOpts struct {
	Subscribe bool
	TopicID   string
}

// Message 线路上的发布消息
//
// 字节字段按 protobuf 语义处理：空切片与 nil 编码相同，解码结果统一为 nil。
type Message struct {
	From     []byte
	Data     []byte
	Seqno    []byte
	TopicIDs []string
}

// size 估算 RPC 编码后的字节数
func (r *RPC) size() int {
	n := 0
	for i := range r.Subscriptions {
		l := r.Subscriptions[i].size()
		n += protowire.SizeTag(fieldRPCSubscriptions) + protowire.SizeBytes(l)
	}
	for _, m := range r.Publish {
		l := m.size()
		n += protowire.SizeTag(fieldRPCPublish) + protowire.SizeBytes(l)
	}
	return n
}

func (s *SubOpts) size() int {
	return protowire.SizeTag(fieldSubSubscribe) + protowire.SizeVarint(protowire.EncodeBool(s.Subscribe)) +
		protowire.SizeTag(fieldSubTopicID) + protowire.SizeBytes(len(s.TopicID))
}

func (m *Message) size() int {
	n := protowire.SizeTag(fieldMsgFrom) + protowire.SizeBytes(len(m.From)) +
		protowire.SizeTag(fieldMsgData) + protowire.SizeBytes(len(m.Data)) +
		protowire.SizeTag(fieldMsgSeqno) + protowire.SizeBytes(len(m.Seqno))
	for _, t := range m.TopicIDs {
		n += protowire.SizeTag(fieldMsgTopicIDs) + protowire.SizeBytes(len(t))
	}
	return n
}

// appendRPC 追加 RPC 的 protobuf 编码
func appendRPC(b []byte, r *RPC) []byte {
	for i := range r.Subscriptions {
		s := &r.Subscriptions[i]
		b = protowire.AppendTag(b, fieldRPCSubscriptions, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(s.size()))
		b = protowire.AppendTag(b, fieldSubSubscribe, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(s.Subscribe))
		b = protowire.AppendTag(b, fieldSubTopicID, protowire.BytesType)
		b = protowire.AppendString(b, s.TopicID)
	}
	for _, m := range r.Publish {
		b = protowire.AppendTag(b, fieldRPCPublish, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(m.size()))
		b = protowire.AppendTag(b, fieldMsgFrom, protowire.BytesType)
		b = protowire.AppendBytes(b, m.From)
		b = protowire.AppendTag(b, fieldMsgData, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data)
		b = protowire.AppendTag(b, fieldMsgSeqno, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Seqno)
		for _, t := range m.TopicIDs {
			b = protowire.AppendTag(b, fieldMsgTopicIDs, protowire.BytesType)
			b = protowire.AppendString(b, t)
		}
	}
	return b
}

// ============================================================================
//                              帧编解码
// ============================================================================

// EncodeFrame 编码一个长度前缀帧: uvarint(len) || protobuf(RPC)
//
// maxSize > 0 时，消息体超过上限返回 ErrOversizedFrame，不产生任何输出。
func EncodeFrame(rpc *RPC, maxSize int) ([]byte, error) {
	size := rpc.size()
	if maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrOversizedFrame, size, maxSize)
	}
	buf := make([]byte, 0, varint.UvarintSize(uint64(size))+size)
	buf = append(buf, varint.ToUvarint(uint64(size))...)
	return appendRPC(buf, rpc), nil
}

// DecodeFrame 从缓冲区头部解码一个帧
//
// 返回解码结果和消耗的字节数。错误语义：
//   - ErrTruncated: 字节不足，调用方继续缓冲后重试
//   - ErrOversizedFrame: 长度前缀超过 maxSize，仅凭前缀即可判定
//   - ErrMalformed: 字节布局违反协议
func DecodeFrame(buf []byte, maxSize int) (*RPC, int, error) {
	size, n, err := varint.FromUvarint(buf)
	if err != nil {
		if errors.Is(err, varint.ErrUnderflow) {
			return nil, 0, ErrTruncated
		}
		return nil, 0, fmt.Errorf("%w: length prefix: %v", ErrMalformed, err)
	}
	if maxSize > 0 && size > uint64(maxSize) {
		return nil, 0, fmt.Errorf("%w: %d > %d", ErrOversizedFrame, size, maxSize)
	}
	if uint64(len(buf)-n) < size {
		return nil, 0, ErrTruncated
	}
	end := n + int(size)
	rpc, err := unmarshalRPC(buf[n:end])
	if err != nil {
		return nil, 0, err
	}
	return rpc, end, nil
}

// malformed 包装 protowire 解析错误
func malformed(what string, n int) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformed, what, protowire.ParseError(n))
}

// unmarshalRPC 解码 RPC 消息体
//
// 解码出的字节切片均为副本，不引用输入缓冲区。
func unmarshalRPC(b []byte) (*RPC, error) {
	rpc := &RPC{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed("rpc tag", n)
		}
		b = b[n:]

		switch {
		case num == fieldRPCSubscriptions && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed("subscription", n)
			}
			sub, err := unmarshalSubOpts(v)
			if err != nil {
				return nil, err
			}
			rpc.Subscriptions = append(rpc.Subscriptions, sub)
			b = b[n:]

		case num == fieldRPCPublish && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed("publish", n)
			}
			msg, err := unmarshalMessage(v)
			if err != nil {
				return nil, err
			}
			rpc.Publish = append(rpc.Publish, msg)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, malformed("unknown field", n)
			}
			b = b[n:]
		}
	}
	return rpc, nil
}

func unmarshalSubOpts(b []byte) (SubOpts, error) {
	var sub SubOpts
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return sub, malformed("subopts tag", n)
		}
		b = b[n:]

		switch {
		case num == fieldSubSubscribe && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return sub, malformed("subscribe", n)
			}
			sub.Subscribe = protowire.DecodeBool(v)
			b = b[n:]

		case num == fieldSubTopicID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return sub, malformed("topic_id", n)
			}
			sub.TopicID = string(v)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return sub, malformed("subopts field", n)
			}
			b = b[n:]
		}
	}
	return sub, nil
}

func unmarshalMessage(b []byte) (*Message, error) {
	msg := &Message{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed("message tag", n)
		}
		b = b[n:]

		if typ != protowire.BytesType || num < fieldMsgFrom || num > fieldMsgTopicIDs {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, malformed("message field", n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, malformed("message bytes", n)
		}
		b = b[n:]

		switch num {
		case fieldMsgFrom:
			msg.From = cloneBytes(v)
		case fieldMsgData:
			msg.Data = cloneBytes(v)
		case fieldMsgSeqno:
			msg.Seqno = cloneBytes(v)
		case fieldMsgTopicIDs:
			msg.TopicIDs = append(msg.TopicIDs, string(v))
		}
	}

	if len(msg.From) == 0 {
		return nil, fmt.Errorf("%w: message without source", ErrMalformed)
	}
	return msg, nil
}

// cloneBytes 复制字节，空输入返回 nil
func cloneBytes(v []byte) []byte {
	if len(v) == 0 {
		return nil
	}
	return append([]byte(nil), v...)
}

// ============================================================================
//                              流式读写
// ============================================================================

// defaultReadChunk 每次从流读取的字节数
const defaultReadChunk = 4096

// frameReader 从可能部分到达的字节流中切分帧
//
// 内部缓冲最多持有 maxSize + 长度前缀 + 一个读块，超长帧仅凭
// 长度前缀即被拒绝。
type frameReader struct {
	r       io.Reader
	maxSize int
	buf     []byte
	chunk   []byte
}

// newFrameReader 创建帧读取器
func newFrameReader(r io.Reader, maxSize int) *frameReader {
	return &frameReader{
		r:       r,
		maxSize: maxSize,
		chunk:   make([]byte, defaultReadChunk),
	}
}

// ReadRPC 读取下一个完整帧
//
// 流在帧边界处结束时返回 io.EOF；在帧中间结束返回 io.ErrUnexpectedEOF。
func (fr *frameReader) ReadRPC() (*RPC, error) {
	for {
		if len(fr.buf) > 0 {
			rpc, n, err := DecodeFrame(fr.buf, fr.maxSize)
			if err == nil {
				fr.buf = append(fr.buf[:0], fr.buf[n:]...)
				return rpc, nil
			}
			if !errors.Is(err, ErrTruncated) {
				return nil, err
			}
		}

		n, err := fr.r.Read(fr.chunk)
		if n > 0 {
			fr.buf = append(fr.buf, fr.chunk[:n]...)
		}
		if err != nil {
			if n > 0 && errors.Is(err, io.EOF) {
				// 先尝试解码已到达的字节
				continue
			}
			if errors.Is(err, io.EOF) && len(fr.buf) > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}
