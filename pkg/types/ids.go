// Package types 定义 go-floodsub 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
package types

import (
	"errors"

	"github.com/minio/sha256-simd"
	"github.com/mr-tron/base58"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 节点唯一标识符
//
// 内部表示为原始身份字节的 Base58 文本（与 libp2p 的文本形式一致），
// 在线路上传输时使用 Bytes() 返回的原始字节。
// PeerID 是可比较、可哈希的值类型，可直接作为 map 键。
type PeerID string

// EmptyPeerID 空节点 ID
const EmptyPeerID PeerID = ""

// multihash 前缀: sha2-256 (0x12), 长度 32 (0x20)
const (
	mhSha256     = 0x12
	mhSha256Size = 0x20
)

var (
	// ErrEmptyPeerID 空节点 ID
	ErrEmptyPeerID = errors.New("types: empty peer id")

	// ErrInvalidPeerID 无效的节点 ID
	ErrInvalidPeerID = errors.New("types: invalid peer id")
)

// String 返回 PeerID 的文本表示
func (p PeerID) String() string {
	return string(p)
}

// ShortString 返回 PeerID 的简短形式（日志用）
func (p PeerID) ShortString() string {
	s := string(p)
	if len(s) <= 8 {
		return s
	}
	return s[len(s)-8:]
}

// IsEmpty 检查是否为空
func (p PeerID) IsEmpty() bool {
	return p == EmptyPeerID
}

// Bytes 返回线路上使用的原始身份字节
//
// 文本无法解码时返回 nil。
func (p PeerID) Bytes() []byte {
	if p.IsEmpty() {
		return nil
	}
	b, err := base58.Decode(string(p))
	if err != nil {
		return nil
	}
	return b
}

// Validate 校验 PeerID 是否可以解码为原始字节
func (p PeerID) Validate() error {
	if p.IsEmpty() {
		return ErrEmptyPeerID
	}
	if _, err := base58.Decode(string(p)); err != nil {
		return ErrInvalidPeerID
	}
	return nil
}

// PeerIDFromBytes 从线路上的原始字节构造 PeerID
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) == 0 {
		return EmptyPeerID, ErrEmptyPeerID
	}
	return PeerID(base58.Encode(b)), nil
}

// ParsePeerID 解析 PeerID 文本
func ParsePeerID(s string) (PeerID, error) {
	p := PeerID(s)
	if err := p.Validate(); err != nil {
		return EmptyPeerID, err
	}
	return p, nil
}

// PeerIDFromPublicKey 从公钥字节派生 PeerID
//
// 派生算法：Base58(0x12 || 0x20 || SHA256(pubkey))，即 sha2-256 multihash。
func PeerIDFromPublicKey(pub []byte) (PeerID, error) {
	if len(pub) == 0 {
		return EmptyPeerID, ErrInvalidPeerID
	}
	sum := sha256.Sum256(pub)
	mh := make([]byte, 0, 2+len(sum))
	mh = append(mh, mhSha256, mhSha256Size)
	mh = append(mh, sum[:]...)
	return PeerIDFromBytes(mh)
}

// ============================================================================
//                              ProtocolID - 协议标识
// ============================================================================

// ProtocolID 协议标识符
// 格式: /name/version，如 /floodsub/1.0.0
type ProtocolID string

// String 返回协议ID字符串
func (p ProtocolID) String() string {
	return string(p)
}
