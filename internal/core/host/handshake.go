package host

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/multiformats/go-varint"

	"github.com/dep2p/go-floodsub/internal/core/identity"
	"github.com/dep2p/go-floodsub/pkg/types"
)

// nonceSize 握手随机数长度
const nonceSize = 32

// 签名内容的域分隔前缀，防止签名被挪作他用
var handshakeDomain = []byte("floodsub-handshake:")

var (
	// ErrHandshake 身份交换失败
	ErrHandshake = errors.New("host: handshake failed")

	// ErrPeerMismatch 对端身份与拨号时期望的不一致
	ErrPeerMismatch = errors.New("host: unexpected remote peer")

	// ErrSelfDial 连接到了自己
	ErrSelfDial = errors.New("host: dialed self")
)

// handshake 在原始连接上执行身份交换，返回对端 PeerID
//
// 线路格式（双方对称）：
//
//	hello = uvarint(len(pubkey)) || pubkey || nonce[32]
//	proof = uvarint(len(sig)) || sig，sig = Sign(domain || 对端 nonce)
func handshake(conn net.Conn, self *identity.Identity, timeout time.Duration) (types.PeerID, error) {
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return types.EmptyPeerID, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	defer conn.SetDeadline(time.Time{})

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return types.EmptyPeerID, fmt.Errorf("%w: nonce: %v", ErrHandshake, err)
	}

	hello := appendField(nil, self.PublicKey())
	hello = append(hello, nonce...)
	if _, err := conn.Write(hello); err != nil {
		return types.EmptyPeerID, fmt.Errorf("%w: write hello: %v", ErrHandshake, err)
	}

	r := byteReader{conn}
	remotePub, err := readField(r, ed25519.PublicKeySize)
	if err != nil {
		return types.EmptyPeerID, fmt.Errorf("%w: read public key: %v", ErrHandshake, err)
	}
	remoteNonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(conn, remoteNonce); err != nil {
		return types.EmptyPeerID, fmt.Errorf("%w: read nonce: %v", ErrHandshake, err)
	}

	sig := self.Sign(append(append([]byte(nil), handshakeDomain...), remoteNonce...))
	if _, err := conn.Write(appendField(nil, sig)); err != nil {
		return types.EmptyPeerID, fmt.Errorf("%w: write proof: %v", ErrHandshake, err)
	}

	remoteSig, err := readField(r, ed25519.SignatureSize)
	if err != nil {
		return types.EmptyPeerID, fmt.Errorf("%w: read proof: %v", ErrHandshake, err)
	}

	remote, err := types.PeerIDFromPublicKey(remotePub)
	if err != nil {
		return types.EmptyPeerID, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	signed := append(append([]byte(nil), handshakeDomain...), nonce...)
	if err := identity.VerifyPeer(remote, remotePub, signed, remoteSig); err != nil {
		return types.EmptyPeerID, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if remote == self.PeerID() {
		return types.EmptyPeerID, ErrSelfDial
	}
	return remote, nil
}

// appendField 追加 uvarint 长度前缀字段
func appendField(b, field []byte) []byte {
	b = append(b, varint.ToUvarint(uint64(len(field)))...)
	return append(b, field...)
}

// readField 读取长度前缀字段，长度必须等于 size
func readField(r byteReader, size int) ([]byte, error) {
	n, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if n != uint64(size) {
		return nil, fmt.Errorf("unexpected field length %d", n)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r.Reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// byteReader 逐字节读取，不做预读
//
// 握手结束后原始连接交给 yamux，不能有字节残留在缓冲区中。
type byteReader struct {
	io.Reader
}

func (r byteReader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r.Reader, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
