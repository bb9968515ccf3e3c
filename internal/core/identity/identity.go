// Package identity 管理节点身份
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/dep2p/go-floodsub/pkg/types"
)

var (
	// ErrInvalidKeySize 无效的密钥长度
	ErrInvalidKeySize = errors.New("identity: invalid key size")

	// ErrInvalidSignature 签名验证失败
	ErrInvalidSignature = errors.New("identity: invalid signature")

	// ErrPeerIDMismatch 公钥与声明的 PeerID 不符
	ErrPeerIDMismatch = errors.New("identity: peer id does not match public key")
)

// Identity 节点身份
type Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	id   types.PeerID
}

// Generate 生成新的随机身份
func Generate() (*Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return FromPrivateKey(priv)
}

// FromPrivateKey 从 Ed25519 私钥构造身份
func FromPrivateKey(priv ed25519.PrivateKey) (*Identity, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeySize
	}
	pub := priv.Public().(ed25519.PublicKey)
	id, err := types.PeerIDFromPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &Identity{priv: priv, pub: pub, id: id}, nil
}

// PeerID 返回节点 ID
func (i *Identity) PeerID() types.PeerID {
	return i.id
}

// PublicKey 返回公钥
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.pub
}

// PrivateKey 返回私钥
func (i *Identity) PrivateKey() ed25519.PrivateKey {
	return i.priv
}

// Sign 对数据签名
func (i *Identity) Sign(data []byte) []byte {
	return ed25519.Sign(i.priv, data)
}

// VerifyPeer 校验对端声明的 PeerID、公钥与签名
//
// claimed 必须由 pub 派生，sig 必须是 pub 对 data 的有效签名。
func VerifyPeer(claimed types.PeerID, pub, data, sig []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return ErrInvalidKeySize
	}
	derived, err := types.PeerIDFromPublicKey(pub)
	if err != nil {
		return err
	}
	if derived != claimed {
		return fmt.Errorf("%w: claimed %s, derived %s", ErrPeerIDMismatch, claimed.ShortString(), derived.ShortString())
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), data, sig) {
		return ErrInvalidSignature
	}
	return nil
}
