// Package identity 管理节点身份
//
// 节点身份是一对 Ed25519 密钥，PeerID 由公钥派生
// （sha2-256 multihash 的 Base58 文本，见 types.PeerIDFromPublicKey）。
//
// 私钥以 PEM 形式持久化，写入使用临时文件 + rename 保证原子性：
//
//	id, err := identity.LoadOrCreate("node.key")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(id.PeerID())
package identity
