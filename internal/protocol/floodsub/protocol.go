// Package floodsub 实现洪泛发布订阅协议
package floodsub

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-floodsub/pkg/protocolids"
	"github.com/dep2p/go-floodsub/pkg/types"
)

// ProtocolID floodsub 协议 ID
const ProtocolID = protocolids.FloodSub

// seqnoSize 序列号字节数（大端 uint64）
const seqnoSize = 8

// seqnoGenerator 序列号生成器
//
// 以墙钟纳秒作为起点单调递增，同一进程内生成的序列号互不相同，
// 进程重启后也极难与之前的序列号重合。
type seqnoGenerator struct {
	counter atomic.Uint64
}

// newSeqnoGenerator 创建序列号生成器
func newSeqnoGenerator(now time.Time) *seqnoGenerator {
	g := &seqnoGenerator{}
	g.counter.Store(uint64(now.UnixNano()))
	return g
}

// next 返回下一个序列号
func (g *seqnoGenerator) next() []byte {
	seqno := make([]byte, seqnoSize)
	binary.BigEndian.PutUint64(seqno, g.counter.Add(1))
	return seqno
}

// messageID 计算消息身份
//
// 使用 from + seqno 作为唯一标识
func messageID(from types.PeerID, seqno []byte) string {
	return string(types.NewMessageID(from, seqno))
}
