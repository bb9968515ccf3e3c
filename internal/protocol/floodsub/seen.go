// Package floodsub 实现洪泛发布订阅协议
package floodsub

import (
	"math/rand/v2"
	"sync"

	"github.com/spaolacci/murmur3"
)

// seenFilter 已见消息过滤器
//
// 固定容量的指纹环 + 哈希存在性索引：
//   - 环中保存 64 位 murmur3 指纹，按插入顺序（FIFO）淘汰，淘汰为 O(1)
//   - 索引记录环中当前存在的指纹（同一指纹在环中至多出现一次）
//
// 内存上限在构造时确定（容量个槽位 + 至多容量个索引项）。
// 指纹碰撞会导致极小概率的误判为重复（假阳性，可接受）；
// 尚未被淘汰的条目永远不会被漏判（无假阴性）。
// 很久以前见过、已被淘汰的消息可能会被再次洪泛。
type seenFilter struct {
	mu    sync.Mutex
	seed  uint32
	slots []uint64
	head  int
	count int
	index map[uint64]struct{}
}

// newSeenFilter 创建已见消息过滤器
//
// capacity 必须大于 0。
func newSeenFilter(capacity int) *seenFilter {
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	return &seenFilter{
		seed:  rand.Uint32(),
		slots: make([]uint64, capacity),
		index: make(map[uint64]struct{}, capacity),
	}
}

// fingerprint 计算消息身份的指纹
//
// 每个过滤器使用随机种子，构造碰撞的攻击无法跨节点复用。
func (f *seenFilter) fingerprint(id string) uint64 {
	return murmur3.Sum64WithSeed([]byte(id), f.seed)
}

// insertAndCheck 原子地检查并插入
//
// 返回 true 表示该身份已存在（重复，不应再洪泛）；
// 返回 false 表示首次出现，且已被记录。
func (f *seenFilter) insertAndCheck(id string) bool {
	fp := f.fingerprint(id)

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.index[fp]; ok {
		return true
	}

	if f.count == len(f.slots) {
		// 满：淘汰最旧的槽位
		delete(f.index, f.slots[f.head])
	} else {
		f.count++
	}

	f.slots[f.head] = fp
	f.index[fp] = struct{}{}
	f.head = (f.head + 1) % len(f.slots)
	return false
}
