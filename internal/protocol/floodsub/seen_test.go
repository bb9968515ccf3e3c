package floodsub

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeenFilter_InsertAndCheck(t *testing.T) {
	f := newSeenFilter(16)

	// 首次插入不是重复
	assert.False(t, f.insertAndCheck("msg-1"))
	// 再次插入检测为重复
	assert.True(t, f.insertAndCheck("msg-1"))
	assert.True(t, f.has("msg-1"))
	assert.False(t, f.has("msg-2"))
	assert.Equal(t, 1, f.len())
}

func TestSeenFilter_EvictsOldestFirst(t *testing.T) {
	f := newSeenFilter(3)

	f.insertAndCheck("a")
	f.insertAndCheck("b")
	f.insertAndCheck("c")
	// 满了，插入 d 淘汰最旧的 a
	assert.False(t, f.insertAndCheck("d"))

	assert.False(t, f.has("a"))
	assert.True(t, f.has("b"))
	assert.True(t, f.has("c"))
	assert.True(t, f.has("d"))

	// 重复检测不刷新位置：b 仍是最旧的
	assert.True(t, f.insertAndCheck("b"))
	f.insertAndCheck("e")
	assert.False(t, f.has("b"))
	assert.True(t, f.has("c"))
}

func TestSeenFilter_NoFalseNegativeWithinCapacity(t *testing.T) {
	const capacity = 1000
	f := newSeenFilter(capacity)

	for i := 0; i < capacity; i++ {
		f.insertAndCheck(fmt.Sprintf("id-%d", i))
	}
	for i := 0; i < capacity; i++ {
		assert.True(t, f.insertAndCheck(fmt.Sprintf("id-%d", i)), "id-%d", i)
	}
}

// TestSeenFilter_BoundedMemory 大量唯一身份不会导致内存无限增长
func TestSeenFilter_BoundedMemory(t *testing.T) {
	const capacity = 128
	f := newSeenFilter(capacity)

	for i := 0; i < capacity*50; i++ {
		f.insertAndCheck(fmt.Sprintf("crafted-%d", i))
		assert.LessOrEqual(t, f.len(), capacity)
	}

	assert.Equal(t, capacity, f.len())
	assert.Equal(t, capacity, f.capacity())
	assert.LessOrEqual(t, f.indexSize(), capacity)

	// 最近插入的条目仍然可见
	for i := capacity*50 - capacity; i < capacity*50; i++ {
		assert.True(t, f.has(fmt.Sprintf("crafted-%d", i)))
	}
}

func TestSeenFilter_InvalidCapacityUsesDefault(t *testing.T) {
	f := newSeenFilter(0)
	assert.Equal(t, DefaultSeenCapacity, f.capacity())
}

// TestSeenFilter_ConcurrentSameID 并发插入同一身份只有一个调用者看到"首次"
func TestSeenFilter_ConcurrentSameID(t *testing.T) {
	f := newSeenFilter(64)

	var first atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !f.insertAndCheck("same") {
				first.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), first.Load())
}

func BenchmarkSeenFilter_InsertAndCheck(b *testing.B) {
	f := newSeenFilter(DefaultSeenCapacity)
	ids := make([]string, 1024)
	for i := range ids {
		ids[i] = fmt.Sprintf("bench-%d", i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.insertAndCheck(ids[i%len(ids)])
	}
}

// has 检查身份是否仍被记录
func (f *seenFilter) has(id string) bool {
	fp := f.fingerprint(id)

	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.index[fp]
	return ok
}

// indexSize 返回索引项数
func (f *seenFilter) indexSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.index)
}

// len 返回当前记录的条目数
func (f *seenFilter) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// capacity 返回容量
func (f *seenFilter) capacity() int {
	return len(f.slots)
}
