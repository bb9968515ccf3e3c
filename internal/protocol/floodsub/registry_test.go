package floodsub

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-floodsub/pkg/types"
)

func TestRegistry_LocalSubscriptions(t *testing.T) {
	r := newTopicRegistry()

	assert.True(t, r.subscribeLocal("news"))
	assert.False(t, r.subscribeLocal("news"), "重复订阅不改变状态")
	assert.True(t, r.subscribeLocal("alpha"))
	assert.True(t, r.isLocallySubscribed("news"))
	assert.Equal(t, []string{"alpha", "news"}, r.localTopics())

	assert.True(t, r.unsubscribeLocal("news"))
	assert.False(t, r.unsubscribeLocal("news"))
	assert.False(t, r.isLocallySubscribed("news"))
	assert.Equal(t, []string{"alpha"}, r.localTopics())
}

func TestRegistry_ApplyRemoteIdempotent(t *testing.T) {
	r := newTopicRegistry()
	p := types.PeerID("peerA")

	assert.True(t, r.applyRemote(p, "news", true))
	assert.False(t, r.applyRemote(p, "news", true))
	assert.Equal(t, []types.PeerID{p}, r.subscribersOf("news"))

	assert.True(t, r.applyRemote(p, "news", false))
	assert.False(t, r.applyRemote(p, "news", false))
	assert.Empty(t, r.subscribersOf("news"))
	assert.Empty(t, r.topicsOf(p))
	assert.Zero(t, r.knownTopics())
}

// TestRegistry_LastWriteWins 任意订阅序列的净效果与最后一次操作一致
func TestRegistry_LastWriteWins(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	peers := []types.PeerID{"a", "b", "c"}
	topics := []string{"t1", "t2"}

	for round := 0; round < 200; round++ {
		r := newTopicRegistry()
		want := make(map[string]map[types.PeerID]bool)

		for i := 0; i < 30; i++ {
			p := peers[rng.IntN(len(peers))]
			topic := topics[rng.IntN(len(topics))]
			sub := rng.IntN(2) == 0
			r.applyRemote(p, topic, sub)
			if want[topic] == nil {
				want[topic] = make(map[types.PeerID]bool)
			}
			want[topic][p] = sub
		}

		for _, topic := range topics {
			got := r.subscribersOf(topic)
			for _, p := range peers {
				assert.Equal(t, want[topic][p], contains(got, p),
					"round %d topic %s peer %s", round, topic, p)
				assert.Equal(t, want[topic][p], r.isSubscribed(p, topic))
			}
		}
	}
}

func TestRegistry_PurgePeer(t *testing.T) {
	r := newTopicRegistry()
	a, b := types.PeerID("a"), types.PeerID("b")

	r.applyRemote(a, "news", true)
	r.applyRemote(a, "sports", true)
	r.applyRemote(b, "news", true)

	left := r.purgePeer(a)
	assert.Equal(t, []string{"news", "sports"}, left)
	assert.Equal(t, []types.PeerID{b}, r.subscribersOf("news"))
	assert.Empty(t, r.subscribersOf("sports"))
	assert.Empty(t, r.topicsOf(a))
	assert.Equal(t, 1, r.knownTopics())
}

// TestRegistry_PurgeUnknownPeer 从未订阅过的节点清理是空操作
func TestRegistry_PurgeUnknownPeer(t *testing.T) {
	r := newTopicRegistry()
	r.applyRemote("b", "news", true)

	assert.Empty(t, r.purgePeer("ghost"))
	assert.Equal(t, []types.PeerID{"b"}, r.subscribersOf("news"))

	// 对同一节点重复清理同样安全
	r.purgePeer("b")
	assert.Empty(t, r.purgePeer("b"))
	for _, topic := range []string{"news", "never-touched"} {
		assert.NotContains(t, r.subscribersOf(topic), types.PeerID("b"))
	}
}

func TestRegistry_ForwardTargets(t *testing.T) {
	r := newTopicRegistry()
	r.applyRemote("a", "t1", true)
	r.applyRemote("a", "t2", true)
	r.applyRemote("b", "t1", true)
	r.applyRemote("c", "t2", true)
	r.applyRemote("d", "other", true)

	t.Run("union de-duplicated by peer", func(t *testing.T) {
		got := r.forwardTargets([]string{"t1", "t2"})
		assert.Equal(t, []types.PeerID{"a", "b", "c"}, got)
	})

	t.Run("excludes sender and source", func(t *testing.T) {
		got := r.forwardTargets([]string{"t1", "t2"}, "a", "c")
		assert.Equal(t, []types.PeerID{"b"}, got)
	})

	t.Run("repeated topic", func(t *testing.T) {
		got := r.forwardTargets([]string{"t1", "t1"})
		assert.Equal(t, []types.PeerID{"a", "b"}, got)
	})

	t.Run("unknown topic", func(t *testing.T) {
		assert.Empty(t, r.forwardTargets([]string{"nobody"}))
	})
}

func TestRegistry_SubscribersSnapshot(t *testing.T) {
	r := newTopicRegistry()
	for i := 0; i < 10; i++ {
		r.applyRemote(types.PeerID(fmt.Sprintf("p%02d", i)), "news", true)
	}

	snap := r.subscribersOf("news")
	require.Len(t, snap, 10)

	// 快照与后续修改互不影响
	r.purgePeer("p00")
	assert.Len(t, snap, 10)
	assert.Len(t, r.subscribersOf("news"), 9)
}

func TestRegistry_Reset(t *testing.T) {
	r := newTopicRegistry()
	r.subscribeLocal("news")
	r.applyRemote("a", "news", true)

	r.reset()
	assert.Empty(t, r.localTopics())
	assert.Empty(t, r.subscribersOf("news"))
	assert.Empty(t, r.topicsOf("a"))
}

func contains(peers []types.PeerID, p types.PeerID) bool {
	for _, x := range peers {
		if x == p {
			return true
		}
	}
	return false
}

// isSubscribed 检查远端节点是否订阅了主题
func (r *topicRegistry) isSubscribed(peer types.PeerID, topic string) bool {
	_, ok := r.topics[topic][peer]
	return ok
}
