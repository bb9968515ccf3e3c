// Package floodsub 实现洪泛发布订阅协议
package floodsub

import (
	"sort"

	"github.com/dep2p/go-floodsub/pkg/types"
)

// topicRegistry 主题注册表与 Mesh 状态
//
// 维护三张表：
//   - local:  本地订阅的主题
//   - topics: topic -> 宣告订阅了该主题的远端节点
//   - peers:  peer -> 该节点订阅的主题（反向索引，用于断开时清理）
//
// 远端订阅是"宣告"的，不做验证：注册表信任节点对自身兴趣的声明。
// 注册表不加锁，只能由 FloodSub 的 processLoop 访问（单写者）。
type topicRegistry struct {
	local  map[string]struct{}
	topics map[string]map[types.PeerID]struct{}
	peers  map[types.PeerID]map[string]struct{}
}

// newTopicRegistry 创建主题注册表
func newTopicRegistry() *topicRegistry {
	return &topicRegistry{
		local:  make(map[string]struct{}),
		topics: make(map[string]map[types.PeerID]struct{}),
		peers:  make(map[types.PeerID]map[string]struct{}),
	}
}

// ============================================================================
//                              本地订阅
// ============================================================================

// subscribeLocal 本地订阅主题，返回状态是否发生变化
func (r *topicRegistry) subscribeLocal(topic string) bool {
	if _, ok := r.local[topic]; ok {
		return false
	}
	r.local[topic] = struct{}{}
	return true
}

// unsubscribeLocal 本地取消订阅，返回状态是否发生变化
func (r *topicRegistry) unsubscribeLocal(topic string) bool {
	if _, ok := r.local[topic]; !ok {
		return false
	}
	delete(r.local, topic)
	return true
}

// isLocallySubscribed 检查本地是否订阅了主题
func (r *topicRegistry) isLocallySubscribed(topic string) bool {
	_, ok := r.local[topic]
	return ok
}

// localTopics 返回本地订阅的全部主题（有序）
func (r *topicRegistry) localTopics() []string {
	out := make([]string, 0, len(r.local))
	for t := range r.local {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ============================================================================
//                              远端订阅
// ============================================================================

// applyRemote 应用远端节点的订阅变更，幂等
//
// 返回状态是否发生变化。
func (r *topicRegistry) applyRemote(peer types.PeerID, topic string, subscribe bool) bool {
	if subscribe {
		tmap, ok := r.topics[topic]
		if !ok {
			tmap = make(map[types.PeerID]struct{})
			r.topics[topic] = tmap
		}
		if _, ok := tmap[peer]; ok {
			return false
		}
		tmap[peer] = struct{}{}

		pmap, ok := r.peers[peer]
		if !ok {
			pmap = make(map[string]struct{})
			r.peers[peer] = pmap
		}
		pmap[topic] = struct{}{}
		return true
	}

	tmap, ok := r.topics[topic]
	if !ok {
		return false
	}
	if _, ok := tmap[peer]; !ok {
		return false
	}
	delete(tmap, peer)
	if len(tmap) == 0 {
		delete(r.topics, topic)
	}
	if pmap, ok := r.peers[peer]; ok {
		delete(pmap, topic)
		if len(pmap) == 0 {
			delete(r.peers, peer)
		}
	}
	return true
}

// purgePeer 从所有主题中移除节点
//
// 每次断开都必须无条件调用；节点从未订阅任何主题时为空操作。
// 返回节点离开的主题（有序）。
func (r *topicRegistry) purgePeer(peer types.PeerID) []string {
	pmap := r.peers[peer]
	delete(r.peers, peer)

	left := make([]string, 0, len(pmap))
	for topic := range pmap {
		left = append(left, topic)
	}

	// 反向索引之外再扫一遍主题表，保证不变式在任何情况下成立
	for topic, tmap := range r.topics {
		if _, ok := tmap[peer]; !ok {
			continue
		}
		delete(tmap, peer)
		if _, counted := pmap[topic]; !counted {
			left = append(left, topic)
		}
		if len(tmap) == 0 {
			delete(r.topics, topic)
		}
	}

	sort.Strings(left)
	return left
}

// ============================================================================
//                              查询
// ============================================================================

// subscribersOf 返回订阅了主题的远端节点快照（有序）
func (r *topicRegistry) subscribersOf(topic string) []types.PeerID {
	tmap := r.topics[topic]
	out := make([]types.PeerID, 0, len(tmap))
	for p := range tmap {
		out = append(out, p)
	}
	sortPeers(out)
	return out
}

// forwardTargets 计算转发目标
//
// 返回所有主题订阅者的并集（按节点去重），并排除 exclude 中的节点。
// 同时订阅了多个主题的节点只出现一次。
func (r *topicRegistry) forwardTargets(topics []string, exclude ...types.PeerID) []types.PeerID {
	seen := make(map[types.PeerID]struct{})
	for _, p := range exclude {
		seen[p] = struct{}{}
	}

	var out []types.PeerID
	for _, topic := range topics {
		for p := range r.topics[topic] {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sortPeers(out)
	return out
}

// topicsOf 返回远端节点订阅的主题（有序）
func (r *topicRegistry) topicsOf(peer types.PeerID) []string {
	pmap := r.peers[peer]
	out := make([]string, 0, len(pmap))
	for t := range pmap {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// knownTopics 返回存在远端订阅者的主题数
func (r *topicRegistry) knownTopics() int {
	return len(r.topics)
}

// reset 清空全部状态（服务停止时调用）
func (r *topicRegistry) reset() {
	r.local = make(map[string]struct{})
	r.topics = make(map[string]map[types.PeerID]struct{})
	r.peers = make(map[types.PeerID]map[string]struct{})
}

func sortPeers(peers []types.PeerID) {
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
}
