// Package interfaces 定义 go-floodsub 公共接口
//
// 本文件定义 FloodSub 接口。
package interfaces

import (
	"context"

	"github.com/dep2p/go-floodsub/pkg/types"
)

// FloodSub 洪泛发布订阅服务接口
//
// 所有方法并发安全。发布是尽力而为的：调用方不会因为某个邻居
// 投递失败而收到错误。
type FloodSub interface {
	// Start 启动服务并注册协议处理器
	Start(ctx context.Context) error

	// Stop 停止服务并释放所有节点状态
	Stop() error

	// Subscribe 订阅主题，返回本地投递订阅
	Subscribe(topic string) (TopicSubscription, error)

	// Unsubscribe 取消本地对主题的全部订阅
	Unsubscribe(topic string) error

	// Publish 发布消息到一个或多个主题
	Publish(topics []string, data []byte) (types.MessageID, error)

	// Topics 返回本地订阅的主题
	Topics() []string

	// ListPeers 返回已知订阅了指定主题的节点
	ListPeers(topic string) []types.PeerID

	// PeerTopics 返回远端节点宣告订阅的主题（有序）
	PeerTopics(peer types.PeerID) []string

	// Peers 返回当前处于活动状态的节点
	Peers() []types.PeerID
}

// TopicSubscription 本地主题订阅
type TopicSubscription interface {
	// Topic 返回订阅的主题
	Topic() string

	// Next 阻塞直到下一条投递事件或 ctx 结束
	Next(ctx context.Context) (*types.Delivered, error)

	// Cancel 取消订阅
	Cancel()
}
