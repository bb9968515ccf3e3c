// Package floodsub 提供开箱即用的洪泛发布订阅节点
//
// Node 把身份、事件总线、TCP/yamux 主机和 floodsub 引擎组装为一个
// fx 应用。节点之间通过 peerID@host:port 地址直连，订阅同一主题的
// 节点会收到彼此发布的消息；每条消息在每个节点上只转发一次。
//
// 使用示例：
//
//	node, err := floodsub.New(
//	    floodsub.WithListenAddr("0.0.0.0:4001"),
//	    floodsub.WithKnownPeers("12D3KooW...@10.0.0.2:4001"),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := node.Start(ctx); err != nil {
//	    return err
//	}
//	defer node.Close()
//
//	sub, _ := node.Subscribe("news")
//	_, _ = node.Publish([]string{"news"}, []byte("hello"))
//	msg, _ := sub.Next(ctx)
package floodsub
