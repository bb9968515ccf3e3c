// Package floodsub 实现洪泛发布订阅协议（/floodsub/1.0.0）
//
// 节点宣告自己感兴趣的主题；发布到某个主题的消息会被洪泛给所有已知
// 对该主题感兴趣的邻居，每个节点对同一条消息的每个邻居最多转发一次。
//
// # 组成
//
//   - codec.go: 长度前缀 + protobuf 的线路帧编解码，兼容 libp2p floodsub
//   - seen.go: 固定容量的去重过滤器（FIFO 环 + 哈希索引）
//   - registry.go: 本地订阅与 topic -> peers 网格状态
//   - peer.go / queue.go: 每个节点的连接处理器状态机与有界出站队列
//   - floodsub.go: 引擎，单协程 processLoop 串行化全部状态变更
//
// # 转发规则
//
// 收到新消息时，目标集合为消息各主题订阅者的并集（按节点去重），
// 排除直接发送者和消息来源。重复消息静默丢弃。
//
// # 使用示例
//
//	fs, err := floodsub.New(host)
//	if err != nil {
//	    return err
//	}
//	if err := fs.Start(ctx); err != nil {
//	    return err
//	}
//	defer fs.Stop()
//
//	sub, _ := fs.Subscribe("news")
//	fs.Publish([]string{"news"}, []byte("hello"))
//	d, _ := sub.Next(ctx)
package floodsub
