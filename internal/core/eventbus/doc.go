// Package eventbus 实现进程内事件总线
//
// 事件按 Go 类型路由：Subscribe(new(T)) 接收所有 Emit(T{...}) 的事件。
// 主机通过它发布 EvtPeerConnected / EvtPeerDisconnected，floodsub 订阅
// 这两类事件来创建和清理节点处理器。
//
//	bus := eventbus.NewBus()
//	sub, _ := bus.Subscribe(new(types.EvtPeerConnected), eventbus.BufSize(64))
//	defer sub.Close()
//
//	em, _ := bus.Emitter(new(types.EvtPeerConnected))
//	em.Emit(types.EvtPeerConnected{PeerID: p})
//
// 订阅者缓冲区满时事件被丢弃（并按节流频率告警），发射方永不阻塞。
package eventbus
