// Package interfaces 定义 go-floodsub 的公共接口
//
// 采用扁平命名（无层级前缀），一个接口文件对应一个实现目录：
//
//   - host.go      - 网络主机（协作者：流多路复用与协议协商）
//   - eventbus.go  - 事件总线（连接/断开事件）
//   - floodsub.go  - 洪泛发布订阅服务
//
// 实现位于 internal/ 下，本包不依赖任何实现。
package interfaces
