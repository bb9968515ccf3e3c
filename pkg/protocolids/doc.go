// Package protocolids 定义 go-floodsub 使用的协议 ID 注册表。
//
// 所有模块、测试和 CLI 工具在需要协议 ID 时，必须引用本包中的常量，
// 禁止在其他位置定义字面量。
//
// 协议 ID 需与已部署的 libp2p floodsub 实现保持一致，这是跨实现
// 互操作的硬性边界。
package protocolids
