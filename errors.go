package floodsub

import "errors"

var (
	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("floodsub: node closed")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("floodsub: node already started")

	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("floodsub: node not started")
)
