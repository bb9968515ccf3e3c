package floodsub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-floodsub/internal/core/host"
	"github.com/dep2p/go-floodsub/internal/core/identity"
	pkgif "github.com/dep2p/go-floodsub/pkg/interfaces"
	"github.com/dep2p/go-floodsub/pkg/lib/log"
	"github.com/dep2p/go-floodsub/pkg/types"
)

var logger = log.Logger("floodsub")

// NodeState 节点状态
type NodeState int

const (
	// StateIdle 已创建，未启动
	StateIdle NodeState = iota
	// StateStarting 启动中
	StateStarting
	// StateRunning 运行中
	StateRunning
	// StateClosed 已关闭，不可重新启动
	StateClosed
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	// initializeTimeout Fx App 启动超时
	initializeTimeout = 30 * time.Second

	// stopTimeout Fx App 停止超时
	stopTimeout = 10 * time.Second

	// maxParallelDials 连接已知节点的并发数
	maxParallelDials = 8
)

// Node 洪泛发布订阅节点
type Node struct {
	opts *options
	app  *fx.App

	id     *identity.Identity
	host   *host.Host
	pubsub pkgif.FloodSub

	mu    sync.Mutex
	state NodeState
}

// New 创建新节点，需要调用 Start 启动
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	node := &Node{opts: o}
	app, err := buildFxApp(o, node)
	if err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	node.app = app
	return node, nil
}

// Start 启动节点并连接配置的已知节点
//
// 已知节点连接失败只记录警告，不影响启动。
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateClosed:
		return ErrNodeClosed
	case StateIdle:
	default:
		return ErrAlreadyStarted
	}

	n.state = StateStarting
	logger.Info("正在启动节点", "peer", n.id.PeerID().ShortString())

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()
	if err := n.app.Start(initCtx); err != nil {
		n.state = StateClosed
		logger.Error("节点启动失败", "error", err)
		return fmt.Errorf("start fx app: %w", err)
	}
	n.state = StateRunning
	logger.Info("节点已启动", "peer", n.id.PeerID().ShortString(), "addrs", n.host.Addrs())

	if peers := n.opts.config.KnownPeers; len(peers) > 0 {
		connected, err := n.connectPeers(ctx, peers)
		if err != nil {
			logger.Warn("连接已知节点时出错", "error", err)
		}
		logger.Info("已知节点连接完成", "total", len(peers), "connected", len(connected))
	}
	return nil
}

// Close 关闭节点并释放所有资源
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateClosed {
		return nil
	}
	wasRunning := n.state == StateRunning
	n.state = StateClosed
	if !wasRunning {
		return nil
	}

	logger.Info("正在关闭节点")
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := n.app.Stop(ctx); err != nil {
		return fmt.Errorf("stop fx app: %w", err)
	}
	logger.Info("节点已关闭")
	return nil
}

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// running 检查节点是否可用
func (n *Node) running() error {
	switch n.State() {
	case StateRunning:
		return nil
	case StateClosed:
		return ErrNodeClosed
	default:
		return ErrNotStarted
	}
}

// ID 返回节点 ID
func (n *Node) ID() types.PeerID {
	return n.id.PeerID()
}

// Addrs 返回监听地址
func (n *Node) Addrs() []string {
	return n.host.Addrs()
}

// FullAddr 返回其他节点可直接连接的地址（peerID@host:port）
func (n *Node) FullAddr() string {
	return n.host.FullAddr()
}

// Host 返回底层主机
func (n *Node) Host() pkgif.Host {
	return n.host
}

// PubSub 返回 floodsub 服务
func (n *Node) PubSub() pkgif.FloodSub {
	return n.pubsub
}

// Connect 连接到指定地址
func (n *Node) Connect(ctx context.Context, addr string) (types.PeerID, error) {
	if err := n.running(); err != nil {
		return types.EmptyPeerID, err
	}
	return n.host.Connect(ctx, addr)
}

// ConnectPeers 并发连接多个地址，返回连接成功的节点
//
// 单个地址失败不影响其他地址，全部错误合并返回。
func (n *Node) ConnectPeers(ctx context.Context, addrs []string) ([]types.PeerID, error) {
	if err := n.running(); err != nil {
		return nil, err
	}
	return n.connectPeers(ctx, addrs)
}

func (n *Node) connectPeers(ctx context.Context, addrs []string) ([]types.PeerID, error) {
	peers := make([]types.PeerID, len(addrs))
	errs := make([]error, len(addrs))

	var g errgroup.Group
	g.SetLimit(maxParallelDials)
	for i, addr := range addrs {
		g.Go(func() error {
			p, err := n.host.Connect(ctx, addr)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", addr, err)
				return nil
			}
			peers[i] = p
			return nil
		})
	}
	_ = g.Wait()

	connected := make([]types.PeerID, 0, len(peers))
	for _, p := range peers {
		if p != types.EmptyPeerID {
			connected = append(connected, p)
		}
	}
	return connected, multierr.Combine(errs...)
}

// Subscribe 订阅主题
func (n *Node) Subscribe(topic string) (pkgif.TopicSubscription, error) {
	if err := n.running(); err != nil {
		return nil, err
	}
	return n.pubsub.Subscribe(topic)
}

// Unsubscribe 取消主题的全部本地订阅
func (n *Node) Unsubscribe(topic string) error {
	if err := n.running(); err != nil {
		return err
	}
	return n.pubsub.Unsubscribe(topic)
}

// Publish 发布消息到一个或多个主题
func (n *Node) Publish(topics []string, data []byte) (types.MessageID, error) {
	if err := n.running(); err != nil {
		return "", err
	}
	return n.pubsub.Publish(topics, data)
}
