// Package floodsub 实现洪泛发布订阅协议
package floodsub

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "floodsub"

// 丢帧原因（frames_dropped_total 的 reason 标签）
const (
	dropQueueFull    = "queue_full"
	dropQueueClosed  = "queue_closed"
	dropEncode       = "encode"
	dropSubscriber   = "subscriber_full"
	dropNoSubscriber = "no_subscriber"
)

// metrics FloodSub 指标
//
// 每个 FloodSub 实例持有自己的一组收集器；
// Registerer 为 nil 时收集器照常计数但不对外暴露。
type metrics struct {
	published     prometheus.Counter
	delivered     prometheus.Counter
	forwarded     prometheus.Counter
	duplicates    prometheus.Counter
	framesDropped *prometheus.CounterVec
	peerClosed    *prometheus.CounterVec
	peers         prometheus.Gauge
	topics        prometheus.Gauge
	remoteTopics  prometheus.Gauge
}

// newMetrics 创建并注册指标
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_published_total",
			Help:      "Messages published by the local node.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_delivered_total",
			Help:      "Messages delivered to local subscriptions.",
		}),
		forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_forwarded_total",
			Help:      "Message copies queued towards remote peers.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_duplicates_total",
			Help:      "Inbound messages dropped by the duplicate filter.",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_dropped_total",
			Help:      "Frames or deliveries dropped, by reason.",
		}, []string{"reason"}),
		peerClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "peer_closed_total",
			Help:      "Peer handlers closed, by reason.",
		}, []string{"reason"}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "peers",
			Help:      "Peers with a live floodsub handler.",
		}),
		topics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "topics",
			Help:      "Topics the local node is subscribed to.",
		}),
		remoteTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "remote_topics",
			Help:      "Topics with at least one remote subscriber.",
		}),
	}

	if reg == nil {
		return m
	}

	m.published = register(reg, m.published).(prometheus.Counter)
	m.delivered = register(reg, m.delivered).(prometheus.Counter)
	m.forwarded = register(reg, m.forwarded).(prometheus.Counter)
	m.duplicates = register(reg, m.duplicates).(prometheus.Counter)
	m.framesDropped = register(reg, m.framesDropped).(*prometheus.CounterVec)
	m.peerClosed = register(reg, m.peerClosed).(*prometheus.CounterVec)
	m.peers = register(reg, m.peers).(prometheus.Gauge)
	m.topics = register(reg, m.topics).(prometheus.Gauge)
	m.remoteTopics = register(reg, m.remoteTopics).(prometheus.Gauge)
	return m
}

// register 注册收集器，已存在时复用已注册的实例
func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		logger.Warn("注册指标失败", "error", err)
	}
	return c
}

// frameDropped 记录一次丢帧
func (m *metrics) frameDropped(reason string) {
	m.framesDropped.WithLabelValues(reason).Inc()
}

// handlerClosed 记录一次处理器关闭
func (m *metrics) handlerClosed(reason error) {
	m.peerClosed.WithLabelValues(closeReasonLabel(reason)).Inc()
}

// closeReasonLabel 把关闭原因映射为低基数的标签值
func closeReasonLabel(reason error) string {
	switch {
	case reason == nil:
		return "local"
	case errors.Is(reason, ErrNegotiationFailed):
		return "negotiation_failed"
	case errors.Is(reason, ErrPeerClosedRemotely):
		return "closed_remotely"
	case errors.Is(reason, ErrMalformed), errors.Is(reason, ErrOversizedFrame):
		return "protocol_violation"
	case errors.Is(reason, ErrIoFailure):
		return "io_failure"
	case errors.Is(reason, ErrPeerDisconnected):
		return "disconnected"
	case errors.Is(reason, ErrHandlerReplaced):
		return "replaced"
	case errors.Is(reason, ErrClosed):
		return "engine_closed"
	default:
		return "other"
	}
}
