// Package main 提供 floodsub 命令行入口
//
// 从标准输入逐行读取消息并发布，收到的消息打印到标准输出：
//
//	floodsub -listen 0.0.0.0:4001 -topic chat
//	floodsub -listen 0.0.0.0:4002 -topic chat -peer <peerID>@127.0.0.1:4001
//
// 输入行格式为 "消息" 时发布到全部 -topic 主题，
// 格式为 "/pub 主题 消息" 时发布到指定主题。
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	floodsub "github.com/dep2p/go-floodsub"
	"github.com/dep2p/go-floodsub/config"
	pkgif "github.com/dep2p/go-floodsub/pkg/interfaces"
	"github.com/dep2p/go-floodsub/pkg/lib/log"
)

var logger = log.Logger("floodsub/cmd")

// stringList 可重复的字符串参数
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// 命令行参数覆盖配置文件中的同名设置
var (
	configFile   = flag.String("config", "", "JSON 配置文件路径")
	listenAddr   = flag.String("listen", "", "监听地址 host:port（覆盖配置文件）")
	identityFile = flag.String("identity", "", "身份密钥文件路径")
	metricsAddr  = flag.String("metrics", "", "Prometheus /metrics 监听地址，为空时不启用")
	queuePolicy  = flag.String("queue-policy", "", "出站队列满策略 drop-newest/drop-oldest")
	deliverLocal = flag.Bool("local", false, "本地订阅也接收本节点发布的消息")

	logFile  = flag.String("log", "", "日志文件路径")
	logLevel = flag.String("log-level", "", "日志级别 debug/info/warn/error")
	logJSON  = flag.Bool("log-json", false, "以 JSON 格式输出日志")
	fxDebug  = flag.Bool("fx-debug", false, "输出依赖注入日志")

	showVersion = flag.Bool("version", false, "显示版本信息")

	peers  stringList
	topics stringList
)

func init() {
	flag.Var(&peers, "peer", "启动时连接的节点 peerID@host:port（可重复）")
	flag.Var(&topics, "topic", "订阅的主题（可重复）")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(floodsub.VersionInfo())
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	closeLog, err := setupLogging(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	node, err := floodsub.New(
		floodsub.WithConfig(cfg),
		floodsub.WithRegisterer(reg),
		floodsub.WithFxDebug(*fxDebug),
	)
	if err != nil {
		return fmt.Errorf("创建节点失败: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("启动节点", "version", floodsub.Version, "commit", floodsub.GitCommit)
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	fmt.Printf("节点 ID: %s\n", node.ID())
	if addr := node.FullAddr(); addr != "" {
		fmt.Printf("连接地址: %s\n", addr)
	}

	if cfg.Metrics.Enabled {
		srv := serveMetrics(cfg.Metrics.ListenAddr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	for _, topic := range cfg.Topics {
		sub, err := node.Subscribe(topic)
		if err != nil {
			return fmt.Errorf("订阅 %s 失败: %w", topic, err)
		}
		go printMessages(ctx, sub)
	}

	inputDone := make(chan error, 1)
	go func() {
		inputDone <- publishLines(node, os.Stdin, cfg.Topics)
	}()

	select {
	case <-ctx.Done():
	case err := <-inputDone:
		if err != nil {
			return err
		}
		// 输入结束后继续转发和接收消息
		<-ctx.Done()
	}
	fmt.Println("\n收到退出信号，正在关闭...")
	return nil
}

// loadConfig 加载配置文件并应用命令行覆盖
func loadConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if *listenAddr != "" {
		cfg.Transport.ListenAddr = *listenAddr
	}
	if *identityFile != "" {
		cfg.Identity.KeyFile = *identityFile
	}
	if *metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddr = *metricsAddr
	}
	if *queuePolicy != "" {
		cfg.FloodSub.QueueFullPolicy = *queuePolicy
	}
	if *deliverLocal {
		cfg.FloodSub.DeliverLocalMessages = true
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logJSON {
		cfg.Log.JSON = true
	}
	cfg.KnownPeers = append(cfg.KnownPeers, peers...)
	cfg.Topics = append(cfg.Topics, topics...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging 按配置设置日志输出，返回关闭函数
func setupLogging(c config.LogConfig) (func(), error) {
	level, err := log.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	if c.File == "" {
		log.SetOutputWithLevel(os.Stderr, level, c.JSON)
		return func() {}, nil
	}

	f, err := os.OpenFile(c.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("打开日志文件失败: %w", err)
	}
	log.SetOutputWithLevel(f, level, c.JSON)
	return func() { _ = f.Close() }, nil
}

// serveMetrics 在后台启动 /metrics HTTP 服务
func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("指标服务退出", "error", err)
		}
	}()
	logger.Info("指标服务已启动", "addr", addr)
	return srv
}

// printMessages 打印订阅收到的消息，直到订阅取消
func printMessages(ctx context.Context, sub pkgif.TopicSubscription) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			return
		}
		fmt.Printf("[%s] %s: %s\n", msg.Topic, msg.Message.From.ShortString(), msg.Message.Data)
	}
}

// publishLines 逐行读取输入并发布，输入结束时返回 nil
func publishLines(node *floodsub.Node, r io.Reader, defaults []string) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		targets, body := defaults, line
		if rest, ok := strings.CutPrefix(line, "/pub "); ok {
			topic, msg, found := strings.Cut(rest, " ")
			if !found {
				fmt.Println("用法: /pub <主题> <消息>")
				continue
			}
			targets, body = []string{topic}, msg
		}
		if len(targets) == 0 {
			fmt.Println("没有订阅主题，请使用 /pub <主题> <消息>")
			continue
		}

		if _, err := node.Publish(targets, []byte(body)); err != nil {
			if errors.Is(err, floodsub.ErrNodeClosed) {
				return nil
			}
			logger.Warn("发布失败", "error", err)
		}
	}
	return scanner.Err()
}
