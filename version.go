package floodsub

import "fmt"

// 版本信息，GitCommit 和 BuildDate 通过 -ldflags 注入
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// VersionInfo 返回完整版本字符串
func VersionInfo() string {
	return fmt.Sprintf("go-floodsub %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
