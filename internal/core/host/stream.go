package host

import (
	"time"

	"github.com/libp2p/go-yamux/v5"

	pkgif "github.com/dep2p/go-floodsub/pkg/interfaces"
	"github.com/dep2p/go-floodsub/pkg/types"
)

// stream 包装 yamux.Stream，实现 interfaces.Stream
type stream struct {
	s     *yamux.Stream
	conn  *peerConn
	proto types.ProtocolID
}

var _ pkgif.Stream = (*stream)(nil)

func (s *stream) Read(p []byte) (int, error) {
	return s.s.Read(p)
}

func (s *stream) Write(p []byte) (int, error) {
	return s.s.Write(p)
}

// Close 半关闭写方向并释放流
func (s *stream) Close() error {
	return s.s.Close()
}

// Reset 立即终止流，双向都不再可用
func (s *stream) Reset() error {
	return s.s.Reset()
}

func (s *stream) SetDeadline(t time.Time) error {
	return s.s.SetDeadline(t)
}

func (s *stream) Protocol() types.ProtocolID {
	return s.proto
}

func (s *stream) Conn() pkgif.Connection {
	return s.conn
}
