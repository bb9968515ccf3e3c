package protocolids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestProtocolIDs_Format 协议 ID 必须符合 /name/version 格式
func TestProtocolIDs_Format(t *testing.T) {
	for _, id := range []string{string(FloodSub), string(Handshake), string(Yamux)} {
		assert.True(t, strings.HasPrefix(id, "/"), id)
		assert.GreaterOrEqual(t, strings.Count(id, "/"), 2, id)
	}
}

// TestFloodSub_Interop floodsub 协议 ID 与 libp2p 实现一致
func TestFloodSub_Interop(t *testing.T) {
	assert.Equal(t, "/floodsub/1.0.0", FloodSub.String())
}
