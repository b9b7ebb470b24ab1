package stream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/biostream/internal/testutil"
)

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	server, err := net.ListenUDP("udp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	return server
}

func readPacket(t *testing.T, conn *net.UDPConn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 64*1024)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return buf[:n]
}

func TestUDPSinkSendsDeclarationThenRows(t *testing.T) {
	testutil.CaptureLogs(t)
	server := listenUDP(t)

	sink, err := NewUDPSink(server.LocalAddr().String(), JSONCodec{}, UDPOptions{})
	require.NoError(t, err)
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink.Start(ctx)

	require.NoError(t, sink.Declare(Info{Name: "EmotivLSL_FacialExpression", ChannelCount: 2}))
	require.NoError(t, sink.PublishRow([]float64{1, 0}))

	decl, err := JSONCodec{}.Decode(readPacket(t, server))
	require.NoError(t, err)
	assert.Equal(t, KindDeclare, decl.GetFields()["kind"].GetStringValue())

	row, err := JSONCodec{}.Decode(readPacket(t, server))
	require.NoError(t, err)
	values, err := RowValues(row)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, values)
	assert.Equal(t, "EmotivLSL_FacialExpression", row.GetFields()["stream"].GetStringValue())

	require.Eventually(t, func() bool { return sink.Stats().Sent == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, UDPStats{
		Stream: "EmotivLSL_FacialExpression",
		Target: server.LocalAddr().String(),
		Sent:   2,
	}, sink.Stats())
}

func TestUDPSinkReannounces(t *testing.T) {
	testutil.CaptureLogs(t)
	server := listenUDP(t)

	sink, err := NewUDPSink(server.LocalAddr().String(), ProtobufCodec{}, UDPOptions{AnnounceInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	defer sink.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink.Start(ctx)

	require.NoError(t, sink.Declare(Info{Name: "s"}))
	for i := 0; i < 2; i++ {
		msg, err := ProtobufCodec{}.Decode(readPacket(t, server))
		require.NoError(t, err)
		assert.Equal(t, KindDeclare, msg.GetFields()["kind"].GetStringValue())
	}
}

func TestUDPSinkDropsWhenQueueFull(t *testing.T) {
	server := listenUDP(t)
	sink, err := NewUDPSink(server.LocalAddr().String(), ProtobufCodec{}, UDPOptions{QueueSize: 1})
	require.NoError(t, err)
	defer sink.Close()

	// Not started: the declaration fills the queue.
	require.NoError(t, sink.Declare(Info{Name: "s"}))
	assert.ErrorIs(t, sink.PublishRow([]float64{1}), ErrDropped)
	assert.Equal(t, uint64(1), sink.Stats().Dropped)
	assert.Equal(t, uint64(0), sink.Stats().Sent)
}

func TestUDPSinkClose(t *testing.T) {
	server := listenUDP(t)
	sink, err := NewUDPSink(server.LocalAddr().String(), ProtobufCodec{}, UDPOptions{})
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.ErrorIs(t, sink.PublishRow([]float64{1}), ErrClosed)
}

func TestNewUDPSinkBadTarget(t *testing.T) {
	_, err := NewUDPSink("not a target", ProtobufCodec{}, UDPOptions{})
	assert.Error(t, err)
}
