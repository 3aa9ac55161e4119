package app

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hongjun500/writepapers/internal/client"
	"github.com/hongjun500/writepapers/internal/config"
	"github.com/hongjun500/writepapers/internal/event"
	"github.com/hongjun500/writepapers/internal/protocol"
	"github.com/hongjun500/writepapers/internal/storage"
	"github.com/hongjun500/writepapers/internal/transport"
)

// 登录全流程：login 发出 -> login_result 到达结果队列 -> 一轮消费后会话建立
func TestEndToEnd_Login(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	cl := client.New(transport.NewConn(c1), client.Options{Log: zap.NewNop()})
	defer cl.Close()

	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "chat.db"))
	require.NoError(t, err)
	defer store.Close()
	settings, err := config.Open(filepath.Join(dir, "client.xml"))
	require.NoError(t, err)
	a := New(cl, store, settings, event.NewBus(zap.NewNop()), Options{Log: zap.NewNop()})
	drainer := NewDrainer(a)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- cl.Run(ctx) }()

	sendDone := make(chan error, 1)
	go func() { sendDone <- a.Login("alice", "x") }()

	fr := transport.NewFrameReader(c2)
	body, err := fr.Next()
	require.NoError(t, err)
	require.NoError(t, <-sendDone)
	login, err := transport.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, protocol.MsgLogin, login.Type)
	assert.Equal(t, protocol.LoginToken, login.TokenValue())
	assert.JSONEq(t, `{"username":"alice","password":"x"}`, string(login.Payload))

	frame, err := transport.Encode(&protocol.Envelope{
		Type:    protocol.MsgLoginResult,
		Payload: []byte(`{"success":true,"uid":7,"token":"abc123"}`),
	})
	require.NoError(t, err)
	_, err = c2.Write(frame)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return cl.Queues().Result.Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, drainer.DrainOnce())

	assert.Zero(t, cl.Queues().Result.Len())
	require.NotNil(t, cl.Token())
	assert.Equal(t, "abc123", *cl.Token())
	uid, ok := a.UID()
	assert.True(t, ok)
	assert.Equal(t, int64(7), uid)

	// 之后的请求带上会话 token
	go func() { sendDone <- a.RequestOffline() }()
	body, err = fr.Next()
	require.NoError(t, err)
	require.NoError(t, <-sendDone)
	next, err := transport.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, "abc123", next.TokenValue())

	cancel()
	select {
	case err := <-runDone:
		assert.ErrorIs(t, err, transport.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not stop")
	}
}
