package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hongjun500/writepapers/internal/config"
	"github.com/hongjun500/writepapers/internal/mockserver"
	"github.com/hongjun500/writepapers/internal/transport"
)

// syncBuffer 订阅者和命令循环会同时写
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunClient_AutoLoginChatQuit(t *testing.T) {
	srv := mockserver.New(mockserver.Options{Log: zap.NewNop()})
	srv.AddUser("alice", "pw", "Alice")
	bob := srv.AddUser("bob", "pw", "Bob")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx, ln) }()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	cfgPath := filepath.Join(t.TempDir(), "client.xml")
	settings, err := config.Open(cfgPath)
	require.NoError(t, err)
	for k, v := range map[string]string{
		"server/ip":        host,
		"server/port":      port,
		"account/username": "alice",
		"account/password": "pw",
	} {
		require.NoError(t, settings.Set(k, v))
	}

	inR, inW := io.Pipe()
	defer inW.Close()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- runClient(ctx, cfgPath, false, inR, out) }()

	waitFor := func(s string) {
		t.Helper()
		require.Eventually(t, func() bool { return strings.Contains(out.String(), s) },
			3*time.Second, 10*time.Millisecond, "output so far:\n%s", out.String())
	}
	waitFor("登录成功，UID 1")
	waitFor("欢迎回来")

	_, err = fmt.Fprintln(inW, "hello?")
	require.NoError(t, err)
	waitFor("没有打开的会话")

	_, err = fmt.Fprintln(inW, "/chat "+strconv.FormatInt(bob, 10))
	require.NoError(t, err)
	_, err = fmt.Fprintln(inW, "hello bob")
	require.NoError(t, err)
	waitFor("hello bob")

	_, err = fmt.Fprintln(inW, "/nope")
	require.NoError(t, err)
	waitFor("command nope not found")

	_, err = fmt.Fprintln(inW, "/quit")
	require.NoError(t, err)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("client did not quit")
	}

	// 账号 uid 已回写到配置
	reloaded, err := config.Open(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "1", reloaded.GetDefault("account/uid", ""))
}

func TestRunClient_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, ln.Close())

	cfgPath := filepath.Join(t.TempDir(), "client.xml")
	settings, err := config.Open(cfgPath)
	require.NoError(t, err)
	require.NoError(t, settings.Set("server/ip", "127.0.0.1"))
	require.NoError(t, settings.Set("server/port", port))

	err = runClient(context.Background(), cfgPath, false, strings.NewReader(""), io.Discard)
	assert.ErrorIs(t, err, transport.ErrConnectionRefused)
}
