package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hongjun500/writepapers/internal/config"
	"github.com/hongjun500/writepapers/internal/dispatch"
	"github.com/hongjun500/writepapers/internal/event"
	"github.com/hongjun500/writepapers/internal/protocol"
	"github.com/hongjun500/writepapers/internal/storage"
)

type sent struct {
	Type    string
	Payload json.RawMessage
}

// fakeConn 记录发出的信封，队列由测试直接填充
type fakeConn struct {
	mu     sync.Mutex
	sent   []sent
	token  string
	queues *dispatch.QueueSet
	err    error
}

func newFakeConn() *fakeConn { return &fakeConn{queues: dispatch.NewQueueSet()} }

func (f *fakeConn) Send(msgType protocol.MessageType, payload any) error {
	if f.err != nil {
		return f.err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, sent{Type: msgType, Payload: raw})
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) SetToken(token string) {
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()
}

func (f *fakeConn) Queues() *dispatch.QueueSet { return f.queues }

func (f *fakeConn) last(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

// recorder 按顺序记录总线上的事件
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func record(bus *event.Bus, types ...event.Type) *recorder {
	r := &recorder{}
	for _, typ := range types {
		bus.Subscribe(typ, func(e event.Event) {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
		})
	}
	return r
}

func (r *recorder) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type())
	}
	return out
}

func (r *recorder) find(typ event.Type) event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type() == typ {
			return e
		}
	}
	return nil
}

var allEvents = []event.Type{
	event.TypeMessageDisplay, event.TypeContactsChanged, event.TypeNotice,
	event.TypeLoginResult, event.TypeRegisterResult, event.TypeWelcomeBack,
}

type fixture struct {
	app      *App
	conn     *fakeConn
	store    *storage.DB
	settings *config.File
	events   *recorder
	drainer  *Drainer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(filepath.Join(dir, "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	settings, err := config.Open(filepath.Join(dir, "client.xml"))
	require.NoError(t, err)

	conn := newFakeConn()
	bus := event.NewBus(zap.NewNop())
	a := New(conn, store, settings, bus, Options{
		Log: zap.NewNop(),
		Now: func() time.Time { return time.Unix(1700000000, 0) },
	})
	return &fixture{app: a, conn: conn, store: store, settings: settings, events: record(bus, allEvents...), drainer: NewDrainer(a)}
}

func mustEnv(t *testing.T, typ string, payload any) *protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, nil, payload)
	require.NoError(t, err)
	return env
}

func (f *fixture) login(t *testing.T, uid int64) {
	t.Helper()
	f.conn.queues.Result.Push(mustEnv(t, protocol.MsgLoginResult, map[string]any{"success": true, "uid": uid, "token": "tok"}))
	require.NoError(t, f.drainer.DrainOnce())
	require.True(t, f.app.LoggedIn())
}

func TestLoginResult_CapturesSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.app.Login("alice", "x"))
	out := f.conn.last(t)
	assert.Equal(t, protocol.MsgLogin, out.Type)
	assert.JSONEq(t, `{"username":"alice","password":"x"}`, string(out.Payload))

	// uid 以字符串形式到达也能识别
	f.conn.queues.Result.Push(mustEnv(t, protocol.MsgLoginResult, map[string]any{"success": true, "uid": "7", "token": "abc123"}))
	require.NoError(t, f.drainer.DrainOnce())

	uid, ok := f.app.UID()
	assert.True(t, ok)
	assert.Equal(t, int64(7), uid)
	assert.Equal(t, "abc123", f.conn.token)
	assert.Equal(t, "alice", f.app.Username())

	local, err := f.store.LocalUID()
	require.NoError(t, err)
	assert.Equal(t, int64(7), local)

	ev, ok := f.events.find(event.TypeLoginResult).(*event.LoginEvent)
	require.True(t, ok)
	assert.True(t, ev.Success)
	assert.Equal(t, int64(7), ev.UID)
}

func TestLoginResult_UpdatesSavedAccountUID(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.settings.Set("account/username", "alice"))
	require.NoError(t, f.settings.Set("account/password", "x"))
	require.NoError(t, f.app.Login("alice", "x"))
	f.login(t, 7)

	uid, err := f.settings.Get("account/uid")
	require.NoError(t, err)
	assert.Equal(t, "7", uid)
}

func TestLoginResult_Failure(t *testing.T) {
	f := newFixture(t)
	f.conn.queues.Result.Push(mustEnv(t, protocol.MsgLoginResult, map[string]any{"success": false}))
	require.NoError(t, f.drainer.DrainOnce())

	assert.False(t, f.app.LoggedIn())
	assert.Empty(t, f.conn.token)
	ev := f.events.find(event.TypeLoginResult).(*event.LoginEvent)
	assert.False(t, ev.Success)
	assert.NotNil(t, f.events.find(event.TypeNotice))
}

func TestLoginResult_ForeignDatabase(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetLocalUID(3))
	f.conn.queues.Result.Push(mustEnv(t, protocol.MsgLoginResult, map[string]any{"success": true, "uid": 7, "token": "t"}))
	f.conn.queues.Result.Push(mustEnv(t, protocol.MsgSendMessageResult, map[string]any{"success": true}))

	assert.ErrorIs(t, f.drainer.DrainOnce(), ErrForeignDatabase)
	notice := f.events.find(event.TypeNotice).(*event.NoticeEvent)
	assert.Equal(t, "error", notice.Level)
}

func TestRegisterResult_PersistsCredentials(t *testing.T) {
	f := newFixture(t)
	f.conn.queues.Result.Push(mustEnv(t, protocol.MsgRegisterResult,
		map[string]any{"success": true, "username": "bob", "password": "pw", "uid": 12}))
	require.NoError(t, f.drainer.DrainOnce())

	reopened, err := config.Open(f.settings.Path())
	require.NoError(t, err)
	for key, want := range map[string]string{"account/username": "bob", "account/password": "pw", "account/uid": "12"} {
		got, err := reopened.Get(key)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	ev := f.events.find(event.TypeRegisterResult).(*event.RegisterEvent)
	assert.True(t, ev.Success)
	assert.Equal(t, int64(12), ev.UID)

	f.conn.queues.Result.Push(mustEnv(t, protocol.MsgRegisterResult, map[string]any{"success": false}))
	require.NoError(t, f.drainer.DrainOnce())
	assert.Len(t, f.events.types(), 4) // register + notice 各两次
}

func TestDrainOnce_OrderOfflineMessageResult(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)
	f.events = record(f.app.Bus(), event.TypeContactsChanged, event.TypeMessageDisplay, event.TypeNotice)
	_, err := f.app.OpenChat(2)
	require.NoError(t, err)

	q := f.conn.queues
	q.Result.Push(mustEnv(t, protocol.MsgAddFriendResult,
		map[string]any{"success": true, "friend_uid": 2, "friend_username": "bob", "friend_name": "Bob"}))
	q.Message.Push(mustEnv(t, protocol.MsgNewMessage,
		map[string]any{"from_user": 2, "time": 1700000100.0, "type": "text", "message": "live"}))
	q.Offline.Push(json.RawMessage(`["offline",2,1,1700000050]`))

	require.NoError(t, f.drainer.DrainOnce())
	for name, n := range q.Lens() {
		assert.Zero(t, n, name)
	}

	assert.Equal(t, []event.Type{
		event.TypeContactsChanged, // offline
		event.TypeMessageDisplay,  // live，当前会话
		event.TypeContactsChanged,
		event.TypeNotice, // add_friend_result
		event.TypeContactsChanged,
	}, f.events.types())

	hist, err := f.store.ChatHistory(2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "offline", hist[0].Content)
	assert.Equal(t, int64(1), hist[1].ToUser)

	// 联系人已保存后，显示名使用昵称
	msg := f.events.find(event.TypeMessageDisplay).(*event.MessageEvent)
	assert.Equal(t, "live", msg.Content)
	assert.False(t, msg.Outgoing)
}

func TestNewMessage_NotCurrentChatAndNoContactUpdate(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)
	f.events = record(f.app.Bus(), allEvents...)

	f.conn.queues.Message.Push(mustEnv(t, protocol.MsgNewMessage,
		map[string]any{"from_user": "5", "time": 1.0, "type": "text", "message": "quiet", "need_update_contact": false}))
	require.NoError(t, f.drainer.DrainOnce())
	assert.Empty(t, f.events.types())

	hist, err := f.store.ChatHistory(5)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "quiet", hist[0].Content)
}

func TestDrainer_RunWakesOnPush(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.drainer.Run(ctx) }()

	f.conn.queues.Result.Push(mustEnv(t, protocol.MsgLoginResult, map[string]any{"success": true, "uid": 9, "token": "t9"}))
	require.Eventually(t, f.app.LoggedIn, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("drainer did not stop")
	}
}

func TestSendText(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.app.SendText(2, "hi"), ErrNotLoggedIn)
	f.login(t, 1)
	assert.ErrorIs(t, f.app.SendText(2, "   "), ErrEmptyMessage)

	require.NoError(t, f.app.SendText(2, "hello"))
	out := f.conn.last(t)
	assert.Equal(t, protocol.MsgSendMessage, out.Type)
	assert.JSONEq(t, `{"to_user":"2","message":"hello","type":"text"}`, string(out.Payload))

	last, err := f.store.LastChatMessage(1, 2)
	require.NoError(t, err)
	assert.Equal(t, "hello", last.Content)
	assert.Equal(t, int64(1), last.FromUser)

	msg := f.events.find(event.TypeMessageDisplay).(*event.MessageEvent)
	assert.True(t, msg.Outgoing)
	assert.Equal(t, "我", msg.FromName)
}

func TestSendImage(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)
	dir := t.TempDir()

	big := filepath.Join(dir, "big.png")
	require.NoError(t, os.WriteFile(big, make([]byte, MaxImageSize+1), 0o644))
	_, err := f.app.SendImage(2, big)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	empty := filepath.Join(dir, "empty.png")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err = f.app.SendImage(2, empty)
	assert.ErrorIs(t, err, ErrImageEmpty)

	ok := filepath.Join(dir, "ok.png")
	require.NoError(t, os.WriteFile(ok, []byte("hello"), 0o644))
	done, err := f.app.SendImage(2, ok)
	require.NoError(t, err)
	require.NoError(t, <-done)
	f.app.Wait()

	out := f.conn.last(t)
	assert.JSONEq(t, `{"to_user":"2","message":"aGVsbG8=","type":"image"}`, string(out.Payload))

	sums, err := f.app.ContactSummaries()
	require.NoError(t, err)
	assert.Empty(t, sums) // 2 还不是联系人
	require.NoError(t, f.store.SaveContact(storage.Contact{ID: 2, Username: "bob"}))
	sums, err = f.app.ContactSummaries()
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "未知", sums[0].Name)
	assert.Equal(t, "[图片]", sums[0].LastMessage)
	assert.Equal(t, int64(1700000000), sums[0].LastTime.Unix())
}

func TestAddFriend(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.app.AddFriend("42", "secret"))
	assert.JSONEq(t, `{"friend_id_type":"uid","friend_id":42,"verify_token":"secret"}`, string(f.conn.last(t).Payload))

	require.NoError(t, f.app.AddFriend("carol", "s"))
	assert.JSONEq(t, `{"friend_id_type":"username","friend_id":"carol","verify_token":"s"}`, string(f.conn.last(t).Payload))

	require.NoError(t, f.store.SaveContact(storage.Contact{ID: 42, Username: "dave"}))
	assert.ErrorIs(t, f.app.AddFriend("42", ""), ErrAlreadyFriend)
	assert.ErrorIs(t, f.app.AddFriend("dave", ""), ErrAlreadyFriend)
}

func TestFriendToken(t *testing.T) {
	f := newFixture(t)
	f.conn.queues.FriendToken.Push(mustEnv(t, protocol.MsgFriendTokenResult, map[string]any{"friend_token": "12345678"}))

	tok, err := f.app.FetchFriendToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "12345678", tok)
	assert.Equal(t, protocol.MsgGetFriendToken, f.conn.last(t).Type)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.app.FetchFriendToken(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Error(t, f.app.ChangeFriendToken(" "))
	require.NoError(t, f.app.ChangeFriendToken("abcd"))
	assert.JSONEq(t, `{"new_friend_token":"abcd"}`, string(f.conn.last(t).Payload))
}

func TestWaitWelcomeBack(t *testing.T) {
	f := newFixture(t)
	f.conn.queues.WelcomeBack.Push(mustEnv(t, protocol.MsgWelcomeBack, map[string]any{"message": "欢迎回来"}))

	msg, err := f.app.WaitWelcomeBack(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "欢迎回来", msg)
	ev := f.events.find(event.TypeWelcomeBack).(*event.WelcomeEvent)
	assert.Equal(t, "欢迎回来", ev.Message)
}

func TestOpenChat(t *testing.T) {
	f := newFixture(t)
	_, err := f.app.OpenChat(2)
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	f.login(t, 1)
	require.NoError(t, f.store.SaveContact(storage.Contact{ID: 2, Username: "bob", Name: "Bob", Mem: "老鲍"}))
	require.NoError(t, f.store.SaveChatMessage(storage.ChatMessage{FromUser: 1, ToUser: 2, Content: "a", SendTime: 1}))
	require.NoError(t, f.store.SaveChatMessage(storage.ChatMessage{FromUser: 2, ToUser: 1, Content: "b", SendTime: 2}))

	hist, err := f.app.OpenChat(2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.app.CurrentChat())
	require.Len(t, hist, 2)
	assert.True(t, hist[0].Outgoing)
	assert.Equal(t, "我", hist[0].Sender)
	assert.False(t, hist[1].Outgoing)
	assert.Equal(t, "老鲍", hist[1].Sender)

	f.app.CloseChat()
	assert.Zero(t, f.app.CurrentChat())
}

func TestRequestOffline(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.app.RequestOffline())
	out := f.conn.last(t)
	assert.Equal(t, protocol.MsgGetOfflineMessages, out.Type)
	assert.JSONEq(t, `{}`, string(out.Payload))
}
