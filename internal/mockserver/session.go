package mockserver

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/hongjun500/writepapers/internal/protocol"
	"github.com/hongjun500/writepapers/internal/transport"
)

// wireEnvelope 服务端方向的信封不带 token
type wireEnvelope struct {
	Type    protocol.MessageType `json:"type"`
	Payload json.RawMessage      `json:"payload"`
}

// session 一条客户端连接
type session struct {
	id   string
	conn *transport.Conn

	mu       sync.RWMutex
	uid      int64
	token    string
	loggedIn bool
}

func (s *session) send(env *protocol.Envelope) error {
	body, err := json.Marshal(wireEnvelope{Type: env.Type, Payload: env.Payload})
	if err != nil {
		return transport.ErrEncoding.With("type="+env.Type, err)
	}
	frame, err := transport.Frame(body)
	if err != nil {
		return err
	}
	return s.conn.WriteAll(frame)
}

func (s *session) login(uid int64, token string) {
	s.mu.Lock()
	s.uid, s.token, s.loggedIn = uid, token, true
	s.mu.Unlock()
}

// authorized 已登录且 token 与登录时发放的一致
func (s *session) authorized(token *string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loggedIn || token == nil || *token != s.token {
		return 0, false
	}
	return s.uid, true
}

// sessionManager 在线会话：按连接 id 和 uid 两个索引
type sessionManager struct {
	byID  sync.Map // id -> *session
	byUID sync.Map // uid -> *session
	count int64
}

func (sm *sessionManager) add(s *session) {
	sm.byID.Store(s.id, s)
	atomic.AddInt64(&sm.count, 1)
}

func (sm *sessionManager) bind(uid int64, s *session) { sm.byUID.Store(uid, s) }

func (sm *sessionManager) remove(s *session) {
	if _, loaded := sm.byID.LoadAndDelete(s.id); !loaded {
		return
	}
	atomic.AddInt64(&sm.count, -1)
	s.mu.RLock()
	uid, loggedIn := s.uid, s.loggedIn
	s.mu.RUnlock()
	if loggedIn {
		sm.byUID.CompareAndDelete(uid, s)
	}
}

func (sm *sessionManager) online(uid int64) (*session, bool) {
	v, ok := sm.byUID.Load(uid)
	if !ok {
		return nil, false
	}
	return v.(*session), true
}

func (sm *sessionManager) all() []*session {
	out := make([]*session, 0)
	sm.byID.Range(func(_, v any) bool {
		out = append(out, v.(*session))
		return true
	})
	return out
}

// Count 在线连接数
func (sm *sessionManager) Count() int64 { return atomic.LoadInt64(&sm.count) }
