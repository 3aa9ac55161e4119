package mockserver

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hongjun500/writepapers/internal/protocol"
	"github.com/hongjun500/writepapers/internal/transport"
	"github.com/hongjun500/writepapers/pkg/logger"
)

// DefaultFriendToken 新用户的好友口令
const DefaultFriendToken = "12345678"

type Options struct {
	Log *zap.Logger
	// HeartbeatInterval 大于 0 时定期向每个连接发送心跳
	HeartbeatInterval time.Duration
	// Offline 为 nil 时离线消息只存在内存里
	Offline OfflineStore
}

type user struct {
	uid         int64
	username    string
	password    string
	name        string
	friendToken string
}

// Server 开发和测试用的服务端，说同一套长度前缀 JSON 协议。账号只在内存里
type Server struct {
	opts     Options
	log      *zap.Logger
	factory  *protocol.MessageFactory
	sessions sessionManager

	mu      sync.Mutex
	users   map[string]*user // username -> user
	byUID   map[int64]*user
	nextUID int64
	offline OfflineStore
}

func New(opts Options) *Server {
	offline := opts.Offline
	if offline == nil {
		offline = newMemoryOffline()
	}
	return &Server{
		opts:    opts,
		log:     logger.Or(opts.Log).Named("mockserver"),
		factory: protocol.NewMessageFactory(),
		users:   make(map[string]*user),
		byUID:   make(map[int64]*user),
		nextUID: 1,
		offline: offline,
	}
}

// AddUser 预置账号，返回分配的 uid
func (s *Server) AddUser(username, password, name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, password, name).uid
}

func (s *Server) addUserLocked(username, password, name string) *user {
	u := &user{uid: s.nextUID, username: username, password: password, name: name, friendToken: DefaultFriendToken}
	s.nextUID++
	s.users[username] = u
	s.byUID[u.uid] = u
	return u
}

// Online 在线连接数
func (s *Server) Online() int64 { return s.sessions.Count() }

// ListenAndServe 监听 addr 直到 ctx 结束
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在已有的 listener 上接受连接，ctx 结束时关闭 listener 并返回 nil
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("tcp_listen", zap.String("addr", ln.Addr().String()))
	go func() { <-ctx.Done(); _ = ln.Close() }()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Warn("tcp_accept_error", zap.Error(err))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, nc)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, nc net.Conn) {
	sess := &session{id: uuid.NewString(), conn: transport.NewConn(nc)}
	log := s.log.With(zap.String("session", sess.id), zap.String("remote", sess.conn.RemoteAddr()))
	s.sessions.add(sess)
	defer func() {
		s.sessions.remove(sess)
		_ = sess.conn.Close()
		log.Info("session_closed")
	}()
	log.Info("session_open")

	var hb sync.WaitGroup
	defer hb.Wait()
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	context.AfterFunc(connCtx, func() { _ = sess.conn.Close() })

	if err := sess.send(s.factory.CreateServerHello()); err != nil {
		log.Warn("hello_failed", zap.Error(err))
		return
	}
	if s.opts.HeartbeatInterval > 0 {
		hb.Add(1)
		go func() {
			defer hb.Done()
			s.heartbeat(connCtx, sess, log)
		}()
	}

	fr := transport.NewFrameReader(sess.conn)
	for {
		body, err := fr.Next()
		if err != nil {
			if errors.Is(err, transport.ErrTruncatedFrame) {
				log.Warn("frame_length_mismatch", zap.Error(err))
				continue
			}
			if !errors.Is(err, transport.ErrClosed) {
				log.Debug("read_end", zap.Error(err))
			}
			return
		}
		env, err := transport.Decode(body)
		if err != nil {
			log.Warn("decode_failed", zap.Error(err), zap.ByteString("raw", body))
			continue
		}
		if err := s.handle(connCtx, sess, env, log); err != nil {
			log.Warn("write_failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) heartbeat(ctx context.Context, sess *session, log *zap.Logger) {
	t := time.NewTicker(s.opts.HeartbeatInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := sess.send(s.factory.CreateHeartbeat()); err != nil {
				log.Debug("heartbeat_failed", zap.Error(err))
				return
			}
		}
	}
}

// newToken 会话 token
func newToken() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
