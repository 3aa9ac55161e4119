package mockserver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/writepapers/internal/protocol"
)

// authed 需要 token 的请求
var authed = map[protocol.MessageType]protocol.MessageType{
	protocol.MsgSendMessage:        protocol.MsgSendMessageResult,
	protocol.MsgGetOfflineMessages: "",
	protocol.MsgAddFriend:          protocol.MsgAddFriendResult,
	protocol.MsgGetFriendToken:     protocol.MsgFriendTokenResult,
	protocol.MsgChangeFriendToken:  "change_friend_token_result",
}

type failure struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// handle 处理一个请求。返回错误表示写回当前连接失败
func (s *Server) handle(ctx context.Context, sess *session, env *protocol.Envelope, log *zap.Logger) error {
	log = log.With(zap.String("type", env.Type))
	switch env.Type {
	case protocol.MsgLogin:
		return s.onLogin(sess, env, log)
	case protocol.MsgRegisterAccount:
		return s.onRegister(sess, env, log)
	case protocol.MsgHeartbeat:
		var p protocol.HeartbeatPayload
		_ = env.DecodePayload(&p)
		log.Debug("heartbeat", zap.String("content", p.Content))
		return nil
	}

	reply, ok := authed[env.Type]
	if !ok {
		log.Warn("unknown_envelope_type")
		return nil
	}
	uid, ok := sess.authorized(env.Token)
	if !ok {
		log.Warn("unauthorized", zap.Bool("has_token", env.Token != nil))
		if reply == "" {
			return nil
		}
		return sess.send(s.factory.CreateResult(reply, failure{Reason: "unauthorized"}))
	}

	switch env.Type {
	case protocol.MsgSendMessage:
		return s.onSendMessage(ctx, sess, uid, env, log)
	case protocol.MsgGetOfflineMessages:
		msgs, err := s.offline.Take(ctx, uid)
		if err != nil {
			log.Error("offline_take_failed", zap.Error(err))
		}
		return sess.send(s.factory.CreateOfflineMessages(msgs))
	case protocol.MsgAddFriend:
		return s.onAddFriend(sess, uid, env, log)
	case protocol.MsgGetFriendToken:
		s.mu.Lock()
		token := s.byUID[uid].friendToken
		s.mu.Unlock()
		return sess.send(s.factory.CreateFriendTokenResult(token))
	default: // change_friend_token
		var p protocol.ChangeFriendTokenPayload
		if err := env.DecodePayload(&p); err != nil || p.NewFriendToken == "" {
			return sess.send(s.factory.CreateResult(reply, failure{Reason: "bad payload"}))
		}
		s.mu.Lock()
		s.byUID[uid].friendToken = p.NewFriendToken
		s.mu.Unlock()
		return sess.send(s.factory.CreateResult(reply, failure{Success: true}))
	}
}

func (s *Server) onLogin(sess *session, env *protocol.Envelope, log *zap.Logger) error {
	var p protocol.CredentialsPayload
	if err := env.DecodePayload(&p); err != nil {
		log.Warn("bad_payload", zap.Error(err))
		return sess.send(s.factory.CreateLoginResult(false, 0, ""))
	}
	s.mu.Lock()
	u, ok := s.users[p.Username]
	s.mu.Unlock()
	if !ok || u.password != p.Password {
		log.Info("login_failed", zap.String("username", p.Username))
		return sess.send(s.factory.CreateLoginResult(false, 0, ""))
	}

	token := newToken()
	sess.login(u.uid, token)
	s.sessions.bind(u.uid, sess)
	log.Info("login", zap.Int64("uid", u.uid))
	if err := sess.send(s.factory.CreateLoginResult(true, protocol.UID(u.uid), token)); err != nil {
		return err
	}
	return sess.send(s.factory.CreateWelcomeBack(fmt.Sprintf("欢迎回来，%s", u.name)))
}

func (s *Server) onRegister(sess *session, env *protocol.Envelope, log *zap.Logger) error {
	var p protocol.CredentialsPayload
	if err := env.DecodePayload(&p); err != nil || p.Username == "" || p.Password == "" {
		return sess.send(s.factory.CreateRegisterResult(protocol.RegisterResult{Username: p.Username}))
	}
	s.mu.Lock()
	if _, exists := s.users[p.Username]; exists {
		s.mu.Unlock()
		log.Info("register_conflict", zap.String("username", p.Username))
		return sess.send(s.factory.CreateRegisterResult(protocol.RegisterResult{Username: p.Username}))
	}
	u := s.addUserLocked(p.Username, p.Password, p.Username)
	s.mu.Unlock()
	log.Info("register", zap.Int64("uid", u.uid), zap.String("username", u.username))
	return sess.send(s.factory.CreateRegisterResult(protocol.RegisterResult{
		Success:  true,
		Username: u.username,
		Password: u.password,
		UID:      protocol.UID(u.uid),
	}))
}

func (s *Server) onSendMessage(ctx context.Context, sess *session, from int64, env *protocol.Envelope, log *zap.Logger) error {
	var p protocol.SendMessagePayload
	if err := env.DecodePayload(&p); err != nil {
		return sess.send(s.factory.CreateSendMessageResult(false))
	}
	to, ok := protocol.ParseUID(p.ToUser)
	s.mu.Lock()
	_, known := s.byUID[int64(to)]
	s.mu.Unlock()
	if !ok || !known {
		log.Info("unknown_recipient", zap.String("to_user", p.ToUser))
		return sess.send(s.factory.CreateSendMessageResult(false))
	}
	ctype := p.Type
	if ctype == "" {
		ctype = protocol.ContentText
	}

	delivered := false
	if peer, online := s.sessions.online(int64(to)); online {
		if err := peer.send(s.factory.CreateNewMessage(protocol.UID(from), ctype, p.Message)); err != nil {
			log.Debug("deliver_failed", zap.Int64("to", int64(to)), zap.Error(err))
		} else {
			delivered = true
		}
	}
	if !delivered {
		err := s.offline.Push(ctx, protocol.OfflineMessage{
			Content:  p.Message,
			FromUser: protocol.UID(from),
			ToUser:   to,
			Time:     float64(time.Now().UnixNano()) / 1e9,
		})
		if err != nil {
			log.Error("offline_push_failed", zap.Error(err))
			return sess.send(s.factory.CreateSendMessageResult(false))
		}
	}
	log.Debug("message", zap.Int64("from", from), zap.Int64("to", int64(to)), zap.Bool("online", delivered))
	return sess.send(s.factory.CreateSendMessageResult(true))
}

func (s *Server) onAddFriend(sess *session, self int64, env *protocol.Envelope, log *zap.Logger) error {
	var p protocol.AddFriendPayload
	if err := env.DecodePayload(&p); err != nil {
		return sess.send(s.factory.CreateAddFriendResult(protocol.AddFriendResult{}))
	}

	s.mu.Lock()
	target := s.lookupLocked(p.FriendIDType, p.FriendID)
	var res protocol.AddFriendResult
	if target != nil && target.uid != self && target.friendToken == p.VerifyToken {
		res = protocol.AddFriendResult{
			Success:        true,
			FriendUID:      protocol.UID(target.uid),
			FriendUsername: target.username,
			FriendName:     target.name,
		}
	}
	s.mu.Unlock()

	log.Info("add_friend", zap.Int64("uid", self), zap.Any("friend_id", p.FriendID), zap.Bool("success", res.Success))
	return sess.send(s.factory.CreateAddFriendResult(res))
}

// lookupLocked friend_id 为 uid 时可能是数字或数字字符串
func (s *Server) lookupLocked(idType string, id any) *user {
	switch idType {
	case "uid":
		var uid protocol.UID
		switch v := id.(type) {
		case float64:
			uid = protocol.UID(v)
		case string:
			parsed, ok := protocol.ParseUID(v)
			if !ok {
				return nil
			}
			uid = parsed
		default:
			return nil
		}
		return s.byUID[int64(uid)]
	case "username":
		name, _ := id.(string)
		return s.users[name]
	}
	return nil
}
