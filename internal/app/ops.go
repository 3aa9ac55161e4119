package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/writepapers/internal/event"
	"github.com/hongjun500/writepapers/internal/protocol"
	"github.com/hongjun500/writepapers/internal/storage"
)

// imagePreview 图片消息在联系人列表里的预览
const imagePreview = "[图片]"

// Login 发送登录请求，结果由消费循环处理
func (a *App) Login(username, password string) error {
	a.st.mu.Lock()
	a.st.username, a.st.password = username, password
	a.st.mu.Unlock()
	return a.conn.Send(protocol.MsgLogin, protocol.CredentialsPayload{Username: username, Password: password})
}

func (a *App) Register(username, password string) error {
	if username == "" || password == "" {
		return errors.New("username and password are required")
	}
	return a.conn.Send(protocol.MsgRegisterAccount, protocol.CredentialsPayload{Username: username, Password: password})
}

// SendText 发送文本消息，落库并回显
func (a *App) SendText(to int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	self, err := a.selfUID()
	if err != nil {
		return err
	}
	err = a.conn.Send(protocol.MsgSendMessage, protocol.SendMessagePayload{
		ToUser:  protocol.UID(to).String(),
		Message: text,
		Type:    protocol.ContentText,
	})
	if err != nil {
		return err
	}
	a.recordOutgoing(self, to, protocol.ContentText, text)
	return nil
}

// SendImage 校验后在后台 goroutine 里发送图片。
// 校验失败直接返回；发送结果写入返回的 channel。
func (a *App) SendImage(to int64, path string) (<-chan error, error) {
	self, err := a.selfUID()
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if st.Size() > MaxImageSize {
		return nil, ErrImageTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrImageEmpty
	}

	done := make(chan error, 1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		encoded := base64.StdEncoding.EncodeToString(data)
		a.log.Debug("image_sending", zap.Int64("to", to), zap.Int("bytes", len(data)))
		err := a.conn.Send(protocol.MsgSendMessage, protocol.SendMessagePayload{
			ToUser:  protocol.UID(to).String(),
			Message: encoded,
			Type:    protocol.ContentImage,
		})
		if err != nil {
			a.log.Error("image_send_failed", zap.Error(err))
			done <- err
			return
		}
		a.recordOutgoing(self, to, protocol.ContentImage, encoded)
		done <- nil
	}()
	return done, nil
}

func (a *App) recordOutgoing(self, to int64, ctype, content string) {
	if err := a.store.SaveChatMessage(chatMessage(self, to, ctype, content, a.unixNow())); err != nil {
		a.log.Error("save_message_failed", zap.Error(err))
	}
	a.emitMessage(self, to, ctype, content, a.now(), true)
	a.contactsChanged()
}

func (a *App) emitMessage(from, to int64, ctype, content string, at time.Time, outgoing bool) {
	name := "我"
	if !outgoing {
		name = a.displayName(from)
	}
	a.bus.Emit(&event.MessageEvent{
		When:        at,
		From:        from,
		To:          to,
		FromName:    name,
		ContentType: ctype,
		Content:     content,
		Outgoing:    outgoing,
	})
}

// AddFriend 纯数字按 uid 添加，否则按用户名
func (a *App) AddFriend(id, verifyToken string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("friend id is required")
	}
	payload := protocol.AddFriendPayload{VerifyToken: verifyToken}
	if uid, ok := protocol.ParseUID(id); ok {
		known, err := a.store.IsFriend(int64(uid))
		if err != nil {
			return err
		}
		if known {
			return fmt.Errorf("%s: %w", id, ErrAlreadyFriend)
		}
		payload.FriendIDType, payload.FriendID = "uid", int64(uid)
	} else {
		known, err := a.store.IsFriendByUsername(id)
		if err != nil {
			return err
		}
		if known {
			return fmt.Errorf("%s: %w", id, ErrAlreadyFriend)
		}
		payload.FriendIDType, payload.FriendID = "username", id
	}
	return a.conn.Send(protocol.MsgAddFriend, payload)
}

// FetchFriendToken 请求当前好友口令并等待回复
func (a *App) FetchFriendToken(ctx context.Context) (string, error) {
	if err := a.conn.Send(protocol.MsgGetFriendToken, struct{}{}); err != nil {
		return "", err
	}
	env, err := a.conn.Queues().FriendToken.Pop(ctx)
	if err != nil {
		return "", err
	}
	var r protocol.FriendTokenResult
	if err := env.DecodePayload(&r); err != nil {
		return "", fmt.Errorf("friend token result: %w", err)
	}
	return r.FriendToken, nil
}

func (a *App) ChangeFriendToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("friend token is empty")
	}
	return a.conn.Send(protocol.MsgChangeFriendToken, protocol.ChangeFriendTokenPayload{NewFriendToken: token})
}

// RequestOffline 拉取离线消息，结果进入离线队列
func (a *App) RequestOffline() error {
	return a.conn.Send(protocol.MsgGetOfflineMessages, struct{}{})
}

// WaitWelcomeBack 等待一条 welcome_back 并发出事件
func (a *App) WaitWelcomeBack(ctx context.Context) (string, error) {
	env, err := a.conn.Queues().WelcomeBack.Pop(ctx)
	if err != nil {
		return "", err
	}
	var p protocol.WelcomeBackPayload
	if err := env.DecodePayload(&p); err != nil {
		a.log.Warn("welcome_back_invalid", zap.Error(err), zap.ByteString("payload", env.Payload))
	}
	a.bus.Emit(&event.WelcomeEvent{When: a.now(), Message: p.Message})
	return p.Message, nil
}

// HistoryEntry 会话里的一条消息
type HistoryEntry struct {
	storage.ChatMessage
	Outgoing bool
	Sender   string
}

// OpenChat 切换当前会话并返回与对方的全部消息
func (a *App) OpenChat(peer int64) ([]HistoryEntry, error) {
	self, err := a.selfUID()
	if err != nil {
		return nil, err
	}
	a.st.mu.Lock()
	a.st.currentChat = peer
	a.st.mu.Unlock()

	msgs, err := a.store.ChatHistory(peer)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		e := HistoryEntry{ChatMessage: m}
		switch {
		case m.FromUser == self:
			e.Outgoing, e.Sender = true, "我"
		case m.ToUser == self:
			e.Sender = a.displayName(m.FromUser)
		default:
			a.log.Warn("history_message_unrelated", zap.Int64("index", m.Index))
			e.Outgoing = true
		}
		out = append(out, e)
	}
	return out, nil
}

// CloseChat 回到没有打开会话的状态
func (a *App) CloseChat() {
	a.st.mu.Lock()
	a.st.currentChat = 0
	a.st.mu.Unlock()
}

// ContactSummary 联系人列表的一行
type ContactSummary struct {
	UID         int64
	Name        string
	LastMessage string
	LastTime    time.Time
}

// ContactSummaries 联系人及最近一条消息。名称取备注，其次昵称，都没有时为“未知”。
func (a *App) ContactSummaries() ([]ContactSummary, error) {
	self, _ := a.UID()
	contacts, err := a.store.Contacts()
	if err != nil {
		return nil, err
	}
	out := make([]ContactSummary, 0, len(contacts))
	for _, c := range contacts {
		s := ContactSummary{UID: c.ID, Name: c.Mem}
		if s.Name == "" {
			s.Name = c.Name
		}
		if s.Name == "" {
			s.Name = "未知"
		}
		last, err := a.store.LastChatMessage(self, c.ID)
		switch {
		case err == nil:
			s.LastMessage = last.Content
			if last.Type == protocol.ContentImage {
				s.LastMessage = imagePreview
			}
			s.LastTime = unixTime(last.SendTime)
		case !errors.Is(err, storage.ErrNotFound):
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func chatMessage(from, to int64, ctype, content string, sentAt float64) storage.ChatMessage {
	return storage.ChatMessage{FromUser: from, ToUser: to, Type: ctype, Content: content, SendTime: sentAt}
}

func contact(uid int64, username, name string) storage.Contact {
	return storage.Contact{ID: uid, Username: username, Name: name}
}

func unixTime(sec float64) time.Time {
	whole := int64(sec)
	return time.Unix(whole, int64((sec-float64(whole))*1e9))
}
