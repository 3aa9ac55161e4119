package app

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/hongjun500/writepapers/internal/dispatch"
	"github.com/hongjun500/writepapers/internal/event"
	"github.com/hongjun500/writepapers/internal/protocol"
	"github.com/hongjun500/writepapers/internal/storage"
)

// Drainer 消费循环：每一轮依次取空离线、实时、结果三个队列，
// 都为空时阻塞在就绪信号上。与接收循环各占一个 goroutine。
type Drainer struct {
	app    *App
	queues *dispatch.QueueSet
}

func NewDrainer(a *App) *Drainer {
	return &Drainer{app: a, queues: a.conn.Queues()}
}

// DrainOnce 处理当前已入队的全部条目。只有本地库属于其他账号时返回错误。
func (d *Drainer) DrainOnce() error {
	for {
		raw, ok := d.queues.Offline.TryPop()
		if !ok {
			break
		}
		d.app.handleOffline(raw)
	}
	for {
		env, ok := d.queues.Message.TryPop()
		if !ok {
			break
		}
		d.app.handleMessage(env)
	}
	for {
		env, ok := d.queues.Result.TryPop()
		if !ok {
			break
		}
		if err := d.app.handleResult(env); err != nil {
			return err
		}
	}
	return nil
}

// Run 直到 ctx 结束或出现致命错误
func (d *Drainer) Run(ctx context.Context) error {
	for {
		if err := d.DrainOnce(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-d.queues.Offline.Ready():
		case <-d.queues.Message.Ready():
		case <-d.queues.Result.Ready():
		}
	}
}

func (a *App) handleOffline(raw json.RawMessage) {
	var m protocol.OfflineMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		a.log.Warn("offline_message_invalid", zap.Error(err), zap.ByteString("raw", raw))
		return
	}
	a.log.Debug("offline_message",
		zap.Time("sent_at", m.SentAt()),
		zap.String("from", a.displayName(int64(m.FromUser))),
		zap.String("content", m.Content))
	err := a.store.SaveChatMessage(chatMessage(int64(m.FromUser), int64(m.ToUser), protocol.ContentText, m.Content, m.Time))
	if err != nil {
		a.log.Error("save_offline_message_failed", zap.Error(err))
	}
	a.contactsChanged()
}

func (a *App) handleMessage(env *protocol.Envelope) {
	var p protocol.NewMessagePayload
	if err := env.DecodePayload(&p); err != nil {
		a.log.Warn("new_message_invalid", zap.Error(err), zap.ByteString("payload", env.Payload))
		return
	}
	self, _ := a.UID()
	from := int64(p.FromUser)
	ctype := p.ContentType()

	if err := a.store.SaveChatMessage(chatMessage(from, self, ctype, p.Message, p.Time)); err != nil {
		a.log.Error("save_message_failed", zap.Error(err))
	}
	if a.CurrentChat() == from {
		a.emitMessage(from, self, ctype, p.Message, p.SentAt(), false)
	}
	if p.NeedUpdateContact != nil && !*p.NeedUpdateContact {
		a.log.Debug("contact_update_skipped", zap.Int64("from", from))
		return
	}
	preview := p.Message
	if ctype != protocol.ContentText {
		preview = imagePreview
	}
	a.log.Info("new_message", zap.Time("sent_at", p.SentAt()), zap.String("from", a.displayName(from)), zap.String("content", preview))
	a.contactsChanged()
}

func (a *App) handleResult(env *protocol.Envelope) error {
	switch env.Type {
	case protocol.MsgSendMessageResult:
		var r protocol.SendMessageResult
		if err := env.DecodePayload(&r); err != nil {
			a.badResult(env, err)
			return nil
		}
		if r.Success {
			a.log.Info("send_message_succeeded")
		} else {
			a.log.Info("send_message_failed")
		}
	case protocol.MsgRegisterResult:
		var r protocol.RegisterResult
		if err := env.DecodePayload(&r); err != nil {
			a.badResult(env, err)
			return nil
		}
		a.onRegister(r)
	case protocol.MsgLoginResult:
		var r protocol.LoginResult
		if err := env.DecodePayload(&r); err != nil {
			a.badResult(env, err)
			return nil
		}
		return a.onLogin(r)
	case protocol.MsgAddFriendResult:
		var r protocol.AddFriendResult
		if err := env.DecodePayload(&r); err != nil {
			a.badResult(env, err)
			return nil
		}
		a.onAddFriend(r)
	default:
		a.log.Debug("result_ignored", zap.String("type", env.Type), zap.ByteString("payload", env.Payload))
	}
	return nil
}

func (a *App) badResult(env *protocol.Envelope, err error) {
	a.log.Warn("result_invalid", zap.String("type", env.Type), zap.Error(err), zap.ByteString("payload", env.Payload))
}

func (a *App) onRegister(r protocol.RegisterResult) {
	if !r.Success {
		a.log.Error("register_failed")
		a.bus.Emit(&event.RegisterEvent{When: a.now(), Success: false, Username: r.Username})
		a.notice("error", "注册失败", "注册失败，请检查用户名是否已存在")
		return
	}
	a.log.Info("register_succeeded", zap.String("username", r.Username), zap.Int64("uid", int64(r.UID)))
	if a.settings != nil {
		for key, value := range map[string]string{
			"account/username": r.Username,
			"account/password": r.Password,
			"account/uid":      r.UID.String(),
		} {
			if err := a.settings.Set(key, value); err != nil {
				a.log.Error("save_account_failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	a.bus.Emit(&event.RegisterEvent{When: a.now(), Success: true, Username: r.Username, UID: int64(r.UID)})
	a.notice("info", "注册成功", "恭喜您，注册成功！您的UID是"+r.UID.String())
}

func (a *App) onLogin(r protocol.LoginResult) error {
	if !r.Success {
		a.st.mu.Lock()
		a.st.loggedIn = false
		a.st.mu.Unlock()
		a.log.Error("login_failed")
		a.bus.Emit(&event.LoginEvent{When: a.now(), Success: false})
		a.notice("error", "错误", "登录失败")
		return nil
	}

	uid := int64(r.UID)
	if r.Token != "" {
		a.conn.SetToken(r.Token)
	}
	a.st.mu.Lock()
	a.st.uid = uid
	a.st.loggedIn = true
	username, password := a.st.username, a.st.password
	a.st.mu.Unlock()
	a.log.Info("login_succeeded", zap.Int64("uid", uid))

	if err := a.checkLocalUID(uid); err != nil {
		return err
	}
	a.rememberUID(username, password, uid)
	a.bus.Emit(&event.LoginEvent{When: a.now(), Success: true, UID: uid})
	return nil
}

// checkLocalUID 本地库第一次使用时记下 uid，之后必须一致
func (a *App) checkLocalUID(uid int64) error {
	stored, err := a.store.LocalUID()
	switch {
	case err == nil && stored != uid:
		a.notice("error", "警告", "数据库中保存的UID与当前登录的UID不一致，这可能不是你的数据库！")
		a.log.Error("local_uid_mismatch", zap.Int64("stored", stored), zap.Int64("login", uid))
		return ErrForeignDatabase
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		if err := a.store.SetLocalUID(uid); err != nil {
			a.log.Error("save_local_uid_failed", zap.Error(err))
		}
		return nil
	default:
		a.log.Error("read_local_uid_failed", zap.Error(err))
		return nil
	}
}

// rememberUID 保存的账号与本次登录一致时更新配置里的 uid
func (a *App) rememberUID(username, password string, uid int64) {
	if a.settings == nil || username == "" {
		return
	}
	savedUser, _ := a.settings.Get("account/username")
	savedPass, _ := a.settings.Get("account/password")
	if savedUser != username || savedPass != password {
		return
	}
	if err := a.settings.Set("account/uid", protocol.UID(uid).String()); err != nil {
		a.log.Error("save_account_failed", zap.String("key", "account/uid"), zap.Error(err))
	}
}

func (a *App) onAddFriend(r protocol.AddFriendResult) {
	if !r.Success {
		a.log.Error("add_friend_failed")
		a.notice("error", "添加好友失败", "添加好友失败")
		return
	}
	a.log.Info("add_friend_succeeded", zap.Int64("uid", int64(r.FriendUID)))
	err := a.store.SaveContact(contact(int64(r.FriendUID), r.FriendUsername, r.FriendName))
	if err != nil {
		a.log.Error("save_contact_failed", zap.Error(err))
	}
	a.notice("info", "添加好友成功", "添加好友成功")
	a.contactsChanged()
}
