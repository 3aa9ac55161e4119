package app

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/writepapers/internal/dispatch"
	"github.com/hongjun500/writepapers/internal/event"
	"github.com/hongjun500/writepapers/internal/protocol"
	"github.com/hongjun500/writepapers/internal/storage"
	"github.com/hongjun500/writepapers/pkg/logger"
)

var (
	ErrNotLoggedIn     = errors.New("not logged in")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrImageTooLarge   = errors.New("image larger than 2 MiB")
	ErrImageEmpty      = errors.New("image file is empty")
	ErrAlreadyFriend   = errors.New("already a friend")
	ErrForeignDatabase = errors.New("local database belongs to another uid")
)

// MaxImageSize 图片原始字节上限
const MaxImageSize = 2 * 1024 * 1024

// Conn 业务层需要的连接能力，由 client.Client 实现
type Conn interface {
	Send(msgType protocol.MessageType, payload any) error
	SetToken(token string)
	Queues() *dispatch.QueueSet
}

// Store 本地持久化，由 storage.DB 实现
type Store interface {
	SaveChatMessage(m storage.ChatMessage) error
	SaveContact(c storage.Contact) error
	DisplayName(uid int64) (string, error)
	LastChatMessage(self, peer int64) (*storage.ChatMessage, error)
	Contacts() ([]storage.Contact, error)
	ChatHistory(uid int64) ([]storage.ChatMessage, error)
	IsFriend(uid int64) (bool, error)
	IsFriendByUsername(username string) (bool, error)
	LocalUID() (int64, error)
	SetLocalUID(uid int64) error
}

// Settings 键值配置，由 config.File 实现
type Settings interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

type Options struct {
	Log *zap.Logger
	Now func() time.Time
}

// state 会话状态，由消费循环和命令循环共同读写
type state struct {
	mu          sync.RWMutex
	uid         int64
	loggedIn    bool
	username    string
	password    string
	currentChat int64 // 0 表示没有打开的会话
}

// App 业务层：消费队列、落库、发出界面事件，并提供用户操作
type App struct {
	conn     Conn
	store    Store
	settings Settings
	bus      *event.Bus
	log      *zap.Logger
	now      func() time.Time

	st state
	wg sync.WaitGroup
}

func New(conn Conn, store Store, settings Settings, bus *event.Bus, opts Options) *App {
	a := &App{
		conn:     conn,
		store:    store,
		settings: settings,
		bus:      bus,
		log:      logger.Or(opts.Log),
		now:      opts.Now,
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.bus == nil {
		a.bus = event.NewBus(a.log)
	}
	return a
}

// Bus 界面事件总线
func (a *App) Bus() *event.Bus { return a.bus }

// UID 登录成功后才有值
func (a *App) UID() (int64, bool) {
	a.st.mu.RLock()
	defer a.st.mu.RUnlock()
	return a.st.uid, a.st.loggedIn
}

func (a *App) LoggedIn() bool {
	a.st.mu.RLock()
	defer a.st.mu.RUnlock()
	return a.st.loggedIn
}

func (a *App) Username() string {
	a.st.mu.RLock()
	defer a.st.mu.RUnlock()
	return a.st.username
}

// CurrentChat 当前打开的会话对象，0 表示没有
func (a *App) CurrentChat() int64 {
	a.st.mu.RLock()
	defer a.st.mu.RUnlock()
	return a.st.currentChat
}

// Wait 等待后台发送（图片）全部结束
func (a *App) Wait() { a.wg.Wait() }

func (a *App) selfUID() (int64, error) {
	uid, ok := a.UID()
	if !ok {
		return 0, ErrNotLoggedIn
	}
	return uid, nil
}

func (a *App) unixNow() float64 {
	return float64(a.now().UnixNano()) / 1e9
}

// displayName 备注 > 昵称 > uid
func (a *App) displayName(uid int64) string {
	name, err := a.store.DisplayName(uid)
	if err != nil || name == "" {
		return protocol.UID(uid).String()
	}
	return name
}

func (a *App) notice(level, title, content string) {
	a.bus.Emit(&event.NoticeEvent{When: a.now(), Level: level, Title: title, Content: content})
}

func (a *App) contactsChanged() {
	a.bus.Emit(&event.ContactsEvent{When: a.now()})
}
