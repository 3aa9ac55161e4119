package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hongjun500/writepapers/internal/app"
	"github.com/hongjun500/writepapers/internal/observe"
)

type Level int

const (
	levelGuest Level = iota // 未登录即可使用
	levelUser               // 需要登录
)

var ErrLoginRequired = errors.New("请先登录")

// Operations 命令可调用的业务操作，由 app.App 实现
type Operations interface {
	LoggedIn() bool
	CurrentChat() int64
	Login(username, password string) error
	Register(username, password string) error
	SendText(to int64, text string) error
	SendImage(to int64, path string) (<-chan error, error)
	AddFriend(id, verifyToken string) error
	FetchFriendToken(ctx context.Context) (string, error)
	ChangeFriendToken(token string) error
	RequestOffline() error
	OpenChat(peer int64) ([]app.HistoryEntry, error)
	CloseChat()
	ContactSummaries() ([]app.ContactSummary, error)
}

// Settings /debug 用来切换调试开关
type Settings interface {
	Set(key, value string) error
	Bool(key string) bool
}

type Context struct {
	Ctx      context.Context
	App      Operations
	Settings Settings
	Out      io.Writer
	Quit     func()
	Args     []string
	Raw      string
}

func (c *Context) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.Out, format+"\n", args...)
}

type HandlerFunc func(ctx *Context) error

type Command struct {
	Name     string
	Aliases  []string
	Usage    string
	Help     string
	MinLevel Level
	Handler  HandlerFunc
}

type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Command
	list   []*Command
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Command),
		list:   make([]*Command, 0),
	}
}

func (r *Registry) Register(cmd *Command) (err error) {
	if cmd == nil {
		return errors.New("command is nil")
	}
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if name == "" {
		return errors.New("command name is empty")
	}
	if strings.Contains(name, "/") {
		return fmt.Errorf("command name must not contain '/':%s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("command %s already registered", name)
	}
	r.byName[name] = cmd
	for _, item := range cmd.Aliases {
		alias := strings.ToLower(strings.TrimSpace(item))
		if alias == "" {
			continue
		}
		if _, exists := r.byName[alias]; exists {
			return fmt.Errorf("command alias %s already registered", alias)
		}
		r.byName[alias] = cmd
	}
	r.list = append(r.list, cmd)
	return nil
}

func (r *Registry) Get(name string) (*Command, bool) {
	k := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "/"))
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[k]
	return cmd, ok
}

func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, len(r.list))
	copy(out, r.list)
	return out
}

// Execute 执行以 / 开头的一行输入；不是命令时 handled 为 false
func (r *Registry) Execute(raw string, ctx *Context) (handled bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return false, nil
	}
	parts := strings.Fields(raw)
	cmdName := strings.TrimPrefix(parts[0], "/")
	cmd, ok := r.Get(cmdName)
	if !ok {
		observe.IncCommandError("not_found")
		return true, fmt.Errorf("command %s not found", cmdName)
	}

	if !r.checkPermission(ctx.App, cmd.MinLevel) {
		observe.IncCommandError("permission")
		return true, ErrLoginRequired
	}
	ctx.Args = parts[1:]
	ctx.Raw = raw
	observe.IncCommand(cmd.Name)
	if err := cmd.Handler(ctx); err != nil {
		observe.IncCommandError("handler")
		return true, err
	}
	return true, nil
}

func (r *Registry) checkPermission(ops Operations, need Level) bool {
	if need <= levelGuest {
		return true
	}
	return ops != nil && ops.LoggedIn()
}
