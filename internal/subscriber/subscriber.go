package subscriber

import (
	"fmt"
	"io"
	"sync"

	"github.com/hongjun500/writepapers/internal/app"
	"github.com/hongjun500/writepapers/internal/event"
	"github.com/hongjun500/writepapers/internal/protocol"
)

// ContactLister 联系人变化时用来重新取列表，为 nil 时不输出联系人
type ContactLister func() ([]app.ContactSummary, error)

// printer 多个 goroutine 都会发事件，输出整行加锁
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) println(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, format+"\n", args...)
}

// RegisterAll 把终端输出注册到事件总线，返回的函数取消全部订阅
func RegisterAll(bus *event.Bus, out io.Writer, contacts ContactLister) (cancel func()) {
	p := &printer{out: out}
	cancels := []func(){
		registerMessage(bus, p),
		registerContacts(bus, p, contacts),
		registerNotice(bus, p),
		registerLogin(bus, p),
		registerRegister(bus, p),
		registerWelcome(bus, p),
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

func registerMessage(bus *event.Bus, p *printer) func() {
	return bus.Subscribe(event.TypeMessageDisplay, func(e event.Event) {
		me := e.(*event.MessageEvent)
		content := me.Content
		if me.ContentType == protocol.ContentImage {
			content = fmt.Sprintf("[图片 %d 字节]", len(me.Content)*3/4)
		}
		p.println("[%s] %s: %s", me.When.Format("15:04"), me.FromName, content)
	})
}

func registerContacts(bus *event.Bus, p *printer, contacts ContactLister) func() {
	return bus.Subscribe(event.TypeContactsChanged, func(event.Event) {
		if contacts == nil {
			return
		}
		list, err := contacts()
		if err != nil {
			p.println("[系统] 读取联系人失败: %v", err)
			return
		}
		for _, c := range list {
			if c.LastMessage == "" {
				continue
			}
			p.println("  %d %s: %s", c.UID, c.Name, c.LastMessage)
		}
	})
}

func registerNotice(bus *event.Bus, p *printer) func() {
	return bus.Subscribe(event.TypeNotice, func(e event.Event) {
		ne := e.(*event.NoticeEvent)
		p.println("[%s][%s] %s", ne.Level, ne.Title, ne.Content)
	})
}

func registerLogin(bus *event.Bus, p *printer) func() {
	return bus.Subscribe(event.TypeLoginResult, func(e event.Event) {
		le := e.(*event.LoginEvent)
		if le.Success {
			p.println("[系统] 登录成功，UID %d", le.UID)
		}
	})
}

func registerRegister(bus *event.Bus, p *printer) func() {
	return bus.Subscribe(event.TypeRegisterResult, func(e event.Event) {
		re := e.(*event.RegisterEvent)
		if re.Success {
			p.println("[系统] 账号 %s 已保存到配置文件，使用 /login 登录", re.Username)
		}
	})
}

func registerWelcome(bus *event.Bus, p *printer) func() {
	return bus.Subscribe(event.TypeWelcomeBack, func(e event.Event) {
		we := e.(*event.WelcomeEvent)
		p.println("[系统] %s", we.Message)
	})
}
