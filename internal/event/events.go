package event

import "time"

// Type 事件类型标识
type Type string

const (
	TypeMessageDisplay  Type = "message.display"
	TypeContactsChanged Type = "contacts.changed"
	TypeNotice          Type = "notice"
	TypeLoginResult     Type = "login.result"
	TypeRegisterResult  Type = "register.result"
	TypeWelcomeBack     Type = "welcome.back"
)

type Event interface {
	Type() Type
	Time() time.Time
}

// MessageEvent 一条应当显示在当前会话里的消息
type MessageEvent struct {
	When        time.Time
	From        int64
	To          int64
	FromName    string
	ContentType string // text / image
	Content     string
	Outgoing    bool
}

func (e *MessageEvent) Type() Type      { return TypeMessageDisplay }
func (e *MessageEvent) Time() time.Time { return e.When }

// ContactsEvent 联系人列表需要刷新
type ContactsEvent struct {
	When time.Time
}

func (e *ContactsEvent) Type() Type      { return TypeContactsChanged }
func (e *ContactsEvent) Time() time.Time { return e.When }

// NoticeEvent 提示框
type NoticeEvent struct {
	When    time.Time
	Level   string // info / warn / error
	Title   string
	Content string
}

func (e *NoticeEvent) Type() Type      { return TypeNotice }
func (e *NoticeEvent) Time() time.Time { return e.When }

type LoginEvent struct {
	When    time.Time
	Success bool
	UID     int64
}

func (e *LoginEvent) Type() Type      { return TypeLoginResult }
func (e *LoginEvent) Time() time.Time { return e.When }

type RegisterEvent struct {
	When     time.Time
	Success  bool
	Username string
	UID      int64
}

func (e *RegisterEvent) Type() Type      { return TypeRegisterResult }
func (e *RegisterEvent) Time() time.Time { return e.When }

type WelcomeEvent struct {
	When    time.Time
	Message string
}

func (e *WelcomeEvent) Type() Type      { return TypeWelcomeBack }
func (e *WelcomeEvent) Time() time.Time { return e.When }
