package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// 消息内容类型
const (
	ContentText  = "text"
	ContentImage = "image"
)

// HeartbeatAck 心跳回执的固定内容
const HeartbeatAck = "Health check received."

// UID 用户 ID，服务端有时发数字有时发数字字符串
type UID int64

func (u *UID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*u = 0
		return nil
	}
	s := string(b)
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if ferr != nil {
			return fmt.Errorf("invalid uid %s: %w", string(b), err)
		}
		v = int64(f)
	}
	*u = UID(v)
	return nil
}

func (u UID) String() string { return strconv.FormatInt(int64(u), 10) }

// ParseUID 解析纯数字串
func ParseUID(s string) (UID, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return UID(v), true
}

// ---- C2S ----

// CredentialsPayload login / register_account
type CredentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SendMessagePayload send_message，图片消息的 Message 是 base64 文本
type SendMessagePayload struct {
	ToUser  string `json:"to_user"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// AddFriendPayload add_friend
type AddFriendPayload struct {
	FriendIDType string `json:"friend_id_type"` // uid|username
	FriendID     any    `json:"friend_id"`      // uid 时为数字
	VerifyToken  string `json:"verify_token"`
}

// ChangeFriendTokenPayload change_friend_token
type ChangeFriendTokenPayload struct {
	NewFriendToken string `json:"new_friend_token"`
}

// HeartbeatPayload heartbeat
type HeartbeatPayload struct {
	Content string `json:"content"`
}

// ---- S2C ----

// NewMessagePayload new_message
type NewMessagePayload struct {
	FromUser          UID     `json:"from_user"`
	Time              float64 `json:"time"`
	Type              string  `json:"type"`
	Message           string  `json:"message"`
	NeedUpdateContact *bool   `json:"need_update_contact,omitempty"`
}

// SentAt 发送时间
func (p *NewMessagePayload) SentAt() time.Time { return unixFloat(p.Time) }

// ContentType 缺省为 text
func (p *NewMessagePayload) ContentType() string {
	if p.Type == "" {
		return ContentText
	}
	return p.Type
}

// OfflineMessage offline_messages 数组里的一项：[content, from_user, to_user, send_time]
type OfflineMessage struct {
	Content  string
	FromUser UID
	ToUser   UID
	Time     float64
}

func (m *OfflineMessage) UnmarshalJSON(b []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("offline message: %w", err)
	}
	if len(parts) < 4 {
		return fmt.Errorf("offline message: want 4 fields, got %d", len(parts))
	}
	var content any
	if err := json.Unmarshal(parts[0], &content); err != nil {
		return fmt.Errorf("offline message content: %w", err)
	}
	if s, ok := content.(string); ok {
		m.Content = s
	} else {
		m.Content = string(parts[0])
	}
	if err := m.FromUser.UnmarshalJSON(parts[1]); err != nil {
		return err
	}
	if err := m.ToUser.UnmarshalJSON(parts[2]); err != nil {
		return err
	}
	if err := json.Unmarshal(parts[3], &m.Time); err != nil {
		return fmt.Errorf("offline message time: %w", err)
	}
	return nil
}

func (m OfflineMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{m.Content, m.FromUser, m.ToUser, m.Time})
}

// SentAt 发送时间
func (m *OfflineMessage) SentAt() time.Time { return unixFloat(m.Time) }

// LoginResult login_result
type LoginResult struct {
	Success bool   `json:"success"`
	UID     UID    `json:"uid"`
	Token   string `json:"token"`
}

// RegisterResult register_result
type RegisterResult struct {
	Success  bool   `json:"success"`
	Username string `json:"username"`
	Password string `json:"password"`
	UID      UID    `json:"uid"`
}

// SendMessageResult send_message_result
type SendMessageResult struct {
	Success bool `json:"success"`
}

// AddFriendResult add_friend_result
type AddFriendResult struct {
	Success        bool   `json:"success"`
	FriendUID      UID    `json:"friend_uid"`
	FriendUsername string `json:"friend_username"`
	FriendName     string `json:"friend_name"`
}

// FriendTokenResult friend_token_result
type FriendTokenResult struct {
	FriendToken string `json:"friend_token"`
}

// WelcomeBackPayload welcome_back
type WelcomeBackPayload struct {
	Message string `json:"message"`
}

func unixFloat(sec float64) time.Time {
	whole := int64(sec)
	return time.Unix(whole, int64((sec-float64(whole))*1e9))
}
