package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func fixedFactory() *MessageFactory {
	return &MessageFactory{now: func() time.Time { return time.Unix(1745813243, 500_000_000) }}
}

func TestMessageFactory_CreateLoginResult(t *testing.T) {
	env := fixedFactory().CreateLoginResult(true, 7, "abc123")

	if env.Type != MsgLoginResult {
		t.Errorf("Expected message type %s, got %s", MsgLoginResult, env.Type)
	}
	if env.Token != nil {
		t.Errorf("server envelopes must not carry a token, got %q", *env.Token)
	}
	var r LoginResult
	if err := env.DecodePayload(&r); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !r.Success || r.UID != 7 || r.Token != "abc123" {
		t.Errorf("unexpected login result: %+v", r)
	}
	if env.Kind() != KindResult {
		t.Errorf("Expected kind %s, got %s", KindResult, env.Kind())
	}
}

func TestMessageFactory_CreateNewMessage(t *testing.T) {
	env := fixedFactory().CreateNewMessage(3, ContentText, "hi")

	var p NewMessagePayload
	if err := env.DecodePayload(&p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.FromUser != 3 || p.Message != "hi" {
		t.Errorf("unexpected payload: %+v", p)
	}
	if got := p.SentAt().Unix(); got != 1745813243 {
		t.Errorf("Expected send time 1745813243, got %d", got)
	}
}

func TestMessageFactory_CreateOfflineMessages(t *testing.T) {
	f := fixedFactory()

	empty := f.CreateOfflineMessages(nil)
	if string(empty.Payload) != "[]" {
		t.Errorf("Expected empty array payload, got %s", empty.Payload)
	}

	env := f.CreateOfflineMessages([]OfflineMessage{
		{Content: "a", FromUser: 1, ToUser: 2, Time: 10},
		{Content: "b", FromUser: 1, ToUser: 2, Time: 11},
	})
	var items []json.RawMessage
	if err := env.DecodePayload(&items); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if string(items[0]) != `["a",1,2,10]` {
		t.Errorf("unexpected wire form of offline message: %s", items[0])
	}
}
