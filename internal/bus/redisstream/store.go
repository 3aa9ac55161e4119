package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/hongjun500/writepapers/internal/protocol"
)

// Store 离线消息存在 Redis Stream 里，每个收件人一个 stream：<prefix>:<uid>
type Store struct {
	cli    redis.UniversalClient
	prefix string
}

func New(addr string, db int, prefix string) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr, DB: db}), prefix)
}

func NewWithClient(cli redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "wp:offline"
	}
	return &Store{cli: cli, prefix: prefix}
}

func (s *Store) key(uid int64) string { return s.prefix + ":" + strconv.FormatInt(uid, 10) }

// Ping 启动时确认 Redis 可用
func (s *Store) Ping(ctx context.Context) error { return s.cli.Ping(ctx).Err() }

// Push 追加一条发给 m.ToUser 的离线消息
func (s *Store) Push(ctx context.Context, m protocol.OfflineMessage) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.cli.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key(int64(m.ToUser)),
		Values: map[string]any{"data": payload},
	}).Err()
}

// Take 按写入顺序取出 uid 的全部离线消息并删除 stream，读和删在同一个事务里
func (s *Store) Take(ctx context.Context, uid int64) ([]protocol.OfflineMessage, error) {
	key := s.key(uid)
	var rng *redis.XMessageSliceCmd
	_, err := s.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		rng = p.XRange(ctx, key, "-", "+")
		p.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("take offline %s: %w", key, err)
	}

	out := make([]protocol.OfflineMessage, 0, len(rng.Val()))
	for _, xmsg := range rng.Val() {
		raw, _ := xmsg.Values["data"].(string)
		var m protocol.OfflineMessage
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return out, fmt.Errorf("offline entry %s: %w", xmsg.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) Close() error { return s.cli.Close() }
