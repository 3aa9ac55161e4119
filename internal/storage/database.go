package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

// DB 本地聊天记录与联系人库
type DB struct {
	db *sql.DB
}

// ChatMessage chat_history 表的一行
type ChatMessage struct {
	Index    int64
	FromUser int64
	ToUser   int64
	Type     string
	Content  string
	SendTime float64 // unix 秒
}

// Contact contact 表的一行，Mem 是本地备注
type Contact struct {
	ID       int64
	Username string
	Name     string
	Mem      string
}

// Open 打开（必要时创建）数据库文件并建表
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	s := &DB{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_history (
		"index"   INTEGER CONSTRAINT chat_history_pk PRIMARY KEY AUTOINCREMENT,
		from_user INTEGER,
		to_user   INTEGER,
		type      TEXT,
		content   TEXT,
		send_time INTEGER
	);
	CREATE UNIQUE INDEX IF NOT EXISTS chat_history_index ON chat_history ("index");
	CREATE INDEX IF NOT EXISTS chat_history_peer ON chat_history (from_user, to_user, send_time);

	CREATE TABLE IF NOT EXISTS contact (
		id       INTEGER CONSTRAINT contact_pk PRIMARY KEY AUTOINCREMENT,
		username TEXT,
		name     TEXT,
		mem      TEXT
	);

	CREATE TABLE IF NOT EXISTS meta (
		uid INTEGER
	) STRICT;
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

// SaveChatMessage 追加一条聊天记录
func (s *DB) SaveChatMessage(m ChatMessage) error {
	if m.Type == "" {
		m.Type = "text"
	}
	_, err := s.db.Exec(
		`INSERT INTO chat_history (from_user, to_user, type, content, send_time) VALUES (?, ?, ?, ?, ?)`,
		m.FromUser, m.ToUser, m.Type, m.Content, m.SendTime,
	)
	if err != nil {
		return fmt.Errorf("save chat message: %w", err)
	}
	return nil
}

// LastChatMessage 两人之间最近的一条消息
func (s *DB) LastChatMessage(self, peer int64) (*ChatMessage, error) {
	row := s.db.QueryRow(`
		SELECT "index", from_user, to_user, type, content, send_time FROM chat_history
		WHERE (from_user = ? AND to_user = ?) OR (from_user = ? AND to_user = ?)
		ORDER BY send_time DESC, "index" DESC LIMIT 1`,
		self, peer, peer, self)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// ChatHistory 与 uid 相关的全部消息，按时间升序
func (s *DB) ChatHistory(uid int64) ([]ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT "index", from_user, to_user, type, content, send_time FROM chat_history
		WHERE to_user = ? OR from_user = ?
		ORDER BY send_time ASC, "index" ASC`, uid, uid)
	if err != nil {
		return nil, fmt.Errorf("query chat history: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(r scanner) (*ChatMessage, error) {
	var (
		m       ChatMessage
		typ     sql.NullString
		content sql.NullString
		sent    sql.NullFloat64
	)
	if err := r.Scan(&m.Index, &m.FromUser, &m.ToUser, &typ, &content, &sent); err != nil {
		return nil, err
	}
	m.Type, m.Content, m.SendTime = typ.String, content.String, sent.Float64
	return &m, nil
}
