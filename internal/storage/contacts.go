package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// SaveContact 新增或更新联系人。备注为空时保留已有备注。
func (s *DB) SaveContact(c Contact) error {
	_, err := s.db.Exec(`
		INSERT INTO contact (id, username, name, mem) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			name = excluded.name,
			mem = COALESCE(NULLIF(excluded.mem, ''), contact.mem)`,
		c.ID, c.Username, c.Name, c.Mem)
	if err != nil {
		return fmt.Errorf("save contact %d: %w", c.ID, err)
	}
	return nil
}

// DisplayName 备注优先，其次昵称
func (s *DB) DisplayName(uid int64) (string, error) {
	var mem, name sql.NullString
	err := s.db.QueryRow(`SELECT mem, name FROM contact WHERE id = ?`, uid).Scan(&mem, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query display name: %w", err)
	}
	switch {
	case mem.String != "":
		return mem.String, nil
	case name.String != "":
		return name.String, nil
	default:
		return "", ErrNotFound
	}
}

// Contacts 全部联系人，按 id 排序
func (s *DB) Contacts() ([]Contact, error) {
	rows, err := s.db.Query(`SELECT id, username, name, mem FROM contact ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		var username, name, mem sql.NullString
		if err := rows.Scan(&c.ID, &username, &name, &mem); err != nil {
			return nil, err
		}
		c.Username, c.Name, c.Mem = username.String, name.String, mem.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// IsFriend uid 是否在联系人表中
func (s *DB) IsFriend(uid int64) (bool, error) {
	return s.exists(`SELECT 1 FROM contact WHERE id = ?`, uid)
}

// IsFriendByUsername 用户名是否在联系人表中
func (s *DB) IsFriendByUsername(username string) (bool, error) {
	return s.exists(`SELECT 1 FROM contact WHERE username = ?`, username)
}

func (s *DB) exists(query string, arg any) (bool, error) {
	var one int
	err := s.db.QueryRow(query, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
