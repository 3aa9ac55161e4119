package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// LocalUID 本机登录用户的 uid
func (s *DB) LocalUID() (int64, error) {
	var uid sql.NullInt64
	err := s.db.QueryRow(`SELECT uid FROM meta LIMIT 1`).Scan(&uid)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !uid.Valid) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query meta: %w", err)
	}
	return uid.Int64, nil
}

// SetLocalUID meta 表只保留一行
func (s *DB) SetLocalUID(uid int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM meta`); err != nil {
		return fmt.Errorf("clear meta: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO meta (uid) VALUES (?)`, uid); err != nil {
		return fmt.Errorf("insert meta: %w", err)
	}
	return tx.Commit()
}
