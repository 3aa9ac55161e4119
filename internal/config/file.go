package config

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrKeyNotFound 配置文件中没有该键
var ErrKeyNotFound = errors.New("config: key not found")

// node 通用的 XML 元素树，保留未知元素和属性
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
	Nodes   []*node    `xml:",any"`
}

func (n *node) child(name string) *node {
	for _, c := range n.Nodes {
		if c.XMLName.Local == name {
			return c
		}
	}
	return nil
}

// find 第一段在整棵树里深度优先查找，后续段逐级匹配子元素
func (n *node) find(first string) *node {
	for _, c := range n.Nodes {
		if c.XMLName.Local == first {
			return c
		}
		if f := c.find(first); f != nil {
			return f
		}
	}
	return nil
}

// File 客户端的键值配置文件（data/client.xml），键是 "server/ip" 这样的路径。
// 文件在外部被修改后，下一次读取会重新加载。
type File struct {
	path string

	mu      sync.Mutex
	root    *node
	modTime time.Time
}

// Open 打开配置文件。文件不存在时得到一个空配置，第一次 Set 时创建。
func Open(path string) (*File, error) {
	f := &File{path: path}
	if err := f.reload(true); err != nil {
		return nil, err
	}
	return f, nil
}

// Path 文件路径
func (f *File) Path() string { return f.path }

func (f *File) reload(force bool) error {
	st, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		if f.root == nil {
			f.root = &node{XMLName: xml.Name{Local: "client"}}
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: stat %s: %w", f.path, err)
	}
	if !force && f.root != nil && st.ModTime().Equal(f.modTime) {
		return nil
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", f.path, err)
	}
	var root node
	if err := xml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("config: parse %s: %w", f.path, err)
	}
	f.root = &root
	f.modTime = st.ModTime()
	return nil
}

func (f *File) lookup(key string) *node {
	parts := strings.Split(strings.Trim(key, "/"), "/")
	n := f.root.find(parts[0])
	for _, p := range parts[1:] {
		if n == nil {
			return nil
		}
		n = n.child(p)
	}
	return n
}

// Get 读取键对应的文本，去掉首尾空白
func (f *File) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reload(false); err != nil {
		return "", err
	}
	n := f.lookup(key)
	if n == nil {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return strings.TrimSpace(n.Text), nil
}

// GetDefault 读取失败或为空时返回 def
func (f *File) GetDefault(key, def string) string {
	v, err := f.Get(key)
	if err != nil || v == "" {
		return def
	}
	return v
}

// Bool "true" / "True" 为真，其余（包括缺失）为假
func (f *File) Bool(key string) bool {
	v, err := f.Get(key)
	if err != nil {
		return false
	}
	return v == "true" || v == "True"
}

// DebugEnabled debug/enabled 开关，每次调用都会检查文件是否变化
func (f *File) DebugEnabled() bool { return f.Bool("debug/enabled") }

// Set 写入键并立即落盘，缺失的元素逐级创建
func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reload(false); err != nil {
		return err
	}

	n := f.lookup(key)
	if n == nil {
		n = f.root
		for _, p := range strings.Split(strings.Trim(key, "/"), "/") {
			c := n.child(p)
			if c == nil {
				c = &node{XMLName: xml.Name{Local: p}}
				n.Nodes = append(n.Nodes, c)
			}
			n = c
		}
	}
	n.Text = value
	return f.save()
}

// save 先写临时文件再 rename
func (f *File) save() error {
	clean(f.root)
	body, err := xml.MarshalIndent(f.root, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')

	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: mkdir: %w", err)
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("config: rename: %w", err)
	}
	if st, err := os.Stat(f.path); err == nil {
		f.modTime = st.ModTime()
	}
	return nil
}

// clean 有子元素的节点只保留子元素，否则缩进空白会越写越多
func clean(n *node) {
	if len(n.Nodes) == 0 {
		return
	}
	n.Text = ""
	for _, c := range n.Nodes {
		clean(c)
	}
}
