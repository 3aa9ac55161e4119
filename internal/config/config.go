package config

import (
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/hongjun500/writepapers/pkg/logger"
)

const (
	DefaultServerHost = "127.0.0.1"
	DefaultServerPort = 3624
	DefaultDBPath     = "data/chat.db"
	DefaultFile       = "data/client.xml"
)

type Config struct {
	ServerHost  string
	ServerPort  int
	DBPath      string
	MetricsAddr string // 为空时不启动 /metrics
	DataDir     string
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Load 从配置文件读取连接参数，环境变量优先。
// 服务器地址或端口缺失、无法解析时使用默认值并记一条 warning。
func Load(f *File, log *zap.Logger) *Config {
	log = logger.Or(log)
	cfg := &Config{DataDir: "data"}
	if f != nil {
		cfg.DataDir = filepath.Dir(f.Path())
	}

	host := os.Getenv("WP_SERVER_HOST")
	if host == "" && f != nil {
		host, _ = f.Get("server/ip")
	}
	if host == "" {
		log.Warn("config_default_used", zap.String("key", "server/ip"), zap.String("value", DefaultServerHost))
		host = DefaultServerHost
	}
	cfg.ServerHost = host

	portStr := os.Getenv("WP_SERVER_PORT")
	if portStr == "" && f != nil {
		portStr, _ = f.Get("server/port")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		log.Warn("config_default_used", zap.String("key", "server/port"), zap.String("raw", portStr),
			zap.Int("value", DefaultServerPort))
		port = DefaultServerPort
	}
	cfg.ServerPort = port

	dbPath := ""
	if f != nil {
		dbPath, _ = f.Get("database/file")
	}
	if dbPath == "" {
		dbPath = filepath.Join(cfg.DataDir, filepath.Base(DefaultDBPath))
	}
	cfg.DBPath = getEnv("WP_DB_PATH", dbPath)
	cfg.MetricsAddr = getEnv("WP_METRICS_ADDR", "")
	return cfg
}
