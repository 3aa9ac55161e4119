package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hongjun500/writepapers/internal/bus/redisstream"
	"github.com/hongjun500/writepapers/internal/config"
	"github.com/hongjun500/writepapers/internal/mockserver"
	"github.com/hongjun500/writepapers/pkg/logger"
)

func mockServerCmd() *cobra.Command {
	var (
		addr      string
		heartbeat time.Duration
		users     []string
		redisAddr string
	)

	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "启动本地联调用的服务端",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := mockserver.Options{Log: logger.L(), HeartbeatInterval: heartbeat}
			if redisAddr != "" {
				store := redisstream.New(redisAddr, 0, "")
				defer store.Close()
				if err := store.Ping(ctx); err != nil {
					return fmt.Errorf("redis %s: %w", redisAddr, err)
				}
				opts.Offline = store
			}
			srv := mockserver.New(opts)
			for _, u := range users {
				name, pass, ok := strings.Cut(u, ":")
				if !ok || name == "" {
					return fmt.Errorf("--user 格式为 username:password，得到 %q", u)
				}
				uid := srv.AddUser(name, pass, name)
				fmt.Fprintf(cmd.OutOrStdout(), "user %s uid=%d\n", name, uid)
			}

			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", fmt.Sprintf(":%d", config.DefaultServerPort), "监听地址")
	cmd.Flags().DurationVar(&heartbeat, "heartbeat", 30*time.Second, "心跳间隔，0 关闭")
	cmd.Flags().StringVar(&redisAddr, "redis", "", "离线消息存到该 Redis，为空时存在内存")
	cmd.Flags().StringArrayVarP(&users, "user", "u", nil, "预置账号 username:password，可重复")
	return cmd
}
