package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hongjun500/writepapers/internal/config"
	"github.com/hongjun500/writepapers/internal/protocol"
	"github.com/hongjun500/writepapers/internal/transport"
)

// peekCmd 打印服务端发来的每一个信封，调试协议用
func peekCmd(configPath *string) *cobra.Command {
	var (
		host  string
		port  int
		login string
		max   int
	)

	cmd := &cobra.Command{
		Use:   "peek",
		Short: "打印服务端发来的原始信封",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Open(*configPath)
			if err != nil {
				return err
			}
			cfg := config.Load(settings, nil)
			if host == "" {
				host = cfg.ServerHost
			}
			if port == 0 {
				port = cfg.ServerPort
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			conn, err := transport.Dial(ctx, host, port)
			if err != nil {
				return err
			}
			defer conn.Close()
			go func() { <-ctx.Done(); _ = conn.Close() }()

			if login != "" {
				user, pass, ok := strings.Cut(login, ":")
				if !ok {
					return fmt.Errorf("--login 格式为 username:password")
				}
				env, err := protocol.NewEnvelope(protocol.MsgLogin, protocol.StringPtr(protocol.LoginToken),
					protocol.CredentialsPayload{Username: user, Password: pass})
				if err != nil {
					return err
				}
				frame, err := transport.Encode(env)
				if err != nil {
					return err
				}
				if err := conn.WriteAll(frame); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fr := transport.NewFrameReader(conn)
			for {
				body, err := fr.Next()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				env, err := transport.Decode(body)
				if err != nil {
					fmt.Fprintf(out, "decode error: %v\n  raw: %s\n", err, truncate(string(body), max))
					continue
				}
				fmt.Fprintf(out, "Envelope:\n")
				fmt.Fprintf(out, "  type:    %s\n", env.Type)
				fmt.Fprintf(out, "  kind:    %s\n", env.Kind())
				fmt.Fprintf(out, "  payload: %s\n", truncate(string(env.Payload), max))
			}
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "服务器地址，默认取配置")
	cmd.Flags().IntVar(&port, "port", 0, "服务器端口，默认取配置")
	cmd.Flags().StringVar(&login, "login", "", "连接后先登录，格式 username:password")
	cmd.Flags().IntVar(&max, "max", 200, "payload 最多打印的字节数")
	return cmd
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
