package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hongjun500/writepapers/internal/config"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "wpclient",
		Short: "终端即时通讯客户端",
		Long: `wpclient 通过长度前缀 JSON 协议连接聊天服务器。

不带子命令时等同于 wpclient run。以 / 开头的输入是命令（/help 查看），
其余输入发给当前会话。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "配置文件路径")

	run := runCmd(&configPath)
	rootCmd.RunE = run.RunE
	rootCmd.Flags().AddFlagSet(run.Flags())

	rootCmd.AddCommand(
		run,
		peekCmd(&configPath),
		mockServerCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
