package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hongjun500/writepapers/internal/app"
	"github.com/hongjun500/writepapers/internal/client"
	"github.com/hongjun500/writepapers/internal/command"
	"github.com/hongjun500/writepapers/internal/config"
	"github.com/hongjun500/writepapers/internal/event"
	"github.com/hongjun500/writepapers/internal/observe"
	"github.com/hongjun500/writepapers/internal/storage"
	"github.com/hongjun500/writepapers/internal/subscriber"
	"github.com/hongjun500/writepapers/internal/transport"
	"github.com/hongjun500/writepapers/pkg/logger"
)

func runCmd(configPath *string) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "连接服务器并进入交互界面",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runClient(ctx, *configPath, debug, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "打开调试日志并记住该设置")
	return cmd
}

func runClient(ctx context.Context, configPath string, debug bool, in io.Reader, out io.Writer) error {
	log := logger.L()
	settings, err := config.Open(configPath)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	if debug {
		if err := settings.Set("debug/enabled", "true"); err != nil {
			log.Warn("save_debug_failed", zap.Error(err))
		}
	}
	if settings.DebugEnabled() {
		logger.SetLevel("debug")
	}
	cfg := config.Load(settings, log)

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	cl, err := client.Dial(ctx, cfg.ServerHost, cfg.ServerPort, client.Options{Log: log, Debug: settings.DebugEnabled})
	if err != nil {
		if errors.Is(err, transport.ErrConnectionRefused) {
			logger.Critical(log, "connection_refused", zap.String("host", cfg.ServerHost), zap.Int("port", cfg.ServerPort))
		}
		return err
	}
	defer cl.Close()
	log.Info("connected", zap.String("conn_id", cl.ID()), zap.String("host", cfg.ServerHost), zap.Int("port", cfg.ServerPort))

	bus := event.NewBus(log)
	a := app.New(cl, store, settings, bus, app.Options{Log: log})
	defer subscriber.RegisterAll(bus, out, a.ContactSummaries)()
	// 登录成功后拉取离线消息
	defer bus.Subscribe(event.TypeLoginResult, func(e event.Event) {
		if le, ok := e.(*event.LoginEvent); ok && le.Success {
			if err := a.RequestOffline(); err != nil {
				log.Warn("request_offline_failed", zap.Error(err))
			}
		}
	})()

	reg := command.NewRegistry()
	if err := command.RegisterBuiltins(reg); err != nil {
		return err
	}

	ctx, quit := context.WithCancel(ctx)
	defer quit()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := cl.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error { return app.NewDrainer(a).Run(gctx) })
	g.Go(func() error {
		for {
			if _, err := a.WaitWelcomeBack(gctx); err != nil {
				return nil
			}
		}
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return observe.StartHTTP(gctx, cfg.MetricsAddr) })
	}
	g.Go(func() error {
		return repl(gctx, in, reg, &command.Context{App: a, Settings: settings, Out: out, Quit: quit}, a)
	})

	autoLogin(settings, a, log)

	if err := g.Wait(); err != nil {
		logger.Critical(log, "client_stopped", zap.Error(err))
		return err
	}
	a.Wait()
	return nil
}

// autoLogin 配置里保存了账号时直接登录
func autoLogin(settings *config.File, a *app.App, log *zap.Logger) {
	username := settings.GetDefault("account/username", "")
	password := settings.GetDefault("account/password", "")
	if username == "" || password == "" {
		return
	}
	log.Info("auto_login", zap.String("username", username))
	if err := a.Login(username, password); err != nil {
		log.Warn("auto_login_failed", zap.Error(err))
	}
}

// repl 逐行处理输入，直到 ctx 结束或输入结束
func repl(ctx context.Context, in io.Reader, reg *command.Registry, base *command.Context, a *app.App) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				base.Quit()
				return nil
			}
			cc := *base
			cc.Ctx = ctx
			handled, err := reg.Execute(line, &cc)
			if err != nil {
				_, _ = fmt.Fprintf(base.Out, "! %v\n", err)
				continue
			}
			if handled || line == "" {
				continue
			}
			peer := a.CurrentChat()
			if peer == 0 {
				_, _ = fmt.Fprintln(base.Out, "没有打开的会话，用 /chat <uid> 打开，/help 查看命令")
				continue
			}
			if err := a.SendText(peer, line); err != nil && !errors.Is(err, app.ErrEmptyMessage) {
				_, _ = fmt.Fprintf(base.Out, "! %v\n", err)
			}
		}
	}
}
