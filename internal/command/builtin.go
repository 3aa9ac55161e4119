package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hongjun500/writepapers/internal/protocol"
	"github.com/hongjun500/writepapers/pkg/logger"
)

// friendTokenTimeout /token 等待服务端回复的上限
const friendTokenTimeout = 5 * time.Second

// RegisterBuiltins 注册内置命令
func RegisterBuiltins(r *Registry) error {
	cmds := []*Command{
		{
			Name: "help", Aliases: []string{"h"}, Help: "查看帮助", MinLevel: levelGuest,
			Handler: func(ctx *Context) error {
				for _, c := range r.List() {
					line := "/" + c.Name
					if c.Usage != "" {
						line += " " + c.Usage
					}
					line += " - " + c.Help
					if len(c.Aliases) > 0 {
						line += " (别名: " + strings.Join(c.Aliases, ", ") + ")"
					}
					ctx.printf("%s", line)
				}
				return nil
			},
		},
		{
			Name: "login", Usage: "<username> <password>", Help: "登录", MinLevel: levelGuest,
			Handler: func(ctx *Context) error {
				if len(ctx.Args) != 2 {
					return fmt.Errorf("用法: /login <username> <password>")
				}
				return ctx.App.Login(ctx.Args[0], ctx.Args[1])
			},
		},
		{
			Name: "register", Usage: "<username> <password>", Help: "注册账号", MinLevel: levelGuest,
			Handler: func(ctx *Context) error {
				if len(ctx.Args) != 2 {
					return fmt.Errorf("用法: /register <username> <password>")
				}
				return ctx.App.Register(ctx.Args[0], ctx.Args[1])
			},
		},
		{
			Name: "send", Aliases: []string{"s"}, Usage: "[uid] <text>", Help: "发送文本，省略 uid 时发给当前会话", MinLevel: levelUser,
			Handler: func(ctx *Context) error {
				to, rest, err := target(ctx)
				if err != nil {
					return err
				}
				if len(rest) == 0 {
					return fmt.Errorf("用法: /send [uid] <text>")
				}
				return ctx.App.SendText(to, strings.Join(rest, " "))
			},
		},
		{
			Name: "image", Aliases: []string{"img"}, Usage: "[uid] <path>", Help: "发送图片（不超过 2MB）", MinLevel: levelUser,
			Handler: func(ctx *Context) error {
				to, rest, err := target(ctx)
				if err != nil {
					return err
				}
				if len(rest) != 1 {
					return fmt.Errorf("用法: /image [uid] <path>")
				}
				if _, err := ctx.App.SendImage(to, rest[0]); err != nil {
					return err
				}
				ctx.printf("正在发送图片 %s", rest[0])
				return nil
			},
		},
		{
			Name: "add", Usage: "<uid|username> [verify_token]", Help: "添加好友", MinLevel: levelUser,
			Handler: func(ctx *Context) error {
				if len(ctx.Args) < 1 || len(ctx.Args) > 2 {
					return fmt.Errorf("用法: /add <uid|username> [verify_token]")
				}
				verify := ""
				if len(ctx.Args) == 2 {
					verify = ctx.Args[1]
				}
				return ctx.App.AddFriend(ctx.Args[0], verify)
			},
		},
		{
			Name: "token", Help: "查看好友口令", MinLevel: levelUser,
			Handler: func(ctx *Context) error {
				c, cancel := context.WithTimeout(ctx.Ctx, friendTokenTimeout)
				defer cancel()
				tok, err := ctx.App.FetchFriendToken(c)
				if err != nil {
					return fmt.Errorf("获取好友口令失败: %w", err)
				}
				ctx.printf("好友口令: %s", tok)
				return nil
			},
		},
		{
			Name: "settoken", Usage: "<token>", Help: "修改好友口令", MinLevel: levelUser,
			Handler: func(ctx *Context) error {
				if len(ctx.Args) != 1 {
					return fmt.Errorf("用法: /settoken <token>")
				}
				return ctx.App.ChangeFriendToken(ctx.Args[0])
			},
		},
		{
			Name: "offline", Help: "拉取离线消息", MinLevel: levelUser,
			Handler: func(ctx *Context) error { return ctx.App.RequestOffline() },
		},
		{
			Name: "chat", Aliases: []string{"c"}, Usage: "<uid>", Help: "打开会话并显示历史消息", MinLevel: levelUser,
			Handler: func(ctx *Context) error {
				if len(ctx.Args) != 1 {
					return fmt.Errorf("用法: /chat <uid>")
				}
				uid, ok := protocol.ParseUID(ctx.Args[0])
				if !ok {
					return fmt.Errorf("uid 不是整数: %s", ctx.Args[0])
				}
				hist, err := ctx.App.OpenChat(int64(uid))
				if err != nil {
					return err
				}
				ctx.printf("== 与 %d 的会话，共 %d 条 ==", uid, len(hist))
				for _, m := range hist {
					content := m.Content
					if m.Type == protocol.ContentImage {
						content = "[图片]"
					}
					ctx.printf("[%s] %s: %s", clock(m.SendTime), m.Sender, content)
				}
				return nil
			},
		},
		{
			Name: "close", Help: "关闭当前会话", MinLevel: levelUser,
			Handler: func(ctx *Context) error {
				ctx.App.CloseChat()
				return nil
			},
		},
		{
			Name: "contacts", Aliases: []string{"ls"}, Help: "联系人列表", MinLevel: levelUser,
			Handler: func(ctx *Context) error {
				list, err := ctx.App.ContactSummaries()
				if err != nil {
					return err
				}
				if len(list) == 0 {
					ctx.printf("暂无联系人")
					return nil
				}
				for _, c := range list {
					when := ""
					if !c.LastTime.IsZero() {
						when = c.LastTime.Format("15:04")
					}
					ctx.printf("%6d  %-12s %-5s %s", c.UID, c.Name, when, c.LastMessage)
				}
				return nil
			},
		},
		{
			Name: "debug", Usage: "[on|off]", Help: "切换调试输出", MinLevel: levelGuest,
			Handler: func(ctx *Context) error {
				if ctx.Settings == nil {
					return fmt.Errorf("没有可写的配置文件")
				}
				on := !ctx.Settings.Bool("debug/enabled")
				if len(ctx.Args) == 1 {
					switch ctx.Args[0] {
					case "on", "true":
						on = true
					case "off", "false":
						on = false
					default:
						return fmt.Errorf("用法: /debug [on|off]")
					}
				}
				if err := ctx.Settings.Set("debug/enabled", strconv.FormatBool(on)); err != nil {
					return err
				}
				if on {
					logger.SetLevel("debug")
				} else {
					logger.SetLevel("info")
				}
				ctx.printf("调试模式: %v", on)
				return nil
			},
		},
		{
			Name: "quit", Aliases: []string{"exit", "q"}, Help: "退出", MinLevel: levelGuest,
			Handler: func(ctx *Context) error {
				ctx.printf("再见！")
				if ctx.Quit != nil {
					ctx.Quit()
				}
				return nil
			},
		},
	}
	for _, c := range cmds {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// target 第一个参数是 uid 时用它，否则发给当前会话
func target(ctx *Context) (int64, []string, error) {
	if len(ctx.Args) > 1 {
		if uid, ok := protocol.ParseUID(ctx.Args[0]); ok {
			return int64(uid), ctx.Args[1:], nil
		}
	}
	if cur := ctx.App.CurrentChat(); cur != 0 {
		return cur, ctx.Args, nil
	}
	return 0, nil, fmt.Errorf("没有打开的会话，请先 /chat <uid> 或指定 uid")
}

func clock(sec float64) string {
	return time.Unix(int64(sec), 0).Format("15:04")
}
