// xdlqctl 是死信队列的运维命令行工具。
//
// 用法:
//
//	xdlqctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-l, --log-level  日志级别 (默认: warn)
//	-t, --timeout    命令超时时间 (默认: 30s)
//
// 命令:
//
//	topic <源主题>          输出源主题对应的死信主题名
//	ensure-topic <源主题>   按配置文件连接 Kafka 并确保死信主题存在
//	headers <k=v>...        解码死信记录头，输出 JSON
//
// 退出码:
//
//	0: 成功
//	1: 执行失败
//	2: 参数错误
//
// 示例:
//
//	xdlqctl topic orders                               # orders-rejected
//	xdlqctl topic --suffix -dlq orders                 # orders-dlq
//	xdlqctl ensure-topic -c dlq.yaml orders
//	xdlqctl headers error.type=PRODUCTION error.record.topic=orders ...
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
)

const defaultTimeout = 30 * time.Second

// 版本信息，通过 -ldflags "-X main.Version=..." 注入。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "xdlqctl",
		Usage:     "死信队列运维工具",
		Version:   fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "日志级别 (debug/info/warn/error)",
				Value:   "warn",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "命令超时时间",
				Value:   defaultTimeout,
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		// 设计决策: 退出码统一由 run() 映射，不让 urfave/cli 直接 os.Exit。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(stderr, err)
			}
		},
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := createApp(stdout, stderr).Run(ctx, args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		if isCLIUsageError(err) {
			return 2
		}
		fmt.Fprintf(stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}
