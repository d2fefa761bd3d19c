package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/urfave/cli/v3"

	"github.com/omeyang/xstream/pkg/observability/xlog"
	"github.com/omeyang/xstream/pkg/stream/xdlq"
	"github.com/omeyang/xstream/pkg/util/xjson"
)

// usageError 参数错误，退出码 2。
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

// isCLIUsageError 识别 urfave/cli 自身产生的参数错误。
func isCLIUsageError(err error) bool {
	msg := err.Error()
	for _, prefix := range []string{"flag provided but not defined", "invalid value", "Required flag", "No help topic for"} {
		if strings.Contains(msg, prefix) {
			return true
		}
	}
	return false
}

func createCommands() []*cli.Command {
	return []*cli.Command{
		createTopicCommand(),
		createEnsureTopicCommand(),
		createHeadersCommand(),
	}
}

func createTopicCommand() *cli.Command {
	return &cli.Command{
		Name:      "topic",
		Usage:     "输出死信主题名",
		ArgsUsage: "<source-topic>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "suffix",
				Aliases: []string{"s"},
				Usage:   "死信主题后缀",
				Value:   xdlq.DefaultSuffix,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			source, err := sourceArg(cmd)
			if err != nil {
				return err
			}
			return cmdTopic(cmd.Root().Writer, source, cmd.String("suffix"))
		},
	}
}

func createEnsureTopicCommand() *cli.Command {
	return &cli.Command{
		Name:      "ensure-topic",
		Aliases:   []string{"ensure"},
		Usage:     "确保死信主题存在",
		ArgsUsage: "<source-topic>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Collector 配置文件 (YAML/JSON)",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			source, err := sourceArg(cmd)
			if err != nil {
				return err
			}
			logger, cleanup, err := xlog.New().
				SetOutput(cmd.Root().ErrWriter).
				SetLevelString(cmd.String("log-level")).
				Build()
			if err != nil {
				return usagef("%v", err)
			}
			defer func() { _ = cleanup() }()

			ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
			defer cancel()
			return cmdEnsureTopic(ctx, cmd.Root().Writer, logger, cmd.String("config"), source, nil)
		},
	}
}

func createHeadersCommand() *cli.Command {
	return &cli.Command{
		Name:      "headers",
		Usage:     "解码死信记录头",
		ArgsUsage: "<key=value>...",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				return usagef("missing headers")
			}
			return cmdHeaders(cmd.Root().Writer, cmd.Args().Slice())
		},
	}
}

func sourceArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", usagef("%s: expected exactly one source topic", cmd.Name)
	}
	source := strings.TrimSpace(cmd.Args().First())
	if source == "" {
		return "", usagef("%s: empty source topic", cmd.Name)
	}
	return source, nil
}

func cmdTopic(w io.Writer, source, suffix string) error {
	_, err := fmt.Fprintln(w, xdlq.ResolveTopic(source, suffix))
	return err
}

// cmdEnsureTopic 加载配置、获取 Collector 并建主题。
// factory 为 nil 时使用真实的 Kafka 客户端。
func cmdEnsureTopic(ctx context.Context, w io.Writer, logger xlog.Logger, path, source string, factory xdlq.ClientFactory) error {
	cfg, err := xdlq.LoadCollectorConfig(path, xdlq.WithAutoCreateTopic(true))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return usagef("config file not found: %s", path)
		}
		return err
	}

	opts := []xdlq.RegistryOption{xdlq.WithRegistryLogger(logger)}
	if factory != nil {
		opts = append(opts, xdlq.WithClientFactory(factory))
	}
	registry, err := xdlq.NewRegistry(opts...)
	if err != nil {
		return err
	}
	defer registry.Close()

	handle, err := registry.Acquire(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = handle.Release() }()

	topic := cfg.TopicNameExtractor.Extract(xdlq.FailureContext{Topic: source})
	if topic == "" {
		return usagef("no dlq topic derived for %q", source)
	}
	if err := handle.Collector().EnsureTopic(ctx, topic); err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, topic)
	return err
}

func cmdHeaders(w io.Writer, pairs []string) error {
	headers := make([]kafka.Header, 0, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return usagef("invalid header %q, want key=value", pair)
		}
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	md, err := xdlq.DecodeHeaders(headers)
	if err != nil {
		return err
	}
	out, err := xjson.PrettyE(md)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}
