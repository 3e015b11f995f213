/*
Package cli 提供 contactctl 命令行工具，在终端中走完一次联系表单提交。
*/
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"portfolio/backend/internal/config"
	"portfolio/backend/internal/logger"
)

var verbose bool

// NewRootCmd 创建根命令，输出写入 out
func NewRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "contactctl",
		Short: "Send portfolio contact messages from the terminal",
		Long: `contactctl runs the contact form pipeline with the configured
upload and mail providers.

Configuration is read from PORTFOLIO_* environment variables and .env.

Example:
  contactctl send --name Ann --email ann@example.com --message "Hi" --attach ./ref.jpg
  contactctl config`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newSendCmd())
	root.AddCommand(newConfigCmd())
	return root
}

// Execute 执行根命令
func Execute(out io.Writer) error {
	return NewRootCmd(out).Execute()
}

// loadConfig 加载配置并创建日志记录器
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	opts := logger.FromConfig(cfg.Log)
	opts.LogFile = ""
	opts.Development = true
	if verbose {
		opts.Level = "debug"
	} else {
		opts.Level = "warn"
	}
	log, err := logger.New(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}
