package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peter-zx/xuwei-data/internal/config"
	"github.com/peter-zx/xuwei-data/internal/matcher"
	"github.com/peter-zx/xuwei-data/internal/service"
)

type globalOptions struct {
	configDir string
	logLevel  string
}

func main() {
	var opts globalOptions

	rootCmd := &cobra.Command{
		Use:           "xuwei",
		Short:         "残疾人名单整理：多 Sheet 字段映射、抽取与对比",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", "", "config.toml 所在目录 (默认: 可执行文件所在目录)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "日志级别 debug|info|warn|error (覆盖配置文件)")

	rootCmd.AddCommand(
		newServeCmd(&opts),
		newCompareCmd(&opts),
		newInspectCmd(&opts),
		newCacheCmd(&opts),
		newInitConfigCmd(&opts),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load 加载配置，同时返回加载信息与配置所在目录
func (o *globalOptions) load() (*config.AppConfig, config.LoadConfigInfo, string, error) {
	var (
		cfg  *config.AppConfig
		info config.LoadConfigInfo
		err  error
	)
	if o.configDir != "" {
		cfg, info, err = config.LoadFrom(o.configDir)
	} else {
		cfg, info, err = config.LoadConfigWithInfo()
	}
	dir := filepath.Dir(info.Path)
	if err != nil {
		return nil, info, dir, fmt.Errorf("加载配置失败: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	return cfg, info, dir, nil
}

func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "warn", "warning":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

// serviceOptions 由配置生成本地服务的选项
func serviceOptions(cfg *config.AppConfig, logger *slog.Logger) []service.Option {
	return []service.Option{
		service.WithLogger(logger),
		service.WithMatcher(newMatcher(cfg)),
		service.WithMaxUploadBytes(cfg.MaxUploadBytes()),
		service.WithAllowedExtensions(cfg.Upload.AllowedExtensions),
		service.WithWorkers(cfg.Compare.Workers),
		service.WithIdentity(cfg.Identity()),
		service.WithUploadTTL(cfg.UploadTTL()),
	}
}

func newMatcher(cfg *config.AppConfig) *matcher.Matcher {
	return matcher.New(matcher.WithPresets(cfg.Presets), matcher.WithKeywords(cfg.Keywords))
}

func newInitConfigCmd(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "在配置目录写出默认 config.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, info, dir, err := opts.load()
			if err != nil {
				return err
			}
			path := info.Path
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s 已存在，使用 --force 覆盖", path)
			}
			if err := config.SaveConfig(cfg, dir); err != nil {
				return fmt.Errorf("写入配置失败: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "已写入 %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "覆盖已存在的 config.toml")
	return cmd
}
