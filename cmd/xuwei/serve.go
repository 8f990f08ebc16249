package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/peter-zx/xuwei-data/internal/api"
	"github.com/peter-zx/xuwei-data/internal/config"
	"github.com/peter-zx/xuwei-data/internal/metrics"
	"github.com/peter-zx/xuwei-data/internal/server"
	"github.com/peter-zx/xuwei-data/internal/service"
	"github.com/peter-zx/xuwei-data/internal/store"
	"github.com/peter-zx/xuwei-data/internal/util"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		port      int
		devMode   bool
		dataDir   string
		noBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, info, dir, err := opts.load()
			if err != nil {
				return err
			}
			// config.toml 或环境变量中显式配置的端口优先
			if port > 0 && !info.PortSpecified {
				cfg.Server.Port = port
			}
			if devMode {
				cfg.Server.DevMode = true
			}
			if dataDir != "" {
				cfg.Data.DataDir = dataDir
			}
			return runServe(cmd.Context(), cfg, dir, !noBrowser)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "服务端口 (config.toml 优先；仅当未显式配置 port 时生效)")
	cmd.Flags().BoolVar(&devMode, "dev", false, "开发模式")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "数据目录 (覆盖配置文件)")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "不自动打开浏览器")
	return cmd
}

func runServe(ctx context.Context, cfg *config.AppConfig, baseDir string, openBrowser bool) error {
	fmt.Println("==========================================")
	fmt.Println("  xuwei - 残疾人名单整理工具")
	fmt.Println("==========================================")

	logger := newLogger(cfg.Log.Level)

	dataDir, err := config.EnsureDataDir(cfg, baseDir)
	if err != nil {
		return fmt.Errorf("创建数据目录失败: %w", err)
	}
	fmt.Printf("数据目录: %s\n", dataDir)

	st, err := store.New(config.DBPath(cfg, dataDir))
	if err != nil {
		return fmt.Errorf("初始化数据库失败: %w", err)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := service.New(append(serviceOptions(cfg, logger),
		service.WithRunStore(st),
		service.WithMetrics(m),
	)...)
	defer svc.Close()

	handler := api.NewHandler(svc,
		api.WithMappingCache(st),
		api.WithLogger(logger),
		api.WithExportLabel(cfg.Export.Label),
		api.WithDownloadTTL(cfg.DownloadTTL()),
	)
	srv := server.NewServer(cfg, handler,
		server.WithMetrics(m, reg),
		server.WithHealthCheck(st.Ping),
	)

	url := util.LocalURL(cfg.Server.Host, cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("服务启动中，监听 %s ...\n", srv.Addr())
		errCh <- srv.Run()
	}()

	if openBrowser && !cfg.Server.DevMode {
		fmt.Printf("正在打开浏览器: %s\n", url)
		if err := util.OpenBrowser(url); err != nil {
			fmt.Printf("无法自动打开浏览器，请手动访问: %s\n", url)
		}
	} else {
		fmt.Printf("请访问 %s\n", url)
	}
	fmt.Println("\n按 Ctrl+C 停止服务...")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("服务启动失败: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	fmt.Println("\n正在关闭服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("关闭服务失败: %v", err)
	}
	return nil
}
