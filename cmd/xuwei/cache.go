package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/peter-zx/xuwei-data/internal/config"
	"github.com/peter-zx/xuwei-data/internal/mappingcache"
	"github.com/peter-zx/xuwei-data/internal/store"
)

// mappingCaches 命令行使用的文件缓存与服务端使用的数据库缓存
type mappingCaches struct {
	file  *mappingcache.File
	store *store.Store
}

func openCaches(cfg *config.AppConfig, baseDir string) (*mappingCaches, error) {
	dataDir, err := config.EnsureDataDir(cfg, baseDir)
	if err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	st, err := store.New(config.DBPath(cfg, dataDir))
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	return &mappingCaches{
		file:  mappingcache.New(filepath.Join(dataDir, mappingcache.DefaultFilename)),
		store: st,
	}, nil
}

func (c *mappingCaches) Close() error {
	return c.store.Close()
}

func (c *mappingCaches) list(ctx context.Context, out io.Writer) error {
	entries, err := c.store.ListMappings(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "服务端 (%d):\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(out, "  %s  %s  %d 个 Sheet\n", e.UpdatedAt.Format("2006-01-02 15:04:05"), e.Fingerprint, len(e.Mappings))
	}

	fps, err := c.file.Fingerprints()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "命令行 (%d):\n", len(fps))
	for _, fp := range fps {
		fmt.Fprintf(out, "  %s\n", fp)
	}
	return nil
}

func (c *mappingCaches) remove(ctx context.Context, fingerprint string) error {
	if err := c.store.DeleteMapping(ctx, fingerprint); err != nil {
		return err
	}
	return c.file.DeleteMapping(ctx, fingerprint)
}

func (c *mappingCaches) clear(ctx context.Context) error {
	if err := c.store.ClearMappings(ctx); err != nil {
		return err
	}
	return c.file.ClearMappings(ctx)
}

func newCacheCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "管理映射缓存",
	}

	withCaches := func(fn func(ctx context.Context, c *mappingCaches, args []string, out io.Writer) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, _, dir, err := opts.load()
			if err != nil {
				return err
			}
			c, err := openCaches(cfg, dir)
			if err != nil {
				return err
			}
			defer c.Close()
			return fn(cmd.Context(), c, args, cmd.OutOrStdout())
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "列出缓存的映射",
			Args:  cobra.NoArgs,
			RunE: withCaches(func(ctx context.Context, c *mappingCaches, _ []string, out io.Writer) error {
				return c.list(ctx, out)
			}),
		},
		&cobra.Command{
			Use:   "delete [fingerprint]",
			Short: "删除指定文件指纹的映射",
			Args:  cobra.ExactArgs(1),
			RunE: withCaches(func(ctx context.Context, c *mappingCaches, args []string, out io.Writer) error {
				if err := c.remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(out, "已删除 %s\n", args[0])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "清空所有映射缓存",
			Args:  cobra.NoArgs,
			RunE: withCaches(func(ctx context.Context, c *mappingCaches, _ []string, out io.Writer) error {
				if err := c.clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(out, "已清空映射缓存")
				return nil
			}),
		},
	)
	return cmd
}
