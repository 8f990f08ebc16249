package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/peter-zx/xuwei-data/internal/matcher"
	"github.com/peter-zx/xuwei-data/internal/model"
)

const (
	configFilename = "config.toml"
	envFilename    = ".env"
	envPrefix      = "XUWEI_"
)

// AppConfig 应用配置
type AppConfig struct {
	Server  ServerConfig     `toml:"server"`
	Data    DataConfig       `toml:"data"`
	Upload  UploadConfig     `toml:"upload"`
	Compare CompareConfig    `toml:"compare"`
	Export  ExportConfig     `toml:"export"`
	Log     LogConfig        `toml:"log"`
	Client  ClientConfig     `toml:"client"`
	Presets []matcher.Preset `toml:"presets"`

	// Keywords 追加的表头关键词：标准字段 -> 关键词
	Keywords map[string][]string `toml:"keywords"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
	DevMode bool   `toml:"dev_mode"`
}

// DataConfig 数据配置
type DataConfig struct {
	DataDir string `toml:"data_dir"`
	DBFile  string `toml:"db_file"`
}

// UploadConfig 上传配置
type UploadConfig struct {
	MaxSizeMB         int      `toml:"max_size_mb"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	TTLMinutes        int      `toml:"ttl_minutes"` // 上传文件在内存中保留的时长
}

// CompareConfig 对比配置
type CompareConfig struct {
	Identity string `toml:"identity"` // certificate_no / legacy
	Workers  int    `toml:"workers"`  // 并行抽取的 Sheet 数
}

// ExportConfig 导出配置
type ExportConfig struct {
	Label              string `toml:"label"`
	DownloadTTLSeconds int    `toml:"download_ttl_seconds"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `toml:"level"`
}

// ClientConfig 命令行连接远端服务时使用
type ClientConfig struct {
	ServerURL      string `toml:"server_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	Path          string
	PortSpecified bool
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Host:    "",
			Port:    8080,
			DevMode: false,
		},
		Data: DataConfig{
			DataDir: "data",
			DBFile:  "xuwei.db",
		},
		Upload: UploadConfig{
			MaxSizeMB:         16,
			AllowedExtensions: []string{".xlsx", ".xls"},
			TTLMinutes:        120,
		},
		Compare: CompareConfig{
			Identity: string(model.IdentityCertificateNo),
			Workers:  4,
		},
		Export: ExportConfig{
			Label:              "数据整理结果",
			DownloadTTLSeconds: 300,
		},
		Log: LogConfig{
			Level: "info",
		},
		Client: ClientConfig{
			ServerURL:      "http://localhost:8080",
			TimeoutSeconds: 60,
		},
	}
}

// MaxUploadBytes 上传大小上限（字节）
func (c *AppConfig) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxSizeMB) << 20
}

// UploadTTL 上传文件保留时长
func (c *AppConfig) UploadTTL() time.Duration {
	return time.Duration(c.Upload.TTLMinutes) * time.Minute
}

// DownloadTTL 导出下载链接有效期
func (c *AppConfig) DownloadTTL() time.Duration {
	return time.Duration(c.Export.DownloadTTLSeconds) * time.Second
}

// ClientTimeout 客户端请求超时
func (c *AppConfig) ClientTimeout() time.Duration {
	return time.Duration(c.Client.TimeoutSeconds) * time.Second
}

// Identity 人员标识口径
func (c *AppConfig) Identity() model.Identity {
	id, _ := model.ParseIdentity(c.Compare.Identity)
	return id
}

// Validate 校验配置
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("invalid upload.max_size_mb: %d", c.Upload.MaxSizeMB)
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		return errors.New("upload.allowed_extensions must not be empty")
	}
	if _, ok := model.ParseIdentity(c.Compare.Identity); !ok {
		return fmt.Errorf("invalid compare.identity: %q", c.Compare.Identity)
	}
	if c.Compare.Workers <= 0 {
		return fmt.Errorf("invalid compare.workers: %d", c.Compare.Workers)
	}
	for field := range c.Keywords {
		if !model.IsStandardField(field) {
			return fmt.Errorf("invalid keywords: unknown field %q", field)
		}
	}
	return nil
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverAny, ok := raw["server"]
	if !ok {
		return false
	}

	serverMap, ok := serverAny.(map[string]any)
	if !ok {
		return false
	}

	_, ok = serverMap["port"]
	return ok
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// LoadConfigWithInfo 从可执行文件同目录的 config.toml 加载配置
func LoadConfigWithInfo() (*AppConfig, LoadConfigInfo, error) {
	exeDir, err := GetExeDir()
	if err != nil {
		// 无法获取可执行文件目录，使用当前目录
		exeDir = "."
	}
	return LoadFrom(exeDir)
}

// LoadFrom 从指定目录加载 config.toml 与 .env，再应用 XUWEI_* 环境变量
func LoadFrom(dir string) (*AppConfig, LoadConfigInfo, error) {
	info := LoadConfigInfo{Path: filepath.Join(dir, configFilename)}
	config := DefaultConfig()

	// .env 不覆盖已存在的环境变量
	if err := godotenv.Load(filepath.Join(dir, envFilename)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, info, fmt.Errorf("load %s: %w", envFilename, err)
	}

	data, err := os.ReadFile(info.Path)
	switch {
	case err == nil:
		info.PortSpecified = isPortSpecifiedInToml(data)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, info, fmt.Errorf("parse %s: %w", configFilename, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// 配置文件不存在，使用默认配置
	default:
		return nil, info, err
	}

	if err := applyEnv(config, &info); err != nil {
		return nil, info, err
	}
	if err := config.Validate(); err != nil {
		return nil, info, err
	}
	return config, info, nil
}

func applyEnv(c *AppConfig, info *LoadConfigInfo) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := os.LookupEnv(envPrefix + key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
		}
		*dst = n
		return nil
	}

	if v, ok := os.LookupEnv(envPrefix + "PORT"); ok && v != "" {
		info.PortSpecified = true
	}
	for key, dst := range map[string]*int{
		"PORT":           &c.Server.Port,
		"UPLOAD_MAX_MB":  &c.Upload.MaxSizeMB,
		"WORKERS":        &c.Compare.Workers,
		"CLIENT_TIMEOUT": &c.Client.TimeoutSeconds,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	str("HOST", &c.Server.Host)
	str("DATA_DIR", &c.Data.DataDir)
	str("IDENTITY", &c.Compare.Identity)
	str("LOG_LEVEL", &c.Log.Level)
	str("SERVER_URL", &c.Client.ServerURL)
	str("EXPORT_LABEL", &c.Export.Label)

	if v, ok := os.LookupEnv(envPrefix + "DEV_MODE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sDEV_MODE: %w", envPrefix, err)
		}
		c.Server.DevMode = b
	}
	return nil
}

// SaveConfig 保存配置到 config.toml
func SaveConfig(config *AppConfig, dir string) error {
	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, configFilename), data, 0644)
}

// EnsureDataDir 确保数据目录存在；相对路径以 baseDir 为基准
func EnsureDataDir(config *AppConfig, baseDir string) (string, error) {
	dataDir := config.Data.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(baseDir, dataDir)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", err
	}
	return dataDir, nil
}

// DBPath 数据库文件路径
func DBPath(config *AppConfig, dataDir string) string {
	return filepath.Join(dataDir, config.Data.DBFile)
}
