package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 应用名称，用于配置目录和环境变量前缀
const (
	appName   = "invoice-parser"
	envPrefix = "INVOICE_PARSER"
)

// OCR服务提供方
const (
	ProviderAliyun  = "aliyun"
	ProviderTencent = "tencent"
	ProviderNone    = "none"
)

// AliyunConfig 阿里云OCR配置
type AliyunConfig struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	Endpoint        string `mapstructure:"endpoint"`
	Action          string `mapstructure:"action"`
}

// TencentConfig 腾讯云OCR配置
type TencentConfig struct {
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
}

// Config 应用程序配置
type Config struct {
	// OCR配置
	OCRProvider       string        `mapstructure:"ocr_provider"`
	Aliyun            AliyunConfig  `mapstructure:"aliyun"`
	Tencent           TencentConfig `mapstructure:"tencent"`
	OCRTimeoutSeconds int           `mapstructure:"ocr_timeout_seconds"`
	MaxRetries        int           `mapstructure:"max_retries"`

	// 解析配置
	Workers            int  `mapstructure:"workers"`
	FileTimeoutSeconds int  `mapstructure:"file_timeout_seconds"`
	PDFMaxPages        int  `mapstructure:"pdf_max_pages"`
	IncludeImages      bool `mapstructure:"include_images"`
	ContinueOnError    bool `mapstructure:"continue_on_error"`

	// 输出配置
	OutputDir  string `mapstructure:"output_dir"`
	ExportXLSX bool   `mapstructure:"export_xlsx"`

	// 日志配置
	LogLevel  string `mapstructure:"log_level"`
	LogFile   string `mapstructure:"log_file"`
	LogFormat string `mapstructure:"log_format"`
}

// OCRTimeout 单次OCR请求超时
func (c *Config) OCRTimeout() time.Duration {
	return time.Duration(c.OCRTimeoutSeconds) * time.Second
}

// FileTimeout 单个文件的解析超时
func (c *Config) FileTimeout() time.Duration {
	return time.Duration(c.FileTimeoutSeconds) * time.Second
}

// LoadConfig 从默认路径加载配置，找不到配置文件时在用户目录下生成默认配置
func LoadConfig() (*Config, error) {
	setDefaults()

	if err := loadConfigFile(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("加载配置文件出错: %w", err)
		}
		if err := createDefaultConfig(); err != nil {
			return nil, fmt.Errorf("无法创建默认配置: %w", err)
		}
	}

	return decode()
}

// LoadConfigFromFile 从指定路径加载配置文件
func LoadConfigFromFile(configPath string) (*Config, error) {
	setDefaults()

	viper.SetConfigFile(configPath)
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	return decode()
}

func decode() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	loadFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置出错: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults 设置默认配置，嵌套键也需要默认值才能被环境变量覆盖
func setDefaults() {
	viper.SetDefault("ocr_provider", ProviderAliyun)
	viper.SetDefault("aliyun.access_key_id", "")
	viper.SetDefault("aliyun.access_key_secret", "")
	viper.SetDefault("aliyun.endpoint", "https://ocr-api.cn-hangzhou.aliyuncs.com")
	viper.SetDefault("aliyun.action", "RecognizeGeneralStructure")
	viper.SetDefault("tencent.secret_id", "")
	viper.SetDefault("tencent.secret_key", "")
	viper.SetDefault("tencent.region", "ap-guangzhou")
	viper.SetDefault("tencent.endpoint", "ocr.tencentcloudapi.com")
	viper.SetDefault("ocr_timeout_seconds", 10)
	viper.SetDefault("max_retries", 2)
	viper.SetDefault("workers", 4)
	viper.SetDefault("file_timeout_seconds", 180)
	viper.SetDefault("pdf_max_pages", 0)
	viper.SetDefault("include_images", false)
	viper.SetDefault("continue_on_error", true)
	viper.SetDefault("output_dir", "./output")
	viper.SetDefault("export_xlsx", true)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_file", "")
	viper.SetDefault("log_format", "console")
}

// loadConfigFile 依次在当前目录、用户配置目录和系统配置目录中查找 config.toml
func loadConfigFile() error {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")

	viper.AddConfigPath(".")
	if dir, err := userConfigDir(); err == nil {
		viper.AddConfigPath(dir)
	}
	viper.AddConfigPath(filepath.Join("/etc", appName))

	return viper.ReadInConfig()
}

func userConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", appName), nil
}

// DefaultConfigPath 用户目录下的配置文件路径
func DefaultConfigPath() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// createDefaultConfig 在用户目录下写入默认配置文件
func createDefaultConfig() error {
	configPath, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(configPath, []byte(GetDefaultConfig()), 0644)
}

// loadDotEnv 读取当前目录下的 .env 文件，已经设置的环境变量不会被覆盖
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("读取 .env 文件失败: %w", err)
}

// loadFromEnv 从环境变量加载配置，云厂商凭证也接受常见的环境变量名
func loadFromEnv() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("aliyun.access_key_id", envPrefix+"_ALIYUN_ACCESS_KEY_ID", "ALIYUN_ACCESS_KEY_ID")
	_ = viper.BindEnv("aliyun.access_key_secret", envPrefix+"_ALIYUN_ACCESS_KEY_SECRET", "ALIYUN_ACCESS_KEY_SECRET")
	_ = viper.BindEnv("aliyun.endpoint", envPrefix+"_ALIYUN_ENDPOINT", "ALIYUN_OCR_ENDPOINT")
	_ = viper.BindEnv("tencent.secret_id", envPrefix+"_TENCENT_SECRET_ID", "TENCENT_SECRET_ID")
	_ = viper.BindEnv("tencent.secret_key", envPrefix+"_TENCENT_SECRET_KEY", "TENCENT_SECRET_KEY")
}

// validateConfig 验证配置
func validateConfig(config *Config) error {
	config.OCRProvider = strings.ToLower(strings.TrimSpace(config.OCRProvider))
	switch config.OCRProvider {
	case "":
		config.OCRProvider = ProviderAliyun
	case ProviderAliyun, ProviderTencent, ProviderNone:
	default:
		return fmt.Errorf("不支持的OCR服务: %s", config.OCRProvider)
	}

	if config.OCRTimeoutSeconds <= 0 {
		return fmt.Errorf("ocr_timeout_seconds 必须大于0")
	}
	if config.MaxRetries < 1 {
		return fmt.Errorf("max_retries 至少为1")
	}
	if config.Workers < 1 {
		return fmt.Errorf("workers 至少为1")
	}
	if config.FileTimeoutSeconds <= 0 {
		return fmt.Errorf("file_timeout_seconds 必须大于0")
	}
	if config.PDFMaxPages < 0 {
		return fmt.Errorf("pdf_max_pages 不能为负数")
	}

	switch strings.ToLower(config.LogFormat) {
	case "", "console", "json":
	default:
		return fmt.Errorf("不支持的日志格式: %s", config.LogFormat)
	}

	return nil
}

// UpdateConfig 更新配置并写回配置文件，没有加载过配置文件时写入用户目录
func UpdateConfig(key string, value interface{}) error {
	viper.Set(key, value)
	if viper.ConfigFileUsed() != "" {
		return viper.WriteConfig()
	}

	configPath, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}
	return viper.WriteConfigAs(configPath)
}

// GetDefaultConfig 返回默认配置文件内容
func GetDefaultConfig() string {
	return `# 发票解析配置文件

# OCR服务：aliyun、tencent 或 none（不使用OCR，矢量OFD和图片将无法识别）
ocr_provider = "aliyun"
ocr_timeout_seconds = 10  # 单次OCR请求超时
max_retries = 2           # 每次识别最多尝试的次数，网络错误和限流会重试

# 解析配置
workers = 4                 # 批量解析的并发数
file_timeout_seconds = 180  # 单个文件的解析超时
pdf_max_pages = 0           # PDF最多读取的页数，0 表示不限制
include_images = false      # 扫描目录时是否包含 png/jpg，图片只能通过OCR识别
continue_on_error = true    # 某个文件解析失败时是否继续处理其他文件

# 输出配置
output_dir = "./output"
export_xlsx = true  # 除 results.json 外同时导出 invoices.xlsx

# 日志配置
log_level = "info"      # debug, info, warn, error
log_file = ""           # 留空表示只输出到控制台
log_format = "console"  # console 或 json

[aliyun]
access_key_id = ""      # 也可以使用 ALIYUN_ACCESS_KEY_ID 环境变量
access_key_secret = ""  # 也可以使用 ALIYUN_ACCESS_KEY_SECRET 环境变量
endpoint = "https://ocr-api.cn-hangzhou.aliyuncs.com"
action = "RecognizeGeneralStructure"

[tencent]
secret_id = ""   # 也可以使用 TENCENT_SECRET_ID 环境变量
secret_key = ""  # 也可以使用 TENCENT_SECRET_KEY 环境变量
region = "ap-guangzhou"
endpoint = "ocr.tencentcloudapi.com"
`
}
