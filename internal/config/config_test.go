package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultConfigLoads(t *testing.T) {
	cfg, err := LoadConfigFromFile(writeConfig(t, GetDefaultConfig()))
	require.NoError(t, err)

	assert.Equal(t, ProviderAliyun, cfg.OCRProvider)
	assert.Equal(t, 10*time.Second, cfg.OCRTimeout())
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 3*time.Minute, cfg.FileTimeout())
	assert.True(t, cfg.ContinueOnError)
	assert.True(t, cfg.ExportXLSX)
	assert.False(t, cfg.IncludeImages)
	assert.Equal(t, "https://ocr-api.cn-hangzhou.aliyuncs.com", cfg.Aliyun.Endpoint)
	assert.Equal(t, "RecognizeGeneralStructure", cfg.Aliyun.Action)
	assert.Equal(t, "ap-guangzhou", cfg.Tencent.Region)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoadConfigFromFileOverrides(t *testing.T) {
	path := writeConfig(t, `
ocr_provider = "Tencent"
workers = 8
max_retries = 3

[tencent]
secret_id = "sid"
secret_key = "skey"
`)
	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderTencent, cfg.OCRProvider)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "sid", cfg.Tencent.SecretID)
	assert.Equal(t, "skey", cfg.Tencent.SecretKey)
	assert.Equal(t, "ocr.tencentcloudapi.com", cfg.Tencent.Endpoint)
	assert.Equal(t, 10, cfg.OCRTimeoutSeconds)
}

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("ALIYUN_ACCESS_KEY_ID", "env-id")
	t.Setenv("ALIYUN_ACCESS_KEY_SECRET", "env-secret")
	t.Setenv("ALIYUN_OCR_ENDPOINT", "https://ocr-api.cn-shanghai.aliyuncs.com")
	t.Setenv("INVOICE_PARSER_WORKERS", "2")

	cfg, err := LoadConfigFromFile(writeConfig(t, GetDefaultConfig()))
	require.NoError(t, err)

	assert.Equal(t, "env-id", cfg.Aliyun.AccessKeyID)
	assert.Equal(t, "env-secret", cfg.Aliyun.AccessKeySecret)
	assert.Equal(t, "https://ocr-api.cn-shanghai.aliyuncs.com", cfg.Aliyun.Endpoint)
	assert.Equal(t, 2, cfg.Workers)
}

func TestCredentialsFromDotEnv(t *testing.T) {
	path := writeConfig(t, GetDefaultConfig())

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TENCENT_SECRET_ID=dotenv-id\nTENCENT_SECRET_KEY=dotenv-key\n"), 0644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("TENCENT_SECRET_ID")
		_ = os.Unsetenv("TENCENT_SECRET_KEY")
	})

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-id", cfg.Tencent.SecretID)
	assert.Equal(t, "dotenv-key", cfg.Tencent.SecretKey)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		return Config{OCRTimeoutSeconds: 10, MaxRetries: 2, Workers: 4, FileTimeoutSeconds: 180}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.OCRProvider = "baidu" }, "不支持的OCR服务"},
		{"zero timeout", func(c *Config) { c.OCRTimeoutSeconds = 0 }, "ocr_timeout_seconds"},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, "max_retries"},
		{"zero workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"zero file timeout", func(c *Config) { c.FileTimeoutSeconds = 0 }, "file_timeout_seconds"},
		{"negative pages", func(c *Config) { c.PDFMaxPages = -1 }, "pdf_max_pages"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "日志格式"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := validateConfig(&cfg)
			if tt.errMsg == "" {
				require.NoError(t, err)
				assert.Equal(t, ProviderAliyun, cfg.OCRProvider)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.errMsg), err.Error())
		})
	}
}

func TestLoadConfigFromFileMissing(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestUpdateConfig(t *testing.T) {
	path := writeConfig(t, GetDefaultConfig())
	_, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	require.NoError(t, UpdateConfig("aliyun.access_key_id", "new-id"))

	viper.Reset()
	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new-id", cfg.Aliyun.AccessKeyID)
}
