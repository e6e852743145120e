package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-invoice-parser/internal/config"
	"github.com/nerdneilsfield/go-invoice-parser/internal/logger"
)

var (
	// 默认配置
	cfg *config.Config
	log *zap.Logger

	// 命令行参数
	configFile string
	logLevel   string
	provider   string
	dryRun     bool
	timeout    int
	maxRetries int
)

// parse 命令参数
var (
	outputDir     string
	workers       int
	jsonOutput    bool
	noXLSX        bool
	includeImages bool
)

// 配置生成相关参数
var (
	outputToFile string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "invoice-parser",
		Short: "识别PDF、OFD和图片格式的中国发票",
		Long: `从电子发票中识别金额、开票日期和类别。
PDF和文字排版的OFD直接提取文本，矢量排版的OFD和图片通过云OCR识别。`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// gen 命令不需要加载配置
			if cmd.Name() == "gen" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
				return nil
			}
			return setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}

	parseCmd := &cobra.Command{
		Use:   "parse [文件路径或目录...]",
		Short: "批量解析发票文件",
		Long:  `解析一个或多个发票文件或目录，结果保存为 results.json 和 invoices.xlsx。`,
		Args:  cobra.MinimumNArgs(1),
		RunE:  runParse,
	}
	parseCmd.Flags().StringVar(&outputDir, "output-dir", "", "输出目录")
	parseCmd.Flags().IntVar(&workers, "workers", 0, "并发解析的文件数")
	parseCmd.Flags().BoolVar(&jsonOutput, "json", false, "把结果以JSON输出到标准输出")
	parseCmd.Flags().BoolVar(&noXLSX, "no-xlsx", false, "不导出 invoices.xlsx")
	parseCmd.Flags().BoolVar(&includeImages, "include-images", false, "扫描目录时包含 png/jpg 图片")

	ocrCmd := &cobra.Command{
		Use:   "ocr [文件路径]",
		Short: "直接调用OCR服务识别单个文件",
		Args:  cobra.ExactArgs(1),
		RunE:  runOCR,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect [文件路径]",
		Short: "查看PDF或OFD文件的结构信息",
		Long:  `PDF输出页数、版本和提取的文本；OFD输出压缩包条目、排版类型和提取的文本。`,
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "管理配置",
	}

	setCmd := &cobra.Command{
		Use:   "set [键] [值]",
		Short: "修改配置项并写回配置文件",
		Long:  `例如：invoice-parser config set aliyun.access_key_id LTAI...`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.UpdateConfig(args[0], args[1]); err != nil {
				return fmt.Errorf("更新配置失败: %w", err)
			}
			fmt.Printf("配置项 %s 已更新\n", args[0])
			return nil
		},
	}

	genConfigCmd := &cobra.Command{
		Use:   "gen",
		Short: "生成默认配置",
		Long:  "生成默认配置并输出到标准输出或指定文件",
		RunE:  generateConfig,
	}
	genConfigCmd.Flags().StringVarP(&outputToFile, "output", "o", "", "将配置输出到文件而非标准输出")

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "指定配置文件路径")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "OCR服务 (aliyun, tencent, none)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "不执行实际操作，仅打印将要处理的文件")
	rootCmd.PersistentFlags().IntVar(&timeout, "timeout", 0, "单次OCR请求超时时间（秒）")
	rootCmd.PersistentFlags().IntVar(&maxRetries, "max-retries", 0, "OCR请求最多尝试次数")

	rootCmd.AddCommand(parseCmd, ocrCmd, inspectCmd, configCmd)
	configCmd.AddCommand(setCmd, genConfigCmd)
	return rootCmd
}

// setup 加载配置并初始化日志
func setup() error {
	var err error

	// 先初始化一个基本日志记录器，用于记录配置加载过程
	tempLogger, _ := zap.NewProduction()
	defer tempLogger.Sync()

	if configFile != "" {
		tempLogger.Info("使用自定义配置文件", zap.String("path", configFile))
		cfg, err = loadCustomConfig(configFile)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		tempLogger.Error("加载配置失败", zap.Error(err))
		return fmt.Errorf("加载配置失败: %w", err)
	}

	updateConfigFromFlags()

	log, err = logger.InitLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		tempLogger.Error("初始化日志系统失败", zap.Error(err))
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	log.Debug("配置加载完成",
		zap.String("provider", cfg.OCRProvider),
		zap.Int("timeoutSeconds", cfg.OCRTimeoutSeconds),
		zap.Int("maxRetries", cfg.MaxRetries),
		zap.Int("workers", cfg.Workers),
		zap.String("outputDir", cfg.OutputDir),
		zap.String("logLevel", cfg.LogLevel))
	return nil
}

// updateConfigFromFlags 命令行参数优先于配置文件
func updateConfigFromFlags() {
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if provider != "" {
		cfg.OCRProvider = provider
	}
	if timeout > 0 {
		cfg.OCRTimeoutSeconds = timeout
	}
	if maxRetries > 0 {
		cfg.MaxRetries = maxRetries
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if includeImages {
		cfg.IncludeImages = true
	}
	if noXLSX {
		cfg.ExportXLSX = false
	}
}

// loadCustomConfig 从指定路径加载配置
func loadCustomConfig(configPath string) (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("配置文件不存在: %s", configPath)
	}
	return config.LoadConfigFromFile(configPath)
}

// generateConfig 生成默认配置
func generateConfig(cmd *cobra.Command, args []string) error {
	defaultConfig := config.GetDefaultConfig()

	if outputToFile == "" {
		fmt.Println(defaultConfig)
		return nil
	}

	dir := filepath.Dir(outputToFile)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建目录失败: %w", err)
		}
	}
	if err := os.WriteFile(outputToFile, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	fmt.Printf("配置已保存到: %s\n", outputToFile)
	return nil
}
