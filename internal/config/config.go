// Package config 负责发现配置文件、读取环境变量，并与 CLI 参数合并为最终配置。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/John-Robertt/chocobarcode/internal/domain"
	"github.com/John-Robertt/chocobarcode/internal/infra/logx"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingInput 表示 CLI、配置文件与环境变量都没有给出输入表。
	ErrCodeMissingInput = domain.ErrCodeConfigMissingInput
)

const (
	// FileName 是工作目录下自动发现的配置文件名（不含扩展名；支持 yaml/json/toml）。
	FileName = "chocobarcode"
	// EnvPrefix 是环境变量前缀，例如 CHOCOBARCODE_LOG_LEVEL。
	EnvPrefix = "CHOCOBARCODE"

	DefaultOutputName = "barcode_list_chocobarcode.xlsx"
	DefaultImageW     = 250
	DefaultImageH     = 180
)

// CLIArgs 是 CLI 暴露的入口参数，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --dry-run=false 必须能覆盖 dry_run: true。
type CLIArgs struct {
	Input  string
	OutDir string

	// ConfigFile 非空时只读取该文件（必须存在），不再自动发现。
	ConfigFile string

	DryRun    bool
	DryRunSet bool

	Seed    int64
	SeedSet bool

	LogLevel string
}

// FileConfig 对应配置文件（以及同名环境变量）的解析结构。
type FileConfig struct {
	Input      string        `mapstructure:"input"`
	OutputDir  string        `mapstructure:"output_dir"`
	OutputName string        `mapstructure:"output_name"`
	Sheet      string        `mapstructure:"sheet"`
	Columns    ColumnsConfig `mapstructure:"columns"`
	Image      ImageConfig   `mapstructure:"image"`
	DryRun     bool          `mapstructure:"dry_run"`
	Report     bool          `mapstructure:"report"`
	Seed       int64         `mapstructure:"seed"`
	LogLevel   string        `mapstructure:"log_level"`
}

type ColumnsConfig struct {
	ProductName string `mapstructure:"product_name"`
	Barcode     string `mapstructure:"barcode"`
	Image       string `mapstructure:"image"`
}

type ImageConfig struct {
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// Input 是输入表的绝对路径。
	Input      string
	// OutputDir 是输出目录的绝对路径；未指定时为输入表所在目录。
	OutputDir  string
	OutputName string
	Sheet      string

	Columns ColumnsConfig
	Image   ImageConfig

	DryRun bool
	Report bool

	// Seed=0 表示按时间取种子。
	Seed     int64
	LogLevel string

	// ConfigFile 是实际读取的配置文件；没有读取任何文件时为空。
	ConfigFile string
}

// OutputPath 返回输出工作簿的完整路径。
func (c EffectiveConfig) OutputPath() string {
	return filepath.Join(c.OutputDir, c.OutputName)
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingInput:
		return fmt.Sprintf("%s：未指定输入表（参数 input、配置项 input 或环境变量 %s_INPUT）", e.Code, EnvPrefix)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取 .env、配置文件与环境变量，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) <cwd>/.env 若存在先加载（不覆盖已存在的环境变量）
// 2) CLI 给了 --config：读取该文件（必须存在）
// 3) 否则尝试 <cwd>/chocobarcode.{yaml,json,toml}（可选）
//
// 覆盖优先级（固定）：CLI > 环境变量 > 配置文件 > 默认值。
// 相对路径一律以 cwd 为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	envPath := filepath.Join(cwdAbs, ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: envPath, Err: err}
	}

	v := newViper()

	cfgPath := ""
	if strings.TrimSpace(cli.ConfigFile) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigFile)
		st, err := os.Stat(cfgPath)
		if err != nil {
			if os.IsNotExist(err) {
				return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: err}
			}
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if st.IsDir() {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: errors.New("配置路径是目录")}
		}
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(cwdAbs)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: v.ConfigFileUsed(), Err: err}
			}
		} else {
			cfgPath = v.ConfigFileUsed()
		}
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	return merge(cwdAbs, cli, fc, cfgPath)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 每个键都要有默认值，AutomaticEnv 才能在 Unmarshal 时生效。
	v.SetDefault("input", "")
	v.SetDefault("output_dir", "")
	v.SetDefault("output_name", DefaultOutputName)
	v.SetDefault("sheet", "")
	v.SetDefault("columns.product_name", "Nama Produk")
	v.SetDefault("columns.barcode", "Barcode (EAN-13)")
	v.SetDefault("columns.image", "Gambar Barcode")
	v.SetDefault("image.width", DefaultImageW)
	v.SetDefault("image.height", DefaultImageH)
	v.SetDefault("dry_run", false)
	v.SetDefault("report", true)
	v.SetDefault("seed", 0)
	v.SetDefault("log_level", logx.DefaultLevel)
	return v
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	// input：CLI > config/env
	input := strings.TrimSpace(cli.Input)
	if input == "" {
		input = strings.TrimSpace(fc.Input)
	}
	if input == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingInput, Path: cfgPath}
	}
	input = absCleanFrom(cwdAbs, input)

	// output_dir：CLI > config/env > 输入表所在目录
	outDir := strings.TrimSpace(cli.OutDir)
	if outDir == "" {
		outDir = strings.TrimSpace(fc.OutputDir)
	}
	if outDir == "" {
		outDir = filepath.Dir(input)
	} else {
		outDir = absCleanFrom(cwdAbs, outDir)
	}

	outName := strings.TrimSpace(fc.OutputName)
	if outName == "" {
		outName = DefaultOutputName
	}
	if filepath.Base(outName) != outName {
		return EffectiveConfig{}, invalid("output_name 只能是文件名：%q", outName)
	}
	if !strings.EqualFold(filepath.Ext(outName), ".xlsx") {
		return EffectiveConfig{}, invalid("output_name 必须以 .xlsx 结尾：%q", outName)
	}

	cols := ColumnsConfig{
		ProductName: strings.TrimSpace(fc.Columns.ProductName),
		Barcode:     strings.TrimSpace(fc.Columns.Barcode),
		Image:       strings.TrimSpace(fc.Columns.Image),
	}
	if cols.ProductName == "" || cols.Barcode == "" || cols.Image == "" {
		return EffectiveConfig{}, invalid("columns.* 不能为空")
	}
	if strings.EqualFold(cols.ProductName, cols.Barcode) {
		return EffectiveConfig{}, invalid("columns.product_name 与 columns.barcode 不能相同：%q", cols.Barcode)
	}

	if fc.Image.Width <= 0 || fc.Image.Height <= 0 {
		return EffectiveConfig{}, invalid("image.width/image.height 必须为正数：%dx%d", fc.Image.Width, fc.Image.Height)
	}

	// dry_run：CLI --dry-run/--dry-run=false > config/env
	dryRun := fc.DryRun
	if cli.DryRunSet {
		dryRun = cli.DryRun
	}

	seed := fc.Seed
	if cli.SeedSet {
		seed = cli.Seed
	}
	if seed < 0 {
		return EffectiveConfig{}, invalid("seed 不能为负数：%d", seed)
	}

	level := strings.TrimSpace(fc.LogLevel)
	if strings.TrimSpace(cli.LogLevel) != "" {
		level = strings.TrimSpace(cli.LogLevel)
	}
	if _, err := logx.ParseLevel(level); err != nil {
		return EffectiveConfig{}, invalid("log_level 无效：%v", err)
	}

	return EffectiveConfig{
		Input:      input,
		OutputDir:  outDir,
		OutputName: outName,
		Sheet:      strings.TrimSpace(fc.Sheet),
		Columns:    cols,
		Image:      fc.Image,
		DryRun:     dryRun,
		Report:     fc.Report,
		Seed:       seed,
		LogLevel:   level,
		ConfigFile: cfgPath,
	}, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
