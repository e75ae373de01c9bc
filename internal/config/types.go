package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Angle 以弧度保存角度，配置文件中可写作 "1deg"、"0.01rad" 或纯数字（度）。
type Angle float64

// UnmarshalText 让 Viper 可以识别带单位的角度写法。
func (a *Angle) UnmarshalText(text []byte) error {
	parsed, err := parseAngle(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Radians 返回弧度值。
func (a Angle) Radians() float64 {
	return float64(a)
}

// Degrees 返回角度值，用于日志输出。
func (a Angle) Degrees() float64 {
	return float64(a) * 180 / math.Pi
}

func (a Angle) String() string {
	return strconv.FormatFloat(a.Degrees(), 'g', -1, 64) + "deg"
}

func parseAngle(raw string) (Angle, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return 0, nil
	}
	scale := math.Pi / 180
	switch {
	case strings.HasSuffix(value, "deg"):
		value = strings.TrimSuffix(value, "deg")
	case strings.HasSuffix(value, "rad"):
		value = strings.TrimSuffix(value, "rad")
		scale = 1
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid angle value: %s", raw)
	}
	return Angle(num * scale), nil
}

// GlobalConfig 描述进程级行为：日志与巡检端口。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
}

// CacheConfig 决定卷积函数缓存的目录、命名与匹配容差。
type CacheConfig struct {
	CacheDir         string   `mapstructure:"CacheDir"`
	FilePrefix       string   `mapstructure:"FilePrefix"`
	Tolerance        Angle    `mapstructure:"Tolerance"`
	Qualifiers       []string `mapstructure:"Qualifiers"`
	CompressionLevel int      `mapstructure:"CompressionLevel"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Cache  CacheConfig  `mapstructure:",squash"`
}

// CacheEnabled 表示是否配置了缓存目录；未配置时缓存以禁用模式运行。
func (c *Config) CacheEnabled() bool {
	return c != nil && strings.TrimSpace(c.Cache.CacheDir) != ""
}
