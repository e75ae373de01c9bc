package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	defaultListenPort       = 5080
	defaultFilePrefix       = "CF"
	defaultTolerance        = "1deg"
	defaultCompressionLevel = 3
)

var defaultQualifiers = []string{"primary", "weighted"}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		angleDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.CacheEnabled() {
		absDir, err := filepath.Abs(cfg.Cache.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("无法解析缓存目录: %w", err)
		}
		cfg.Cache.CacheDir = absDir
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", defaultListenPort)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheDir", "")
	v.SetDefault("FilePrefix", defaultFilePrefix)
	v.SetDefault("Tolerance", defaultTolerance)
	v.SetDefault("Qualifiers", defaultQualifiers)
	v.SetDefault("CompressionLevel", defaultCompressionLevel)
}

func applyDefaults(cfg *Config) {
	if cfg.Global.ListenPort == 0 {
		cfg.Global.ListenPort = defaultListenPort
	}
	cfg.Cache.CacheDir = strings.TrimSpace(cfg.Cache.CacheDir)
	if strings.TrimSpace(cfg.Cache.FilePrefix) == "" {
		cfg.Cache.FilePrefix = defaultFilePrefix
	}
	if cfg.Cache.Tolerance == 0 {
		cfg.Cache.Tolerance, _ = parseAngle(defaultTolerance)
	}
	if len(cfg.Cache.Qualifiers) == 0 {
		cfg.Cache.Qualifiers = append([]string(nil), defaultQualifiers...)
	}
	for i, q := range cfg.Cache.Qualifiers {
		cfg.Cache.Qualifiers[i] = strings.TrimSpace(q)
	}
}

// angleDecodeHook 将字符串或数字（按度解释）转换为 Angle。
func angleDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Angle(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			parsed, err := parseAngle(v)
			if err != nil {
				return nil, fmt.Errorf("无法解析 Angle 字段: %w", err)
			}
			return parsed, nil
		case int:
			return parseAngle(fmt.Sprintf("%ddeg", v))
		case int64:
			return parseAngle(fmt.Sprintf("%ddeg", v))
		case float64:
			return Angle(v * degToRad), nil
		case Angle:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Angle 类型: %T", v)
		}
	}
}
