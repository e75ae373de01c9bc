package config

import (
	"errors"
	"math"
	"strings"
)

const (
	degToRad            = math.Pi / 180
	maxCompressionLevel = 22
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogMaxSize < 0 {
		return newFieldError("Global.LogMaxSize", "不能为负数")
	}
	if g.LogMaxBackups < 0 {
		return newFieldError("Global.LogMaxBackups", "不能为负数")
	}

	cc := c.Cache
	if err := validateFileToken(cc.FilePrefix); err != nil {
		return newFieldError("Cache.FilePrefix", err.Error())
	}
	tol := cc.Tolerance.Radians()
	if math.IsNaN(tol) || math.IsInf(tol, 0) || tol <= 0 {
		return newFieldError("Cache.Tolerance", "必须大于 0")
	}
	if tol >= math.Pi {
		return newFieldError("Cache.Tolerance", "必须小于 180deg")
	}
	if cc.CompressionLevel < 0 || cc.CompressionLevel > maxCompressionLevel {
		return newFieldError("Cache.CompressionLevel", "必须在 0-22")
	}
	if len(cc.Qualifiers) == 0 {
		return newFieldError("Cache.Qualifiers", "至少需要一个限定符")
	}

	seen := map[string]struct{}{}
	for i, q := range cc.Qualifiers {
		if err := validateQualifier(q); err != nil {
			return newFieldError(qualifierField(i), err.Error())
		}
		if _, exists := seen[q]; exists {
			return newFieldError(qualifierField(i), "重复")
		}
		seen[q] = struct{}{}
	}

	return nil
}

// validateFileToken 确保字符串可以安全地拼接进缓存文件名。
func validateFileToken(token string) error {
	if token == "" {
		return errors.New("不能为空")
	}
	if strings.HasPrefix(token, "avgPB") || token == "aux.dat" {
		return errors.New("与保留文件名冲突")
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return errors.New("仅允许字母、数字、_ 与 -")
		}
	}
	return nil
}

// validateQualifier 额外要求 qualifier 不以数字结尾：文件名中 plane 序号紧随其后，
// 否则 "w1" 的 plane 0 与 "w" 的 plane 10 会得到同一个文件名。
func validateQualifier(q string) error {
	if err := validateFileToken(q); err != nil {
		return err
	}
	if last := q[len(q)-1]; last >= '0' && last <= '9' {
		return errors.New("不能以数字结尾")
	}
	return nil
}
