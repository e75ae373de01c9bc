package logging

import (
	"math"

	"github.com/sirupsen/logrus"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// CacheFields 描述一次缓存查找：限定符、槽位、角度（度）与命中类型。
func CacheFields(qualifier string, slot int, angle float64, hit string) logrus.Fields {
	fields := logrus.Fields{
		"qualifier": qualifier,
		"slot":      slot,
		"hit":       hit,
	}
	if !math.IsNaN(angle) {
		fields["angle_deg"] = angle * 180 / math.Pi
	}
	return fields
}

// RequestFields 提供巡检接口的请求字段。
func RequestFields(requestID, method, path string, status int) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"status":     status,
	}
}
