package routes

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"

	"github.com/cfcache/cfcache/internal/artifact"
	"github.com/cfcache/cfcache/internal/cache"
	"github.com/cfcache/cfcache/internal/coords"
	"github.com/cfcache/cfcache/internal/server"
)

// RegisterCacheRoutes 暴露 /-/index、/-/locate、/-/stats 与 /-/avgpb 诊断接口。
func RegisterCacheRoutes(app *fiber.App, shared *server.SharedCache) {
	if app == nil || shared == nil {
		return
	}

	app.Get("/-/index", func(c fiber.Ctx) error {
		var payload indexPayload
		_ = shared.With(func(cc *cache.Cache) error {
			payload = encodeIndex(cc.Index())
			return nil
		})
		return c.JSON(payload)
	})

	app.Get("/-/locate", func(c fiber.Ctx) error {
		query, err := parseLocateQuery(c)
		if err != nil {
			return queryError(c, err)
		}

		var payload locatePayload
		err = shared.With(func(cc *cache.Cache) error {
			tolerance := cc.Tolerance()
			if query.hasTolerance {
				tolerance = query.tolerance
			}
			hit, entry, err := cc.Locate(query.qualifier, query.planes, query.angle, tolerance)
			if err != nil {
				return err
			}
			payload = encodeLocate(hit, entry)
			return nil
		})
		if errors.Is(err, cache.ErrInvalidName) {
			return queryError(c, err)
		}
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":      "locate_failed",
				"detail":     err.Error(),
				"request_id": server.RequestID(c),
			})
		}
		return c.JSON(payload)
	})

	app.Get("/-/stats", func(c fiber.Ctx) error {
		var summary cache.Summary
		_ = shared.With(func(cc *cache.Cache) error {
			summary = cc.Summary()
			return nil
		})
		return c.JSON(encodeStats(summary))
	})

	app.Get("/-/avgpb/:qualifier", func(c fiber.Ctx) error {
		qualifier := strings.TrimSpace(c.Params("qualifier"))
		if qualifier == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "qualifier_required"})
		}
		var payload avgPayload
		_ = shared.With(func(cc *cache.Cache) error {
			target := &artifact.Artifact{}
			status := cc.LoadAveragePrimaryBeam(target, qualifier)
			payload = avgPayload{
				Qualifier: qualifier,
				Status:    status.String(),
				Ready:     cc.AverageReady(qualifier),
			}
			if status == cache.CacheHit {
				shape := target.Shape
				payload.Shape = &shape
			}
			return nil
		})
		return c.JSON(payload)
	})
}

func queryError(c fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":      "invalid_query",
		"detail":     err.Error(),
		"request_id": server.RequestID(c),
	})
}

type slotPayload struct {
	Slot     int             `json:"slot"`
	AngleDeg *float64        `json:"angle_deg"`
	AngleRad *float64        `json:"angle_rad"`
	Supports []cache.Support `json:"supports"`
	Sampling float64         `json:"sampling"`
}

type indexPayload struct {
	Slots      int           `json:"slots"`
	PlaneCount int           `json:"plane_count"`
	Rows       []slotPayload `json:"rows"`
}

type locatePayload struct {
	Hit      string          `json:"hit"`
	Slot     int             `json:"slot"`
	AngleDeg *float64        `json:"angle_deg,omitempty"`
	Supports []cache.Support `json:"supports,omitempty"`
	Sampling float64         `json:"sampling,omitempty"`
	Shape    *[4]int         `json:"shape,omitempty"`
}

type statsPayload struct {
	Dir          string           `json:"dir"`
	Enabled      bool             `json:"enabled"`
	ToleranceDeg float64          `json:"tolerance_deg"`
	Slots        int              `json:"slots"`
	PlaneCount   int              `json:"plane_count"`
	MemoryBytes  int64            `json:"memory_bytes"`
	MemoryHuman  string           `json:"memory_human"`
	Resident     map[string][]int `json:"resident"`
}

type avgPayload struct {
	Qualifier string  `json:"qualifier"`
	Status    string  `json:"status"`
	Ready     bool    `json:"ready"`
	Shape     *[4]int `json:"shape,omitempty"`
}

type locateQuery struct {
	qualifier    string
	angle        float64
	planes       int
	tolerance    float64
	hasTolerance bool
}

func parseLocateQuery(c fiber.Ctx) (locateQuery, error) {
	var q locateQuery
	q.qualifier = strings.TrimSpace(c.Query("qualifier"))
	if q.qualifier == "" {
		return q, errors.New("qualifier is required")
	}
	angle, err := parseFinite(c.Query("angle_deg"), "angle_deg")
	if err != nil {
		return q, err
	}
	q.angle = coords.Radians(angle)

	planes, err := strconv.Atoi(strings.TrimSpace(c.Query("planes")))
	if err != nil || planes <= 0 {
		return q, errors.New("planes must be a positive integer")
	}
	q.planes = planes

	if raw := strings.TrimSpace(c.Query("tolerance_deg")); raw != "" {
		tol, err := parseFinite(raw, "tolerance_deg")
		if err != nil {
			return q, err
		}
		if tol < 0 {
			return q, errors.New("tolerance_deg must not be negative")
		}
		q.tolerance = coords.Radians(tol)
		q.hasTolerance = true
	}
	return q, nil
}

func parseFinite(raw, name string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, errors.New(name + " must be a finite number")
	}
	return value, nil
}

func encodeIndex(idx *cache.AngleIndex) indexPayload {
	rows := idx.Rows()
	payload := indexPayload{
		Slots:      len(rows),
		PlaneCount: idx.PlaneCount(),
		Rows:       make([]slotPayload, 0, len(rows)),
	}
	for slot, row := range rows {
		payload.Rows = append(payload.Rows, slotPayload{
			Slot:     slot,
			AngleDeg: finiteOrNil(coords.Degrees(row.Angle)),
			AngleRad: finiteOrNil(row.Angle),
			Supports: row.Supports,
			Sampling: row.Sampling,
		})
	}
	return payload
}

func encodeLocate(hit cache.HitKind, entry *cache.Entry) locatePayload {
	payload := locatePayload{Hit: hit.String(), Slot: -1}
	if entry == nil {
		return payload
	}
	payload.Slot = entry.Slot
	payload.AngleDeg = finiteOrNil(coords.Degrees(entry.Angle))
	payload.Supports = entry.Supports
	payload.Sampling = entry.Sampling
	if entry.Artifact != nil {
		shape := entry.Artifact.Shape
		payload.Shape = &shape
	}
	return payload
}

func encodeStats(summary cache.Summary) statsPayload {
	return statsPayload{
		Dir:          summary.Dir,
		Enabled:      summary.Enabled,
		ToleranceDeg: coords.Degrees(summary.Tolerance),
		Slots:        len(summary.Rows),
		PlaneCount:   summary.PlaneCount,
		MemoryBytes:  summary.MemoryBytes,
		MemoryHuman:  humanize.IBytes(uint64(summary.MemoryBytes)),
		Resident:     summary.Resident,
	}
}

// finiteOrNil 将未记录 slot 的 NaN 角度编码为 JSON null。
func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
