package main

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/cfcache/cfcache/internal/cache"
	"github.com/cfcache/cfcache/internal/coords"
)

// printSummary 以纯文本输出索引行与各限定符的平均主波束文件状态，只做 stat 不解码。
func printSummary(cc *cache.Cache, qualifiers []string) {
	summary := cc.Summary()
	if !summary.Enabled {
		fmt.Fprintln(stdOut, "cache: disabled")
		return
	}

	fmt.Fprintf(stdOut, "cache: %s\n", summary.Dir)
	fmt.Fprintf(stdOut, "tolerance: %.4g deg\n", coords.Degrees(summary.Tolerance))
	fmt.Fprintf(stdOut, "slots: %d  planes: %d  memory: %s\n",
		len(summary.Rows), summary.PlaneCount, humanize.IBytes(uint64(summary.MemoryBytes)))
	for slot, row := range summary.Rows {
		angle := "-"
		if !math.IsNaN(row.Angle) {
			angle = fmt.Sprintf("%.4f", coords.Degrees(row.Angle))
		}
		supports := make([]string, len(row.Supports))
		for p, s := range row.Supports {
			supports[p] = fmt.Sprintf("%dx%d", s.X, s.Y)
		}
		fmt.Fprintf(stdOut, "  [%d] angle=%s sampling=%g supports=%s\n",
			slot, angle, row.Sampling, strings.Join(supports, ","))
	}
	for _, q := range qualifiers {
		entry, ok := cc.AverageFile(q)
		if !ok {
			fmt.Fprintf(stdOut, "avgPB %s: absent\n", q)
			continue
		}
		fmt.Fprintf(stdOut, "avgPB %s: present (%s, modified %s)\n",
			q, humanize.IBytes(uint64(entry.SizeBytes)), humanize.Time(entry.ModTime))
	}
}
