package cache

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cfcache/cfcache/internal/coords"
)

// IndexFileName 是文本索引文件名。
const IndexFileName = "aux.dat"

// IndexCodec 负责 AngleIndex 的序列化格式，与 PlaneCodec 相互独立、可单独替换。
type IndexCodec interface {
	Encode(w io.Writer, rows []IndexRow, planeCount int) error
	Decode(r io.Reader) ([]IndexRow, int, error)
}

// TextIndexCodec 读写 aux.dat：
//
//	<slotCount> <planeCount>
//	<angle_deg> <xsupport ysupport>×planeCount <sampling>
//
// 角度以度为单位存储，使用最短可往返的十进制表示。
type TextIndexCodec struct{}

// Encode 实现 IndexCodec。
func (TextIndexCodec) Encode(w io.Writer, rows []IndexRow, planeCount int) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d\n", len(rows), planeCount)
	for slot, row := range rows {
		if len(row.Supports) != planeCount {
			return fmt.Errorf("slot %d has %d supports, index has %d planes", slot, len(row.Supports), planeCount)
		}
		var sb strings.Builder
		sb.WriteString(strconv.FormatFloat(coords.Degrees(row.Angle), 'g', -1, 64))
		for _, s := range row.Supports {
			sb.WriteByte(' ')
			sb.WriteString(strconv.Itoa(s.X))
			sb.WriteByte(' ')
			sb.WriteString(strconv.Itoa(s.Y))
		}
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatFloat(row.Sampling, 'g', -1, 64))
		sb.WriteByte('\n')
		if _, err := bw.WriteString(sb.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Decode 实现 IndexCodec；任何非数字字段或缺失的行都返回 ErrIndexParse。
func (TextIndexCodec) Decode(r io.Reader) ([]IndexRow, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNo := 0
	nextLine := func() ([]string, bool) {
		for scanner.Scan() {
			lineNo++
			fields := strings.Fields(scanner.Text())
			if len(fields) > 0 {
				return fields, true
			}
		}
		return nil, false
	}

	header, ok := nextLine()
	if !ok {
		if err := scanner.Err(); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrIndexParse, err)
		}
		return nil, 0, fmt.Errorf("%w: missing header line", ErrIndexParse)
	}
	if len(header) != 2 {
		return nil, 0, fmt.Errorf("%w: line %d: header wants 2 fields, got %d", ErrIndexParse, lineNo, len(header))
	}
	slotCount, err := parseCount(header[0])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: line %d: slot count: %v", ErrIndexParse, lineNo, err)
	}
	planeCount, err := parseCount(header[1])
	if err != nil {
		return nil, 0, fmt.Errorf("%w: line %d: plane count: %v", ErrIndexParse, lineNo, err)
	}

	want := 2 + 2*planeCount
	rows := make([]IndexRow, 0, slotCount)
	for slot := 0; slot < slotCount; slot++ {
		fields, ok := nextLine()
		if !ok {
			if err := scanner.Err(); err != nil {
				return nil, 0, fmt.Errorf("%w: %v", ErrIndexParse, err)
			}
			return nil, 0, fmt.Errorf("%w: truncated after %d of %d slots", ErrIndexParse, slot, slotCount)
		}
		if len(fields) != want {
			return nil, 0, fmt.Errorf("%w: line %d: want %d fields, got %d", ErrIndexParse, lineNo, want, len(fields))
		}
		deg, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: line %d: angle: %v", ErrIndexParse, lineNo, err)
		}
		row := IndexRow{Angle: coords.Radians(deg), Supports: make([]Support, planeCount)}
		for p := 0; p < planeCount; p++ {
			x, err := strconv.Atoi(fields[1+2*p])
			if err != nil {
				return nil, 0, fmt.Errorf("%w: line %d: xsupport[%d]: %v", ErrIndexParse, lineNo, p, err)
			}
			y, err := strconv.Atoi(fields[2+2*p])
			if err != nil {
				return nil, 0, fmt.Errorf("%w: line %d: ysupport[%d]: %v", ErrIndexParse, lineNo, p, err)
			}
			row.Supports[p] = Support{X: x, Y: y}
		}
		row.Sampling, err = strconv.ParseFloat(fields[want-1], 64)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: line %d: sampling: %v", ErrIndexParse, lineNo, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrIndexParse, err)
	}
	return rows, planeCount, nil
}

func parseCount(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return n, nil
}
