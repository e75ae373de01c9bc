// Package coords derives the coordinate frame stored with each persisted plane.
// Planes are kept in the Fourier dual of the imaging frame; the conversion is
// parameterized by the reference pixel the plane is centered on.
package coords

import (
	"math"

	"github.com/cfcache/cfcache/internal/artifact"
)

// DomainFourier 标记转换后的 Fourier 对偶坐标系。
const DomainFourier = "fourier"

// Converter 将输入坐标系转换为以 refPixel 为中心、指定取向的对偶坐标系。
type Converter interface {
	ToFourierDual(in artifact.CoordSys, nx, ny int, refPixel [2]float64, angle float64) artifact.CoordSys
}

// ConverterFunc 允许直接使用函数实现 Converter。
type ConverterFunc func(in artifact.CoordSys, nx, ny int, refPixel [2]float64, angle float64) artifact.CoordSys

// ToFourierDual 让 ConverterFunc 满足 Converter。
func (f ConverterFunc) ToFourierDual(in artifact.CoordSys, nx, ny int, refPixel [2]float64, angle float64) artifact.CoordSys {
	return f(in, nx, ny, refPixel, angle)
}

// FourierDual 是默认实现：对偶增量为 1/(N*Δ)，参考值归零，旋转取视差角。
type FourierDual struct{}

// ToFourierDual 实现 Converter。
func (FourierDual) ToFourierDual(in artifact.CoordSys, nx, ny int, refPixel [2]float64, angle float64) artifact.CoordSys {
	if in.Domain == DomainFourier {
		out := in
		out.RefPixel = refPixel
		out.Rotation = angle
		return out
	}
	return artifact.CoordSys{
		RefPixel:  refPixel,
		RefValue:  [2]float64{0, 0},
		Increment: [2]float64{dualIncrement(in.Increment[0], nx), dualIncrement(in.Increment[1], ny)},
		Rotation:  angle,
		Domain:    DomainFourier,
	}
}

func dualIncrement(inc float64, n int) float64 {
	if inc == 0 || n <= 0 {
		return 0
	}
	return 1 / (float64(n) * inc)
}

// CenterPixel 返回 nx×ny 平面的中心参考像素（整数除法，与 FFT 原点一致）。
func CenterPixel(nx, ny int) [2]float64 {
	return [2]float64{float64(nx / 2), float64(ny / 2)}
}

// Degrees 将弧度转换为角度。
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Radians 将角度转换为弧度。
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}
