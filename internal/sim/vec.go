package sim

import "math"

// Vec3 三维向量，y 轴朝上
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }
func (v Vec3) Len() float64         { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Dist 两点距离
func (v Vec3) Dist(o Vec3) float64 { return v.Sub(o).Len() }

// Quat 单位四元数
type Quat struct {
	X, Y, Z, W float64
}

// Identity 不旋转
var Identity = Quat{W: 1}

// YawQuat 绕 y 轴旋转 yaw 弧度
func YawQuat(yaw float64) Quat {
	s, c := math.Sincos(yaw / 2)
	return Quat{Y: s, W: c}
}

// Normalize 长度为 0 时返回 Identity
func (q Quat) Normalize() Quat {
	n := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	if n == 0 {
		return Identity
	}
	return Quat{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

// Euler 返回 pitch / yaw / roll，单位为度，范围 [0, 360)
func (q Quat) Euler() (pitch, yaw, roll float64) {
	q = q.Normalize()
	sinp := 2 * (q.W*q.X - q.Y*q.Z)
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}
	yaw = math.Atan2(2*(q.W*q.Y+q.X*q.Z), 1-2*(q.X*q.X+q.Y*q.Y))
	roll = math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.X*q.X+q.Z*q.Z))
	return degrees(pitch), degrees(yaw), degrees(roll)
}

// Yaw 绕 y 轴的朝向，弧度
func (q Quat) Yaw() float64 {
	q = q.Normalize()
	return math.Atan2(2*(q.W*q.Y+q.X*q.Z), 1-2*(q.X*q.X+q.Y*q.Y))
}

func degrees(rad float64) float64 {
	d := math.Mod(rad*180/math.Pi, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// Clamp 将 v 限制在 [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
