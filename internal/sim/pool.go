package sim

import (
	"errors"
	"math"
)

var ErrPoolExhausted = errors.New("no free vehicle slot")

// Pool 出生位分配。被驱逐的车辆归还出生位供后续连接复用。
// 只在 tick goroutine 上使用。
type Pool struct {
	used []bool
}

// NewPool size<=0 时不限数量
func NewPool(size int) *Pool {
	if size <= 0 {
		return &Pool{}
	}
	return &Pool{used: make([]bool, size)}
}

// Acquire 返回最小的空闲出生位
func (p *Pool) Acquire() (int, error) {
	if p.used == nil {
		return 0, nil
	}
	for i, u := range p.used {
		if !u {
			p.used[i] = true
			return i, nil
		}
	}
	return -1, ErrPoolExhausted
}

// Release 归还出生位，重复归还无副作用
func (p *Pool) Release(slot int) {
	if slot >= 0 && slot < len(p.used) {
		p.used[slot] = false
	}
}

// InUse 已占用的出生位数量
func (p *Pool) InUse() int {
	n := 0
	for _, u := range p.used {
		if u {
			n++
		}
	}
	return n
}

// SpawnPose 出生位 slot 的位置：起点节点沿赛道横向错开
func SpawnPose(path Path, slot int) PathNode {
	if path == nil || len(path.Nodes()) == 0 {
		return PathNode{Pos: Vec3{X: float64(slot) * 3}, Rot: Identity}
	}
	start := path.Nodes()[0]
	yaw := start.Rot.Yaw()
	// 车头方向为 (sin yaw, 0, cos yaw)，右侧为 (cos yaw, 0, -sin yaw)
	offset := float64(slot%4)*2.5 - 3.75
	back := float64(slot/4) * 5
	right := Vec3{X: math.Cos(yaw), Z: -math.Sin(yaw)}
	fwd := Vec3{X: math.Sin(yaw), Z: math.Cos(yaw)}
	return PathNode{
		Pos: start.Pos.Add(right.Scale(offset)).Sub(fwd.Scale(back)),
		Rot: start.Rot,
	}
}
