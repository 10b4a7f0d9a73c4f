package sim

import (
	"math"
	"math/rand/v2"
)

// TrackOptions 赛道生成参数
type TrackOptions struct {
	Style         int
	Seed          int
	TurnIncrement float64
	Nodes         int
	Radius        float64 // 世界单位
}

// DefaultTrackOptions 默认赛道
func DefaultTrackOptions() TrackOptions {
	return TrackOptions{Style: 0, Seed: 1, TurnIncrement: 1, Nodes: 120, Radius: 40 * WorldScale}
}

// Track 生成的闭合赛道，节点首尾相接
type Track struct {
	opt   TrackOptions
	nodes []PathNode
}

// GenerateTrack 相同参数总是生成相同的赛道
func GenerateTrack(opt TrackOptions) *Track {
	if opt.Nodes < 3 {
		opt.Nodes = 3
	}
	if opt.Radius <= 0 {
		opt.Radius = DefaultTrackOptions().Radius
	}
	if opt.TurnIncrement == 0 {
		opt.TurnIncrement = 1
	}
	rng := rand.New(rand.NewPCG(uint64(opt.Seed), uint64(opt.Style)))

	// style 决定弯道数，TurnIncrement 决定弯道幅度
	harmonics := 2 + opt.Style%5
	amp := make([]float64, harmonics)
	phase := make([]float64, harmonics)
	for i := range amp {
		amp[i] = rng.Float64() * 0.08 * opt.TurnIncrement / float64(i+1)
		phase[i] = rng.Float64() * 2 * math.Pi
	}

	pts := make([]Vec3, opt.Nodes)
	for i := range pts {
		theta := 2 * math.Pi * float64(i) / float64(opt.Nodes)
		r := 1.0
		for k := range amp {
			r += amp[k] * math.Sin(float64(k+2)*theta+phase[k])
		}
		r *= opt.Radius
		pts[i] = Vec3{X: r * math.Sin(theta), Z: r * math.Cos(theta)}
	}
	// 平移使第一个节点位于原点
	origin := pts[0]
	nodes := make([]PathNode, opt.Nodes)
	for i := range pts {
		next := pts[(i+1)%len(pts)]
		d := next.Sub(pts[i])
		nodes[i] = PathNode{Pos: pts[i].Sub(origin), Rot: YawQuat(math.Atan2(d.X, d.Z))}
	}
	return &Track{opt: opt, nodes: nodes}
}

// Options 生成该赛道的参数
func (t *Track) Options() TrackOptions { return t.opt }

func (t *Track) Nodes() []PathNode { return t.nodes }

func (t *Track) ClosestSpanIndex(pos Vec3) int {
	best, bestD := 0, math.Inf(1)
	for i, n := range t.nodes {
		dx, dz := pos.X-n.Pos.X, pos.Z-n.Pos.Z
		if d := dx*dx + dz*dz; d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

// CrossTrackError 到最近路段的有符号水平距离，右侧为正
func (t *Track) CrossTrackError(pos Vec3) float64 {
	i := t.ClosestSpanIndex(pos)
	a := t.nodes[i].Pos
	b := t.nodes[(i+1)%len(t.nodes)].Pos
	dx, dz := b.X-a.X, b.Z-a.Z
	l := math.Hypot(dx, dz)
	if l == 0 {
		return 0
	}
	px, pz := pos.X-a.X, pos.Z-a.Z
	// 车头方向 (dx, dz) 的右侧为 (dz, -dx)
	return (px*dz - pz*dx) / l
}
