// Package sim 仿真世界：车辆状态由唯一的 tick goroutine 持有，
// 其他 goroutine 只能通过 Submit 投递 Task 或在 Exec 中持锁执行。
package sim

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hongjun500/simlink/internal/mainthread"
)

// Task 在 tick goroutine 上执行的一段工作。参数在创建时按值捕获，
// 车辆通过 ID 在执行时查找。
type Task func(w *World)

// Agent 每个物理步之后被调用一次
type Agent interface {
	Update(w *World, dt float64)
}

// StepMode 进程级步进模式
type StepMode struct {
	Synchronous  bool
	TickDuration float64
}

var ErrNotSynchronous = errors.New("world is not in synchronous step mode")

// Options World 构造参数
type Options struct {
	TickRate      float64 // Hz
	QueueCapacity int
	Overflow      mainthread.OverflowPolicy
	StepMode      StepMode
	Metrics       mainthread.Metrics
	Logger        *zap.Logger
}

// World 仿真世界
type World struct {
	mu sync.Mutex // tick 期间持有

	tasks   *mainthread.Queue[Task]
	hooks   []func(*World)
	log     *zap.Logger
	fixedDt float64

	vehicles map[string]*Vehicle
	agents   map[string]Agent
	path     Path
	scene    SceneController
	app      AppController

	stepMu sync.RWMutex
	step   StepMode

	pendingSteps atomic.Int64
	simTime      float64
	ticks        uint64
}

// NewWorld 创建世界
func NewWorld(opt Options) *World {
	if opt.TickRate <= 0 {
		opt.TickRate = 60
	}
	if opt.QueueCapacity <= 0 {
		opt.QueueCapacity = 1024
	}
	if opt.StepMode.TickDuration <= 0 {
		opt.StepMode.TickDuration = 1 / opt.TickRate
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	return &World{
		tasks:    mainthread.New[Task](opt.QueueCapacity, opt.Overflow, opt.Metrics),
		log:      opt.Logger,
		fixedDt:  1 / opt.TickRate,
		vehicles: make(map[string]*Vehicle),
		agents:   make(map[string]Agent),
		step:     opt.StepMode,
	}
}

// SetPath 设置赛道
func (w *World) SetPath(p Path) { w.path = p }

// Path 当前赛道，可能为 nil
func (w *World) Path() Path { return w.path }

// SetScene 设置场景控制器
func (w *World) SetScene(s SceneController) { w.scene = s }

// Scene 场景控制器，可能为 nil
func (w *World) Scene() SceneController { return w.scene }

// SetApp 设置进程控制器
func (w *World) SetApp(a AppController) { w.app = a }

// App 进程控制器，可能为 nil
func (w *World) App() AppController { return w.app }

// OnTick 注册每个 tick 开始时运行的钩子，早于任务队列的排空。
// 只能在 Run 之前调用。
func (w *World) OnTick(fn func(*World)) { w.hooks = append(w.hooks, fn) }

// Submit 从任意 goroutine 投递任务，队列满时按溢出策略处理
func (w *World) Submit(t Task) error {
	return w.tasks.Push(t)
}

// Exec 在调用方 goroutine 上持有世界锁执行任务，与 tick 互斥。
// 任务 panic 时与 tick 上的任务一样被恢复。
func (w *World) Exec(t Task) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.run(t)
}

// Vehicle 按 ID 查找车辆，不存在返回 nil
func (w *World) Vehicle(id string) *Vehicle { return w.vehicles[id] }

// AddVehicle 加入车辆，ID 重复时覆盖
func (w *World) AddVehicle(v *Vehicle) { w.vehicles[v.ID] = v }

// RemoveVehicle 移除车辆及其 Agent，返回被移除的车辆
func (w *World) RemoveVehicle(id string) *Vehicle {
	v, ok := w.vehicles[id]
	if !ok {
		return nil
	}
	delete(w.vehicles, id)
	delete(w.agents, id)
	return v
}

// Vehicles 按 ID 排序返回所有车辆
func (w *World) Vehicles() []*Vehicle {
	out := make([]*Vehicle, 0, len(w.vehicles))
	for _, v := range w.vehicles {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// VehicleCount 当前车辆数
func (w *World) VehicleCount() int { return len(w.vehicles) }

// AddAgent 注册 Agent，key 一般为车辆 ID
func (w *World) AddAgent(id string, a Agent) { w.agents[id] = a }

// RemoveAgent 注销 Agent
func (w *World) RemoveAgent(id string) { delete(w.agents, id) }

// Time 仿真时间，秒
func (w *World) Time() float64 { return w.simTime }

// Ticks 已执行的 tick 数
func (w *World) Ticks() uint64 { return w.ticks }

// StepMode 当前步进模式，可并发读取
func (w *World) StepMode() StepMode {
	w.stepMu.RLock()
	defer w.stepMu.RUnlock()
	return w.step
}

// SetStepMode 切换步进模式，切回异步时丢弃未执行的步进请求
func (w *World) SetStepMode(m StepMode) {
	if m.TickDuration <= 0 {
		m.TickDuration = w.fixedDt
	}
	w.stepMu.Lock()
	w.step = m
	w.stepMu.Unlock()
	if !m.Synchronous {
		w.pendingSteps.Store(0)
	}
	w.log.Info("step_mode", zap.Bool("synchronous", m.Synchronous), zap.Float64("tick_duration", m.TickDuration))
}

// RequestSteps 外部调度器请求推进 n 个步长，仅在同步模式下有效
func (w *World) RequestSteps(n int) error {
	if n <= 0 {
		return nil
	}
	if !w.StepMode().Synchronous {
		return ErrNotSynchronous
	}
	w.pendingSteps.Add(int64(n))
	return nil
}

// PendingSteps 尚未执行的步进请求数
func (w *World) PendingSteps() int64 { return w.pendingSteps.Load() }

// Run 以 TickRate 驱动 Tick，直到 ctx 结束
func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(w.fixedDt * float64(time.Second)))
	defer ticker.Stop()
	w.log.Info("world_run", zap.Float64("tick_rate", 1/w.fixedDt))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Tick()
		}
	}
}

// Tick 执行一次：钩子，排空任务，然后按步进模式推进物理
func (w *World) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ticks++
	for _, h := range w.hooks {
		h(w)
	}
	w.drain()

	mode := w.StepMode()
	if !mode.Synchronous {
		w.advance(w.fixedDt)
		return
	}
	for n := w.pendingSteps.Load(); n > 0; n = w.pendingSteps.Load() {
		if !w.pendingSteps.CompareAndSwap(n, n-1) {
			continue
		}
		w.advance(mode.TickDuration)
		w.drain()
	}
}

func (w *World) drain() {
	for _, t := range w.tasks.Drain() {
		w.run(t)
	}
}

func (w *World) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("task_panic", zap.Any("recover", r))
		}
	}()
	t(w)
}

func (w *World) advance(dt float64) {
	for _, v := range w.Vehicles() {
		v.Car.Step(dt)
	}
	w.simTime += dt

	ids := make([]string, 0, len(w.agents))
	for id := range w.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		// 前面的 Agent 可能已移除后面的
		if a, ok := w.agents[id]; ok {
			w.update(id, a, dt)
		}
	}
}

// update 单个 Agent 的 panic 不影响其他 Agent 与 tick 循环
func (w *World) update(id string, a Agent, dt float64) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("agent_panic", zap.String("agent", id), zap.Any("recover", r))
		}
	}()
	a.Update(w, dt)
}
