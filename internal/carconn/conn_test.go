package carconn

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/hongjun500/simlink/internal/dispatch"
	"github.com/hongjun500/simlink/internal/protocol"
	"github.com/hongjun500/simlink/internal/sim"
	"github.com/hongjun500/simlink/internal/telemetry"
)

type fakeSession struct {
	mu     sync.Mutex
	id     string
	sent   []*protocol.Message
	closed int
	full   bool
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Send(m *protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return errors.New("backpressure")
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) ofType(t protocol.MsgType) []*protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*protocol.Message
	for _, m := range s.sent {
		if m.Type() == t {
			out = append(out, m)
		}
	}
	return out
}

type fakeOwner struct {
	evicted []string
}

func (o *fakeOwner) Evict(w *sim.World, id string, reason string) {
	o.evicted = append(o.evicted, id+":"+reason)
	w.RemoveVehicle(id)
}

type fixture struct {
	w     *sim.World
	sess  *fakeSession
	owner *fakeOwner
	conn  *Connection
	v     *sim.Vehicle
	car   *sim.KinematicCar
}

func newFixture(t *testing.T, opt Options) *fixture {
	t.Helper()
	w := sim.NewWorld(sim.Options{TickRate: 20})
	track := sim.GenerateTrack(sim.TrackOptions{Seed: 3, Nodes: 10})
	w.SetPath(track)
	sess := &fakeSession{id: "car-1"}
	owner := &fakeOwner{}
	conn := New(sess, w, dispatch.Deferred, owner, opt, nil)
	v := sim.NewHeadlessVehicle(sess.id, 0, track.Nodes()[0])
	w.AddVehicle(v)
	w.AddAgent(sess.id, conn)
	conn.Start(w)
	return &fixture{w: w, sess: sess, owner: owner, conn: conn, v: v, car: v.Car.(*sim.KinematicCar)}
}

func (f *fixture) send(t *testing.T, raw string) error {
	t.Helper()
	m, err := (&protocol.JSONCodec{}).Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return f.conn.Dispatch(m)
}

func TestStartAnnouncesCarLoaded(t *testing.T) {
	f := newFixture(t, Options{TelemetryFPS: 20})
	if f.conn.State() != SendingTelemetry {
		t.Fatalf("state = %v", f.conn.State())
	}
	if len(f.sess.ofType(protocol.MsgCarLoaded)) != 1 {
		t.Fatalf("expected one car_loaded")
	}
	f.conn.Start(f.w)
	if len(f.sess.ofType(protocol.MsgCarLoaded)) != 1 {
		t.Fatalf("car_loaded must be sent once")
	}
	f.w.Tick()
	if len(f.sess.ofType(protocol.MsgTelemetry)) != 1 {
		t.Fatalf("expected telemetry after the first tick")
	}
}

func TestNoTelemetryBeforeStart(t *testing.T) {
	w := sim.NewWorld(sim.Options{TickRate: 20})
	sess := &fakeSession{id: "car-1"}
	conn := New(sess, w, dispatch.Deferred, &fakeOwner{}, Options{}, nil)
	w.AddVehicle(sim.NewHeadlessVehicle("car-1", 0, sim.PathNode{Rot: sim.Identity}))
	w.AddAgent("car-1", conn)
	w.Tick()
	if len(sess.sent) != 0 {
		t.Fatalf("unconnected state must not send telemetry")
	}
}

func TestControlClampAndScale(t *testing.T) {
	f := newFixture(t, Options{})
	if err := f.send(t, `{"msg_type":"control","steering":"2.0","throttle":"0.5","brake":"-1"}`); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	f.w.Tick()
	if got := f.car.Steering(); got != 16 {
		t.Fatalf("steering = %v, want 16", got)
	}
	if got := f.car.Throttle(); got != 0.5 {
		t.Fatalf("throttle = %v", got)
	}
	if got := f.car.Brake(); got != 0 {
		t.Fatalf("brake = %v", got)
	}
}

func TestControlRoundTripInRange(t *testing.T) {
	cases := []protocol.Control{
		{Steering: -1, Throttle: -1, Brake: 0},
		{Steering: 0.3, Throttle: 0.7, Brake: 0.25},
		{Steering: 1, Throttle: 1, Brake: 1},
	}
	for _, c := range cases {
		got := ClampControl(c)
		if got.SteeringDeg != c.Steering*telemetry.SteerToAngle || got.Throttle != c.Throttle || got.Brake != c.Brake {
			t.Fatalf("in-range control changed: %+v -> %+v", c, got)
		}
	}
	out := ClampControl(protocol.Control{Steering: -7, Throttle: 3, Brake: 2})
	if out.SteeringDeg != -telemetry.SteerToAngle || out.Throttle != 1 || out.Brake != 1 {
		t.Fatalf("out-of-range control not clamped: %+v", out)
	}
}

func TestControlNoPartialApply(t *testing.T) {
	f := newFixture(t, Options{})
	_ = f.send(t, `{"msg_type":"control","steering":"0.5","throttle":"0.25","brake":"0"}`)
	f.w.Tick()
	err := f.send(t, `{"msg_type":"control","steering":"-1","throttle":"1","brake":"x"}`)
	var fe *protocol.FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldError, got %v", err)
	}
	f.w.Tick()
	if f.car.Steering() != 8 || f.car.Throttle() != 0.25 {
		t.Fatalf("previous control must be kept, got steering=%v throttle=%v", f.car.Steering(), f.car.Throttle())
	}
}

func TestUnknownTypeIsDropped(t *testing.T) {
	f := newFixture(t, Options{})
	err := f.send(t, `{"msg_type":"unknown_x"}`)
	if !errors.Is(err, dispatch.ErrUnknownMessageType) {
		t.Fatalf("expected ErrUnknownMessageType, got %v", err)
	}
	if f.sess.closed != 0 {
		t.Fatalf("unknown type must not close the connection")
	}
}

func TestProtocolVersionIsInline(t *testing.T) {
	f := newFixture(t, Options{})
	_ = f.send(t, `{"msg_type":"get_protocol_version"}`)
	replies := f.sess.ofType(protocol.MsgProtocolVersion)
	if len(replies) != 1 {
		t.Fatalf("expected an immediate reply without a tick")
	}
	if v, _ := replies[0].String("version"); v != "2" {
		t.Fatalf("version = %q", v)
	}
}

func TestStepModeSynchronous(t *testing.T) {
	f := newFixture(t, Options{})
	_ = f.send(t, `{"msg_type":"step_mode","step_mode":"synchronous","time_step":"0.1"}`)
	f.w.Tick()
	if got := f.w.StepMode(); !got.Synchronous || got.TickDuration != 0.1 {
		t.Fatalf("step mode = %+v", got)
	}
	_ = f.send(t, `{"msg_type":"step_mode","step_mode":"asynchronous","time_step":"0.1"}`)
	f.w.Tick()
	if f.w.StepMode().Synchronous {
		t.Fatalf("expected asynchronous")
	}
}

func TestNodePosition(t *testing.T) {
	f := newFixture(t, Options{})
	_ = f.send(t, `{"msg_type":"node_position","index":"3"}`)
	_ = f.send(t, `{"msg_type":"node_position","index":"99"}`)
	_ = f.send(t, `{"msg_type":"node_position","index":"-1"}`)
	f.w.Tick()
	replies := f.sess.ofType(protocol.MsgNodePosition)
	if len(replies) != 1 {
		t.Fatalf("expected exactly one node_position reply, got %d", len(replies))
	}
	node := f.w.Path().Nodes()[3]
	idx, _ := replies[0].Int("index")
	x, _ := replies[0].Float("pos_x")
	qw, _ := replies[0].Float("Qw")
	if idx != 3 || x != node.Pos.X || qw != node.Rot.W {
		t.Fatalf("reply does not echo node 3: idx=%d x=%v qw=%v", idx, x, qw)
	}
}

func TestResetCar(t *testing.T) {
	f := newFixture(t, Options{})
	_ = f.send(t, `{"msg_type":"control","steering":"1","throttle":"1","brake":"0"}`)
	for i := 0; i < 10; i++ {
		f.w.Tick()
	}
	_ = f.send(t, `{"msg_type":"reset_car"}`)
	f.w.Submit(func(w *sim.World) {
		pos, _ := w.Vehicle("car-1").Car.Transform()
		if pos != w.Path().Nodes()[0].Pos {
			t.Errorf("reset should restore the spawn position, got %+v", pos)
		}
	})
	f.w.Tick()
	if f.car.Steering() != 0 || f.car.Throttle() != 0 || f.car.Brake() != ResetFootBrake {
		t.Fatalf("controls not reset: %v %v %v", f.car.Steering(), f.car.Throttle(), f.car.Brake())
	}
}

func TestCarConfigPlaceholderIgnored(t *testing.T) {
	f := newFixture(t, Options{})
	_ = f.send(t, `{"msg_type":"car_config","body_style":"donkey","body_r":"1","body_g":"2","body_b":"3","car_name":"Racer Name"}`)
	f.w.Tick()
	if f.v.Name != "" {
		t.Fatalf("placeholder name should be ignored")
	}
	_ = f.send(t, `{"msg_type":"car_config","body_style":"bare","body_r":"1","body_g":"2","body_b":"3","car_name":"speedy"}`)
	f.w.Tick()
	if f.v.Name != "speedy" || f.v.BodyRGB != [3]int{1, 2, 3} || f.v.FontSize != protocol.DefaultFontSize {
		t.Fatalf("car config not applied: %+v", f.v)
	}
}

func TestSensorConfigActivates(t *testing.T) {
	f := newFixture(t, Options{})
	_ = f.send(t, `{"msg_type":"cam_config_b","fov":"90","offset_x":"0","offset_y":"1","offset_z":"0","rot_x":"10","img_w":"64","img_h":"48"}`)
	_ = f.send(t, `{"msg_type":"lidar_config","offset_x":"0","offset_y":"1","offset_z":"0","rot_x":"0","degPerSweepInc":"10","degAngDown":"0","degAngDelta":"-1","maxRange":"30","noise":"0","numSweepsLevels":"2"}`)
	f.w.Tick()
	if !f.v.CameraB.Active() || !f.v.Lidar.Active() {
		t.Fatalf("sensors should be activated")
	}
	if got := f.v.CameraB.(*sim.StubCamera).Config().ImgW; got != 64 {
		t.Fatalf("img_w = %d", got)
	}
	if got := len(f.v.Lidar.Scan(sim.Vec3{}, sim.Identity)); got != 72 {
		t.Fatalf("lidar points = %d, want 72", got)
	}
}

func TestSetPositionRequiresExtended(t *testing.T) {
	f := newFixture(t, Options{})
	_ = f.send(t, `{"msg_type":"set_position","pos_x":"10","pos_y":"0","pos_z":"20"}`)
	f.w.Tick()
	if pos, _ := f.car.Transform(); pos.X == 10 {
		t.Fatalf("set_position must be ignored without extended telemetry")
	}

	g := newFixture(t, Options{ExtendedTelemetry: true})
	_ = g.send(t, `{"msg_type":"set_position","pos_x":"10","pos_y":"0","pos_z":"20","Qx":"0","Qy":"0.7071068","Qz":"0","Qw":"0.7071068"}`)
	g.w.Submit(func(w *sim.World) {
		pos, rot := w.Vehicle("car-1").Car.Transform()
		if pos != (sim.Vec3{X: 10, Z: 20}) {
			t.Errorf("pos = %+v", pos)
		}
		if math.Abs(rot.Yaw()-math.Pi/2) > 1e-6 {
			t.Errorf("yaw = %v", rot.Yaw())
		}
	})
	g.w.Tick()
}

func TestStallEvictsExactlyOnce(t *testing.T) {
	f := newFixture(t, Options{StallTimeout: 1, StallEpsilon: 1})
	for i := 0; i < 100; i++ {
		f.w.Tick()
	}
	if len(f.owner.evicted) != 1 || f.owner.evicted[0] != "car-1:stall" {
		t.Fatalf("evictions = %v", f.owner.evicted)
	}
	if f.sess.closed != 1 {
		t.Fatalf("session closed %d times", f.sess.closed)
	}
	if !f.conn.Dispatcher().Closed() {
		t.Fatalf("dispatcher should be reset before the transport is released")
	}
	if err := f.send(t, `{"msg_type":"reset_car"}`); !errors.Is(err, dispatch.ErrClosed) {
		t.Fatalf("dispatch after disconnect should fail with ErrClosed, got %v", err)
	}
}

func TestLateTaskAfterEvictionIsNoop(t *testing.T) {
	f := newFixture(t, Options{})
	_ = f.send(t, `{"msg_type":"control","steering":"1","throttle":"1","brake":"0"}`)
	f.w.RemoveVehicle("car-1")
	f.w.Tick()
	if f.car.Throttle() != 0 {
		t.Fatalf("task must not touch a removed vehicle")
	}
}

func TestTelemetryDroppedOnBackpressure(t *testing.T) {
	f := newFixture(t, Options{})
	f.sess.full = true
	for i := 0; i < 5; i++ {
		f.w.Tick()
	}
	f.sess.full = false
	f.w.Tick()
	if n := len(f.sess.ofType(protocol.MsgTelemetry)); n != 1 {
		t.Fatalf("expected only the post-backpressure snapshot, got %d", n)
	}
}

type scriptedPath struct {
	nodes []sim.PathNode
	span  int
}

func (p *scriptedPath) Nodes() []sim.PathNode            { return p.nodes }
func (p *scriptedPath) ClosestSpanIndex(sim.Vec3) int    { return p.span }
func (p *scriptedPath) CrossTrackError(sim.Vec3) float64 { return 0 }

func TestStartingLineCrossing(t *testing.T) {
	f := newFixture(t, Options{})
	path := &scriptedPath{nodes: make([]sim.PathNode, 10)}
	f.w.SetPath(path)
	for _, span := range []int{7, 8, 9, 0, 1} {
		path.span = span
		f.w.Tick()
	}
	crossings := f.sess.ofType(protocol.MsgCollisionWithStartingLine)
	if len(crossings) != 1 {
		t.Fatalf("expected one starting line event, got %d", len(crossings))
	}
	if idx, _ := crossings[0].Int("starting_line_index"); idx != 0 {
		t.Fatalf("starting_line_index = %d", idx)
	}

	// reset_car 把 ActiveSpan 改为 0，不算越线
	path.span = 9
	f.w.Tick()
	_ = f.send(t, `{"msg_type":"reset_car"}`)
	path.span = 0
	f.w.Tick()
	if n := len(f.sess.ofType(protocol.MsgCollisionWithStartingLine)); n != 1 {
		t.Fatalf("reset must not count as a crossing, got %d events", n)
	}
}

func TestExtremeLidarConfigRejected(t *testing.T) {
	f := newFixture(t, Options{TelemetryFPS: 20})
	err := f.send(t, `{"msg_type":"lidar_config","offset_x":"0","offset_y":"1","offset_z":"0","rot_x":"0","degPerSweepInc":"1e-15","degAngDown":"0","degAngDelta":"-1","maxRange":"30","noise":"0","numSweepsLevels":"2"}`)
	var fe *protocol.FieldError
	if !errors.As(err, &fe) || fe.Field != "degPerSweepInc" {
		t.Fatalf("expected FieldError on degPerSweepInc, got %v", err)
	}
	f.w.Tick()
	f.w.Tick()
	if f.v.Lidar.Active() {
		t.Fatalf("rejected lidar config must not activate the lidar")
	}
	if got := len(f.sess.ofType(protocol.MsgTelemetry)); got != 2 {
		t.Fatalf("telemetry frames = %d, want 2", got)
	}
}

func TestOversizedCameraConfigInline(t *testing.T) {
	w := sim.NewWorld(sim.Options{TickRate: 20})
	sess := &fakeSession{id: "car-1"}
	conn := New(sess, w, dispatch.Inline, &fakeOwner{}, Options{}, nil)
	v := sim.NewHeadlessVehicle("car-1", 0, sim.PathNode{Rot: sim.Identity})
	w.AddVehicle(v)
	w.AddAgent("car-1", conn)
	conn.Start(w)
	before := v.Camera.(*sim.StubCamera).Config()

	m, err := (&protocol.JSONCodec{}).Decode([]byte(`{"msg_type":"cam_config","fov":"90","offset_x":"0","offset_y":"1","offset_z":"0","rot_x":"0","img_w":"2000000000","img_h":"2000000000","img_d":"3"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var fe *protocol.FieldError
	if err := conn.Dispatch(m); !errors.As(err, &fe) || fe.Field != "img_w" {
		t.Fatalf("expected FieldError on img_w, got %v", err)
	}
	if got := v.Camera.(*sim.StubCamera).Config(); got != before {
		t.Fatalf("camera config changed: %+v", got)
	}
	w.Tick()
	if len(sess.ofType(protocol.MsgTelemetry)) != 1 {
		t.Fatalf("expected telemetry after the rejected config")
	}
}
