package orch

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"testing"

	"github.com/dkeye/Rendezvous/internal/app"
	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/core/mock_core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/dkeye/Rendezvous/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"
)

type recorder struct {
	mu     sync.Mutex
	got    []core.Notification
	full   bool
	closed bool
	// onSend runs after a delivery, outside mu.
	onSend func(core.Notification)
}

func (r *recorder) TrySend(n core.Notification) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return core.ErrConnClosed
	}
	if r.full {
		r.mu.Unlock()
		return core.ErrBackpressure
	}
	r.got = append(r.got, n)
	hook := r.onSend
	r.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// take returns and clears what was received so far.
func (r *recorder) take() []core.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.got
	r.got = nil
	return out
}

func same(a, b core.Notification) bool {
	return reflect.DeepEqual(a, b)
}

func newOrch(t *testing.T, policy app.SimplePolicy) (*Orchestrator, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	rooms := app.NewRoomRegistry(policy.OnFull(), m)
	return New(app.NewRegistry(), rooms, policy, m), m
}

func connect(t *testing.T, o *Orchestrator, id domain.ConnID) *recorder {
	t.Helper()
	r := &recorder{}
	if _, err := o.Connect(id, r, ""); err != nil {
		t.Fatalf("connect %s: %v", id, err)
	}
	return r
}

func mustHandle(t *testing.T, o *Orchestrator, id domain.ConnID, ev core.Event) {
	t.Helper()
	if err := o.Handle(id, ev); err != nil {
		t.Fatalf("handle %s %T: %v", id, ev, err)
	}
}

func TestScenario_JoinSignalDisconnect(t *testing.T) {
	o, m := newOrch(t, app.SimplePolicy{})
	x := connect(t, o, "X")
	y := connect(t, o, "Y")

	mustHandle(t, o, "X", core.Join{Room: "r1"})
	if got := x.take(); len(got) != 0 {
		t.Fatalf("X notified on first join: %+v", got)
	}

	mustHandle(t, o, "Y", core.Join{Room: "r1"})
	gotX := x.take()
	if len(gotX) != 2 || !same(gotX[0], core.UserJoined("Y")) || !same(gotX[1], core.Ready("r1")) {
		t.Fatalf("X got %+v, want user-joined{Y} then ready{r1}", gotX)
	}
	gotY := y.take()
	if len(gotY) != 1 || !same(gotY[0], core.Ready("r1")) {
		t.Fatalf("Y got %+v, want ready{r1}", gotY)
	}

	data := json.RawMessage(`{"sdp":{"type":"offer","sdp":"v=0\r\n"}}`)
	mustHandle(t, o, "X", core.Signal{Room: "r1", Data: data})
	if got := x.take(); len(got) != 0 {
		t.Fatalf("sender received its own signal: %+v", got)
	}
	gotY = y.take()
	if len(gotY) != 1 || gotY[0].Type != core.TypeSignal || gotY[0].UserID != "X" || string(gotY[0].Data) != string(data) {
		t.Fatalf("Y got %+v", gotY)
	}

	mustHandle(t, o, "Y", core.Disconnect{})
	gotX = x.take()
	if len(gotX) != 1 || !same(gotX[0], core.UserLeft("Y")) {
		t.Fatalf("X got %+v, want user-left{Y}", gotX)
	}
	members, ok := o.Rooms.Members("r1")
	if !ok || len(members) != 1 || members[0] != "X" {
		t.Fatalf("r1 members=%v ok=%v", members, ok)
	}

	mustHandle(t, o, "X", core.Disconnect{})
	if _, ok := o.Rooms.Members("r1"); ok {
		t.Fatalf("r1 not deleted")
	}
	if got := testutil.ToFloat64(m.Connections); got != 0 {
		t.Fatalf("connections gauge=%v", got)
	}
	if got := testutil.ToFloat64(m.Ready); got != 1 {
		t.Fatalf("ready counter=%v", got)
	}
}

func TestDisconnectWithoutRoomsIsNoop(t *testing.T) {
	o, _ := newOrch(t, app.SimplePolicy{})
	x := connect(t, o, "X")

	mustHandle(t, o, "X", core.Disconnect{})
	if got := x.take(); len(got) != 0 {
		t.Fatalf("notifications on idle disconnect: %+v", got)
	}
	// A second disconnect from a racing transport path is also harmless.
	mustHandle(t, o, "X", core.Disconnect{})
}

func TestSignalToDeletedRoomIsSilent(t *testing.T) {
	o, _ := newOrch(t, app.SimplePolicy{})
	x := connect(t, o, "X")

	mustHandle(t, o, "X", core.Join{Room: "r1"})
	mustHandle(t, o, "X", core.Leave{Room: "r1"})
	mustHandle(t, o, "X", core.Signal{Room: "r1", Data: json.RawMessage(`{"candidate":"c"}`)})
	if got := x.take(); len(got) != 0 {
		t.Fatalf("unexpected notifications: %+v", got)
	}
}

func TestSignalWithoutDataRejected(t *testing.T) {
	o, _ := newOrch(t, app.SimplePolicy{})
	connect(t, o, "X")
	mustHandle(t, o, "X", core.Join{Room: "r1"})

	err := o.Handle("X", core.Signal{Room: "r1", Data: json.RawMessage("null")})
	if !errors.Is(err, domain.ErrMissingPayload) {
		t.Fatalf("err=%v, want %v", err, domain.ErrMissingPayload)
	}
}

func TestFormerMemberCannotSignal(t *testing.T) {
	o, _ := newOrch(t, app.SimplePolicy{})
	connect(t, o, "X")
	y := connect(t, o, "Y")
	mustHandle(t, o, "X", core.Join{Room: "r1"})
	mustHandle(t, o, "Y", core.Join{Room: "r1"})
	mustHandle(t, o, "X", core.Leave{Room: "r1"})
	y.take()

	mustHandle(t, o, "X", core.Signal{Room: "r1", Data: json.RawMessage(`{}`)})
	if got := y.take(); len(got) != 0 {
		t.Fatalf("signal from former member delivered: %+v", got)
	}
}

func TestThirdJoinRejected(t *testing.T) {
	o, _ := newOrch(t, app.SimplePolicy{Capacity: app.RejectJoin})
	x := connect(t, o, "X")
	y := connect(t, o, "Y")
	connect(t, o, "Z")
	mustHandle(t, o, "X", core.Join{Room: "r1"})
	mustHandle(t, o, "Y", core.Join{Room: "r1"})
	x.take()
	y.take()

	if err := o.Handle("Z", core.Join{Room: "r1"}); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("err=%v, want %v", err, domain.ErrRoomFull)
	}
	if got := append(x.take(), y.take()...); len(got) != 0 {
		t.Fatalf("members notified about rejected join: %+v", got)
	}
}

func TestThirdJoinEvictsOldest(t *testing.T) {
	o, _ := newOrch(t, app.SimplePolicy{Capacity: app.EvictOldest})
	x := connect(t, o, "X")
	y := connect(t, o, "Y")
	z := connect(t, o, "Z")
	mustHandle(t, o, "X", core.Join{Room: "r1"})
	mustHandle(t, o, "Y", core.Join{Room: "r1"})
	x.take()
	y.take()

	mustHandle(t, o, "Z", core.Join{Room: "r1"})

	gotX := x.take()
	if len(gotX) != 1 || gotX[0].Type != core.TypeError || gotX[0].Code != core.CodeEvicted {
		t.Fatalf("X got %+v, want evicted error", gotX)
	}
	gotY := y.take()
	want := []core.Notification{core.UserLeft("X"), core.UserJoined("Z"), core.Ready("r1")}
	if len(gotY) != len(want) {
		t.Fatalf("Y got %+v, want %+v", gotY, want)
	}
	for i := range want {
		if !same(gotY[i], want[i]) {
			t.Fatalf("Y[%d]=%+v, want %+v", i, gotY[i], want[i])
		}
	}
	if gotZ := z.take(); len(gotZ) != 1 || !same(gotZ[0], core.Ready("r1")) {
		t.Fatalf("Z got %+v", gotZ)
	}

	// The evicted connection disconnecting must not disturb the new pair.
	mustHandle(t, o, "X", core.Disconnect{})
	if got := append(y.take(), z.take()...); len(got) != 0 {
		t.Fatalf("pair notified about evicted disconnect: %+v", got)
	}
}

// X is evicted from r1 by Z and rejoins r1 while Z's join is still
// delivering notifications. The room sets must still match the room table.
func TestEvictedMemberRejoinsDuringEviction(t *testing.T) {
	o, _ := newOrch(t, app.SimplePolicy{Capacity: app.EvictOldest})
	connect(t, o, "X")
	connect(t, o, "Y")
	connect(t, o, "Z")
	w := connect(t, o, "W")
	mustHandle(t, o, "X", core.Join{Room: "r1"})
	mustHandle(t, o, "Y", core.Join{Room: "r1"})
	mustHandle(t, o, "W", core.Join{Room: "r0"})
	mustHandle(t, o, "Z", core.Join{Room: "r0"})

	// Z moving out of r0 tells W first; use that delivery to rejoin X.
	var once sync.Once
	w.mu.Lock()
	w.onSend = func(core.Notification) {
		once.Do(func() { mustHandle(t, o, "X", core.Join{Room: "r1"}) })
	}
	w.mu.Unlock()

	mustHandle(t, o, "Z", core.Join{Room: "r1"})

	members, ok := o.Rooms.Members("r1")
	if !ok {
		t.Fatal("r1 missing")
	}
	for _, id := range members {
		c, ok := o.Registry.Get(id)
		if !ok || !c.InRoom("r1") {
			t.Fatalf("member %s of r1 does not list r1 in its rooms", id)
		}
	}
	for _, id := range []domain.ConnID{"X", "Y", "Z", "W"} {
		c, _ := o.Registry.Get(id)
		if c.InRoom("r1") && !slices.Contains(members, id) {
			t.Fatalf("%s lists r1 but r1 members=%v", id, members)
		}
	}

	for _, id := range []domain.ConnID{"X", "Y", "Z", "W"} {
		mustHandle(t, o, id, core.Disconnect{})
	}
	if n := o.Rooms.Len(); n != 0 {
		got, _ := o.Rooms.Members("r1")
		t.Fatalf("rooms=%d after every connection left, r1 members=%v", n, got)
	}
}

func TestJoinMovesBetweenRooms(t *testing.T) {
	o, _ := newOrch(t, app.SimplePolicy{})
	connect(t, o, "X")
	y := connect(t, o, "Y")
	mustHandle(t, o, "X", core.Join{Room: "r1"})
	mustHandle(t, o, "Y", core.Join{Room: "r1"})
	y.take()

	mustHandle(t, o, "X", core.Join{Room: "r2"})
	if got := y.take(); len(got) != 1 || !same(got[0], core.UserLeft("X")) {
		t.Fatalf("Y got %+v, want user-left{X}", got)
	}
	c, _ := o.Registry.Get("X")
	if rooms := c.Rooms(); len(rooms) != 1 || rooms[0] != "r2" {
		t.Fatalf("X rooms=%v, want [r2]", rooms)
	}

	if err := o.Handle("X", core.Join{Room: "r2"}); !errors.Is(err, domain.ErrAlreadyMember) {
		t.Fatalf("err=%v, want %v", err, domain.ErrAlreadyMember)
	}
}

func TestReadyAgainAfterPeerReplaced(t *testing.T) {
	o, _ := newOrch(t, app.SimplePolicy{})
	x := connect(t, o, "X")
	connect(t, o, "Y")
	connect(t, o, "Z")
	mustHandle(t, o, "X", core.Join{Room: "r1"})
	mustHandle(t, o, "Y", core.Join{Room: "r1"})
	mustHandle(t, o, "Y", core.Disconnect{})
	x.take()

	mustHandle(t, o, "Z", core.Join{Room: "r1"})
	got := x.take()
	if len(got) != 2 || !same(got[0], core.UserJoined("Z")) || !same(got[1], core.Ready("r1")) {
		t.Fatalf("X got %+v", got)
	}
}

func TestEventsAfterDisconnectRejected(t *testing.T) {
	o, _ := newOrch(t, app.SimplePolicy{})
	connect(t, o, "X")
	mustHandle(t, o, "X", core.Disconnect{})

	if err := o.Handle("X", core.Join{Room: "r1"}); !errors.Is(err, domain.ErrUnknownConnection) {
		t.Fatalf("err=%v, want %v", err, domain.ErrUnknownConnection)
	}
	if o.Rooms.Len() != 0 {
		t.Fatalf("room created for a closed connection")
	}
}

func TestSlowConsumerKicked(t *testing.T) {
	ctrl := gomock.NewController(t)
	slow := mock_core.NewMockSignalConnection(ctrl)

	o, _ := newOrch(t, app.SimplePolicy{Slow: app.KickMember})
	connect(t, o, "X")
	if _, err := o.Connect("Y", slow, ""); err != nil {
		t.Fatalf("connect Y: %v", err)
	}

	mustHandle(t, o, "X", core.Join{Room: "r1"})

	gomock.InOrder(
		slow.EXPECT().TrySend(core.Ready("r1")).Return(nil),
		slow.EXPECT().TrySend(gomock.Any()).Return(core.ErrBackpressure),
		slow.EXPECT().Close(),
	)
	mustHandle(t, o, "Y", core.Join{Room: "r1"})
	mustHandle(t, o, "X", core.Signal{Room: "r1", Data: json.RawMessage(`{"candidate":"c"}`)})
}

func TestSlowConsumerDroppedByDefault(t *testing.T) {
	ctrl := gomock.NewController(t)
	slow := mock_core.NewMockSignalConnection(ctrl)

	o, m := newOrch(t, app.SimplePolicy{})
	connect(t, o, "X")
	if _, err := o.Connect("Y", slow, ""); err != nil {
		t.Fatalf("connect Y: %v", err)
	}
	mustHandle(t, o, "X", core.Join{Room: "r1"})

	slow.EXPECT().TrySend(core.Ready("r1")).Return(nil)
	slow.EXPECT().TrySend(gomock.Any()).Return(core.ErrBackpressure)
	slow.EXPECT().Close().Times(0)

	mustHandle(t, o, "Y", core.Join{Room: "r1"})
	mustHandle(t, o, "X", core.Signal{Room: "r1", Data: json.RawMessage(`{}`)})

	if got := testutil.ToFloat64(m.SignalsDropped); got != 1 {
		t.Fatalf("dropped=%v, want 1", got)
	}
}

func TestConcurrentPairsOnSharedRoomTable(t *testing.T) {
	o, _ := newOrch(t, app.SimplePolicy{})
	const pairs = 32
	ids := make([]domain.ConnID, 0, pairs*2)
	recs := make(map[domain.ConnID]*recorder)
	for i := 0; i < pairs*2; i++ {
		id := domain.ConnID(fmt.Sprintf("c%d", i))
		ids = append(ids, id)
		recs[id] = connect(t, o, id)
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		room := domain.RoomID(fmt.Sprintf("r%d", i/2))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.Handle(id, core.Join{Room: room}); err != nil {
				t.Errorf("join %s: %v", id, err)
			}
		}()
	}
	wg.Wait()

	readyCount := 0
	for _, r := range recs {
		for _, n := range r.take() {
			if n.Type == core.TypeReady {
				readyCount++
			}
		}
	}
	if readyCount != pairs*2 {
		t.Fatalf("ready delivered %d times, want %d", readyCount, pairs*2)
	}
	if o.Rooms.Len() != pairs {
		t.Fatalf("rooms=%d, want %d", o.Rooms.Len(), pairs)
	}
}
