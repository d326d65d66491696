package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/bee-forage/internal/agents"
	"github.com/talgya/bee-forage/internal/engine"
	"github.com/talgya/bee-forage/internal/protocol"
	"github.com/talgya/bee-forage/internal/world"
)

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

func newTestServer(t *testing.T, maxSteps int) (*Server, *httptest.Server) {
	t.Helper()
	f := &engine.SlotFactory{
		World:    world.DefaultConfig(),
		Bee:      agents.DefaultParams(),
		MaxSteps: maxSteps,
	}
	s := NewServer(f, engine.NewRegistry(), 100)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func read[T any](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func hello(params map[string]float64) protocol.HelloMsg {
	return protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PolicyName:      "test",
		ResetParameters: params,
	}
}

func act(step int, action ...float64) protocol.ActMsg {
	return protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Step:            step,
		Action:          action,
	}
}

func TestServer_LockstepEpisode(t *testing.T) {
	s, ts := newTestServer(t, 3)
	conn := dial(t, ts)

	send(t, conn, hello(nil))
	welcome := read[protocol.WelcomeMsg](t, conn)
	if welcome.Type != protocol.TypeWelcome || welcome.SessionID == "" {
		t.Fatalf("welcome: %+v", welcome)
	}
	if welcome.ObservationSize != agents.ObservationSize || welcome.MaxSteps != 3 {
		t.Fatalf("welcome contract: %+v", welcome)
	}

	first := read[protocol.ObsMsg](t, conn)
	if first.Step != 0 || first.Episode != 1 || len(first.Observation) != agents.ObservationSize {
		t.Fatalf("first obs: %+v", first)
	}

	var obs protocol.ObsMsg
	for i := 1; i <= 3; i++ {
		send(t, conn, act(i, 1, 0))
		obs = read[protocol.ObsMsg](t, conn)
		if obs.Step != i {
			t.Fatalf("step: got %d want %d", obs.Step, i)
		}
	}
	if !obs.Done {
		t.Fatalf("episode should end at max steps: %+v", obs)
	}
	if s.Registry.Len() != 1 {
		t.Fatalf("registry: got %d live slots want 1", s.Registry.Len())
	}
	info := s.Registry.List()[0]
	if info.Kind != KindRemote || info.Slot != 100 {
		t.Fatalf("session info: %+v", info)
	}

	send(t, conn, act(4, 1, 0))
	next := read[protocol.ObsMsg](t, conn)
	if next.Step != 0 || next.Episode != 2 || next.Done {
		t.Fatalf("after done: %+v", next)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for s.Registry.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("slot not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_MalformedActKeepsSlot(t *testing.T) {
	_, ts := newTestServer(t, 0)
	conn := dial(t, ts)
	send(t, conn, hello(nil))
	read[protocol.WelcomeMsg](t, conn)
	read[protocol.ObsMsg](t, conn)

	cases := []struct {
		name string
		msg  any
		code string
	}{
		{"one value", act(1, 1), protocol.ErrProtoBadRequest},
		{"wrong version", protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: "0.1", Action: []float64{1, 0}}, protocol.ErrProtoBadRequest},
		{"not an act", map[string]any{"type": "HELLO", "protocol_version": protocol.Version}, protocol.ErrProtoBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			send(t, conn, tc.msg)
			e := read[protocol.ErrorMsg](t, conn)
			if e.Type != protocol.TypeError || e.Code != tc.code {
				t.Fatalf("error: %+v", e)
			}
		})
	}

	send(t, conn, act(1, 0.5, 0, 0.2))
	obs := read[protocol.ObsMsg](t, conn)
	if obs.Type != protocol.TypeObs || obs.Step != 1 {
		t.Fatalf("slot should be untouched by bad messages: %+v", obs)
	}

	r := act(2, 1, 0)
	r.Reset = true
	send(t, conn, r)
	if obs = read[protocol.ObsMsg](t, conn); !obs.Done {
		t.Fatalf("reset request should end the episode: %+v", obs)
	}
}

func TestServer_HelloCurriculumOverride(t *testing.T) {
	_, ts := newTestServer(t, 10)
	conn := dial(t, ts)
	send(t, conn, hello(map[string]float64{"hive_radius": 2, "use_radius": 1}))
	welcome := read[protocol.WelcomeMsg](t, conn)
	if welcome.ResetParameters["hive_radius"] != 2 || welcome.ResetParameters["use_radius"] != 1 {
		t.Fatalf("reset parameters: %+v", welcome.ResetParameters)
	}
}

func TestServer_HandshakeErrors(t *testing.T) {
	cases := []struct {
		name string
		msg  any
		code string
	}{
		{"act first", act(0, 1, 0), protocol.ErrProtoBadRequest},
		{"bad version", protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.1"}, protocol.ErrProtoBadRequest},
		{"bad use_radius", hello(map[string]float64{"use_radius": 2}), protocol.ErrBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ts := newTestServer(t, 10)
			conn := dial(t, ts)
			send(t, conn, tc.msg)
			e := read[protocol.ErrorMsg](t, conn)
			if e.Code != tc.code {
				t.Fatalf("code: got %q want %q", e.Code, tc.code)
			}
		})
	}
}

func TestServer_RateLimited(t *testing.T) {
	s, ts := newTestServer(t, 10)
	s.Limiter = denyAll{}
	conn := dial(t, ts)
	e := read[protocol.ErrorMsg](t, conn)
	if e.Code != protocol.ErrRateLimit {
		t.Fatalf("code: got %q want %q", e.Code, protocol.ErrRateLimit)
	}
}
