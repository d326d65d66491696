// Package ws serves remote policies over websocket. Each connection owns one
// training slot and steps it in lockstep: the slot advances only when the
// policy's ACT arrives.
package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/bee-forage/internal/agents"
	"github.com/talgya/bee-forage/internal/curriculum"
	"github.com/talgya/bee-forage/internal/engine"
	"github.com/talgya/bee-forage/internal/protocol"
)

// KindRemote is the registry kind for websocket-driven slots.
const KindRemote = "remote"

// Limiter admits or refuses new sessions by client key.
type Limiter interface {
	Allow(key string) bool
}

// Server upgrades connections and runs one slot per remote policy.
type Server struct {
	Factory  *engine.SlotFactory
	Registry *engine.Registry
	Limiter  Limiter                      // Optional
	KeyFunc  func(r *http.Request) string // Client key for Limiter; defaults to the remote host

	HandshakeTimeout time.Duration
	ActTimeout       time.Duration

	nextSlot atomic.Int64
	upgrader websocket.Upgrader
}

// NewServer creates a server whose slots are numbered from firstSlot up, so
// they never collide with in-process batch slots.
func NewServer(f *engine.SlotFactory, reg *engine.Registry, firstSlot int) *Server {
	s := &Server{
		Factory:          f,
		Registry:         reg,
		HandshakeTimeout: 5 * time.Second,
		ActTimeout:       60 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // policies are not browsers
		},
	}
	s.nextSlot.Store(int64(firstSlot))
	return s
}

// Handler returns the websocket endpoint.
func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if s.Limiter != nil && !s.Limiter.Allow(s.clientKey(r)) {
			_ = writeJSON(conn, protocol.NewError(protocol.ErrRateLimit, "too many sessions, retry later"))
			return
		}

		sim, ok := s.handshake(conn)
		if !ok {
			return
		}
		if s.Registry != nil {
			s.Registry.Add(sim, KindRemote)
			defer s.Registry.Remove(sim.ID)
		}
		slog.Info("remote policy connected", "session", sim.ID, "slot", sim.Slot(), "remote", r.RemoteAddr)

		steps := s.serve(conn, sim)
		slog.Info("remote policy disconnected", "session", sim.ID, "steps", steps, "episodes", sim.Stats().Episodes)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (*engine.Simulation, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(s.HandshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, "expected HELLO"))
		return nil, false
	}
	hello, err := protocol.DecodeHello(msg)
	if err != nil {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		return nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, "bad protocol_version"))
		return nil, false
	}

	f := *s.Factory
	if len(hello.ResetParameters) > 0 {
		p, err := curriculum.FromResetParameters(hello.ResetParameters)
		if err != nil {
			_ = writeJSON(conn, protocol.NewError(protocol.ErrBadRequest, err.Error()))
			return nil, false
		}
		f.Source = curriculum.Fixed(p)
	}
	sim := f.New(int(s.nextSlot.Add(1) - 1))
	first := sim.Reset()

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sim.ID,
		ObservationSize: agents.ObservationSize,
		ActionSizes:     []int{2, 3},
		MaxSteps:        f.MaxSteps,
		DT:              f.World.DT,
		ResetParameters: sim.Snapshot().World.Curriculum.ResetParameters(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil, false
	}
	if err := writeJSON(conn, obsMessage(first)); err != nil {
		return nil, false
	}
	return sim, true
}

// serve alternates ACT and OBS until the connection drops. Malformed
// messages get an ERROR and leave the slot where it was.
func (s *Server) serve(conn *websocket.Conn, sim *engine.Simulation) int {
	steps := 0
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.ActTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return steps
		}

		act, err := protocol.DecodeAct(msg)
		if err != nil {
			if writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, err.Error())) != nil {
				return steps
			}
			continue
		}
		if act.ProtocolVersion != protocol.Version {
			if writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, "bad protocol_version")) != nil {
				return steps
			}
			continue
		}
		a, err := agents.ActionFromVector(act.Action)
		if err != nil {
			if writeJSON(conn, protocol.NewError(protocol.ErrBadRequest, err.Error())) != nil {
				return steps
			}
			continue
		}
		a.Reset = act.Reset

		res := sim.Step(a)
		steps++
		if err := writeJSON(conn, obsMessage(res)); err != nil {
			return steps
		}
	}
}

func (s *Server) clientKey(r *http.Request) string {
	if s.KeyFunc != nil {
		return s.KeyFunc(r)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func obsMessage(res engine.StepResult) protocol.ObsMsg {
	return protocol.ObsMsg{
		Type:            protocol.TypeObs,
		ProtocolVersion: protocol.Version,
		Episode:         res.Episode,
		Step:            res.Step,
		Observation:     res.Observation,
		Reward:          res.Reward,
		Done:            res.Done,
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	}
	return nil
}
