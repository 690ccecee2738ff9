package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/tradeledger/internal/commands"
	"github.com/MrWong99/tradeledger/internal/observe"
	"github.com/MrWong99/tradeledger/internal/storage"
	"github.com/MrWong99/tradeledger/internal/trade"
)

// EventsPath is the HTTP path the websocket endpoint is mounted on.
const EventsPath = "/v1/events"

// maxMessageSize bounds a single inbound frame.
const maxMessageSize = 1 << 20

// Request types.
const (
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypeCapture = "capture"
	TypeLookup  = "lookup"
	TypeCommand = "command"
)

// Reply types.
const (
	TypeAck    = "ack"
	TypeLabel  = "label"
	TypeResult = "result"
	TypeError  = "error"
)

// Request is one inbound bridge message.
type Request struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`

	// Join: exactly one of Namespace, Local or Remote. Local is a
	// single-player level name, Remote a server address.
	Namespace string `json:"namespace,omitempty"`
	Local     string `json:"local,omitempty"`
	Remote    string `json:"remote,omitempty"`

	// Capture and lookup.
	EntityID string        `json:"entity_id,omitempty"`
	Role     string        `json:"role,omitempty"`
	Entries  []trade.Entry `json:"entries,omitempty"`

	// Command.
	Name string   `json:"name,omitempty"`
	Args []string `json:"args,omitempty"`
}

// namespace resolves the join target.
func (r *Request) namespace() string {
	switch {
	case r.Namespace != "":
		return r.Namespace
	case r.Local != "":
		return storage.LocalNamespace(r.Local)
	case r.Remote != "":
		return storage.RemoteNamespace(r.Remote)
	}
	return ""
}

// Reply is the response to a [Request]. ID echoes the request ID.
type Reply struct {
	ID        string           `json:"id,omitempty"`
	Type      string           `json:"type"`
	Namespace string           `json:"namespace,omitempty"`
	EntityID  string           `json:"entity_id,omitempty"`
	Label     string           `json:"label,omitempty"`
	Shown     bool             `json:"shown,omitempty"`
	Result    *commands.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// ServerOption configures a [Server].
type ServerOption func(*Server)

// WithOriginPatterns allows cross-origin browser clients whose Origin host
// matches one of patterns.
func WithOriginPatterns(patterns ...string) ServerOption {
	return func(s *Server) { s.origins = patterns }
}

// WithServerMetrics sets the metrics instance. Default: [observe.DefaultMetrics].
func WithServerMetrics(m *observe.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// Server is the websocket endpoint of the bridge. Each connection is read
// sequentially: one request, one reply.
type Server struct {
	actor   *Actor
	capture *Capture
	metrics *observe.Metrics
	origins []string

	closeOnce sync.Once
	closing   chan struct{}
}

// NewServer returns a Server dispatching to actor.
func NewServer(actor *Actor, opts ...ServerOption) *Server {
	s := &Server{
		actor:   actor,
		closing: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.capture = NewCapture(actor, s.metrics)
	return s
}

// Close asks every open connection to go away. It does not wait.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context()).With("remote", r.RemoteAddr)
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		log.Warn("bridge: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxMessageSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-s.closing:
			conn.Close(websocket.StatusGoingAway, "server shutting down")
		case <-ctx.Done():
		}
	}()

	s.metrics.BridgeConnections.Add(ctx, 1)
	defer s.metrics.BridgeConnections.Add(context.WithoutCancel(ctx), -1)
	log.Info("bridge client connected")

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Info("bridge client disconnected")
			default:
				if ctx.Err() == nil {
					log.Warn("bridge: read failed", "err", err)
				}
			}
			return
		}

		var reply Reply
		if typ != websocket.MessageText {
			reply = errorReply("", errors.New("binary frames are not supported"))
			s.metrics.RecordBridgeMessage(ctx, "binary", "error")
		} else {
			reply = s.handle(ctx, data)
		}

		out, err := json.Marshal(reply)
		if err != nil {
			log.Error("bridge: marshal reply", "err", err)
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			log.Warn("bridge: write failed", "err", err)
			return
		}
	}
}

// handle decodes and executes one request.
func (s *Server) handle(ctx context.Context, data []byte) Reply {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		s.metrics.RecordBridgeMessage(ctx, "invalid", "error")
		return errorReply("", fmt.Errorf("invalid message: %w", err))
	}

	ctx, span := observe.StartSpan(ctx, "bridge."+metricType(req.Type))
	reply, err := s.dispatch(ctx, &req)
	observe.EndSpan(span, err)

	s.metrics.RecordBridgeMessage(ctx, metricType(req.Type), observe.Status(err))
	if err != nil {
		observe.Logger(ctx).Debug("bridge request failed", "type", req.Type, "err", err)
		return errorReply(req.ID, err)
	}
	reply.ID = req.ID
	return reply
}

func (s *Server) dispatch(ctx context.Context, req *Request) (Reply, error) {
	switch req.Type {
	case TypeJoin:
		ns := req.namespace()
		if err := s.capture.OnNamespaceJoinDetected(ctx, ns); err != nil {
			return Reply{}, err
		}
		return Reply{Type: TypeAck, Namespace: ns}, nil

	case TypeLeave:
		if err := s.capture.OnNamespaceLeaveDetected(ctx); err != nil {
			return Reply{}, err
		}
		return Reply{Type: TypeAck}, nil

	case TypeCapture:
		id, err := uuid.Parse(req.EntityID)
		if err != nil {
			return Reply{}, fmt.Errorf("entity_id: %w", err)
		}
		if err := s.capture.OnCapture(ctx, id, req.Role, req.Entries); err != nil {
			return Reply{}, err
		}
		return s.label(ctx, id)

	case TypeLookup:
		id, err := uuid.Parse(req.EntityID)
		if err != nil {
			return Reply{}, fmt.Errorf("entity_id: %w", err)
		}
		return s.label(ctx, id)

	case TypeCommand:
		res, err := s.actor.Command(ctx, req.Name, req.Args)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Type: TypeResult, Result: &res}, nil
	}
	return Reply{}, fmt.Errorf("unknown message type %q", req.Type)
}

func (s *Server) label(ctx context.Context, id uuid.UUID) (Reply, error) {
	label, shown, err := s.capture.Label(ctx, id)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Type: TypeLabel, EntityID: id.String(), Label: label, Shown: shown}, nil
}

// metricType keeps the message-type attribute to a fixed set.
func metricType(t string) string {
	switch t {
	case TypeJoin, TypeLeave, TypeCapture, TypeLookup, TypeCommand:
		return t
	}
	return "unknown"
}

func errorReply(id string, err error) Reply {
	return Reply{ID: id, Type: TypeError, Error: err.Error()}
}
