package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/caffeineduck/runit/executor"
)

const (
	exposeMaxMessage       = int64(10 << 20)
	exposeBufferSize       = 1024
	exposeHandshakeTimeout = 10 * time.Second
	exposeWriteTimeout     = 10 * time.Second
)

// relayRequest is a frame sent by the relay. Frames carrying a message are
// notices for the operator; the others call a function.
type relayRequest struct {
	Message    *string             `json:"message,omitempty"`
	Function   string              `json:"function"`
	Parameters jsoniter.RawMessage `json:"parameters"`
}

type relayResponse struct {
	Type string   `json:"type"`
	Data Response `json:"data"`
}

// ExposeURLs derives the relay socket address and the public address
// callers use from an API endpoint such as https://relay.example/api/.
func ExposeURLs(endpoint, clientID string) (socket, public string, err error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("parse expose endpoint: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", "", fmt.Errorf("expose endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("expose endpoint %q: missing host", endpoint)
	}

	path := strings.Replace(u.Path, "/api/", "/", 1)
	path = strings.TrimSuffix(path, "/api")
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	u.RawQuery, u.Fragment = "", ""

	u.Path = path + "ws/" + clientID
	socket = u.String()

	if u.Scheme == "wss" {
		u.Scheme = "https"
	} else {
		u.Scheme = "http"
	}
	u.Path = path + "e/" + clientID
	return socket, u.String(), nil
}

// Expose connects to a relay and answers the calls it forwards until ctx
// is done or the relay closes the connection. Calls are handled one at a
// time, and each answer carries the same envelope as the HTTP JSON format.
func (s *Server) Expose(ctx context.Context, endpoint string) error {
	defer s.cancel()

	clientID := strconv.FormatInt(time.Now().Unix(), 10)
	socketURL, public, err := ExposeURLs(endpoint, clientID)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		ReadBufferSize:   exposeBufferSize,
		WriteBufferSize:  exposeBufferSize,
		HandshakeTimeout: exposeHandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, socketURL, nil)
	if err != nil {
		return fmt.Errorf("connect to relay %s: %w", socketURL, err)
	}
	defer conn.Close()
	conn.SetReadLimit(exposeMaxMessage)

	stop := context.AfterFunc(ctx, func() {
		s.stopping.Store(true)
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		conn.Close()
	})
	defer stop()

	if s.cfg.Watch {
		w, err := Watch(s.base, s.cfg.Dir, s.cache, s.log.Named("watch"))
		if err != nil {
			s.log.Warn("file watching disabled", "error", err)
		} else {
			defer w.Close()
		}
	}

	if err := s.writeRelay(conn, map[string]string{"type": "client"}); err != nil {
		return err
	}
	s.log.Info("serving project", "url", public, "dir", s.cfg.Dir, "isolation", s.cfg.Isolation)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Info("relay connection closed")
				return nil
			}
			return fmt.Errorf("read from relay: %w", err)
		}

		var req relayRequest
		if err := jsoniter.Unmarshal(data, &req); err != nil {
			s.log.Warn("ignoring malformed relay frame", "error", err)
			continue
		}
		if req.Message != nil {
			s.log.Info("relay notice", "message", *req.Message)
			continue
		}

		resp := s.relayCall(s.base, req)
		if err := s.writeRelay(conn, relayResponse{Type: "response", Data: resp}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// relayCall invokes one forwarded call. Parameters may be a JSON object,
// read in document order, an array, or a single value.
func (s *Server) relayCall(ctx context.Context, req relayRequest) Response {
	name := req.Function
	if name == "" {
		name = DefaultFunction
	}

	var args []string
	if raw := strings.TrimSpace(string(req.Parameters)); raw != "" && raw != "null" {
		var err error
		args, _, err = jsonArgs(req.Parameters)
		if err != nil {
			s.counters.failed.Add(1)
			return failure(err.Error())
		}
	}

	s.counters.total.Add(1)
	s.log.Info("relayed call", "function", name, "args", len(args))

	out, _, err := s.call(ctx, uuid.NewString(), name, args)
	switch {
	case err == nil:
		s.counters.succeeded.Add(1)
		return success(Decode(out))
	case errors.Is(err, executor.ErrFunctionNotFound):
		s.counters.notFound.Add(1)
		return failure(notFoundMessage(name))
	case isInfrastructure(err):
		s.counters.unavailable.Add(1)
		s.log.Error("execution unavailable", "error", err)
		return failure("service unavailable: " + err.Error())
	default:
		s.counters.failed.Add(1)
		return failure(message(err))
	}
}

func (s *Server) writeRelay(conn *websocket.Conn, v any) error {
	payload, err := jsoniter.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode relay frame: %w", err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(exposeWriteTimeout)); err != nil {
		return fmt.Errorf("write to relay: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write to relay: %w", err)
	}
	return nil
}
