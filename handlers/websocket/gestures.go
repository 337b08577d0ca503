package websocket

import (
	"errors"
	"fmt"
	"garment-designer/core"
	"garment-designer/designer"
	"garment-designer/handlers/auth"
	"garment-designer/sessions"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

var (
	errNotJoined    = errors.New("join a session first")
	errUnknownEvent = errors.New("unknown gesture event")
)

// Gesture events a client may send once joined.
const (
	EventDragBegin  = "drag-begin"
	EventDragMove   = "drag-move"
	EventDragEnd    = "drag-end"
	EventDragCancel = "drag-cancel"
	EventTap        = "tap"
)

var gestureEvents = []string{EventDragBegin, EventDragMove, EventDragEnd, EventDragCancel, EventTap}

// client is the per-socket binding to an editing session.
type client struct {
	mu        sync.Mutex
	user      *core.User
	sessionID string
	// drag is the number of the drag this socket started, zero if none.
	drag uint64
}

func (c *client) binding() (*core.User, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user, c.sessionID
}

func (c *client) setDrag(n uint64) {
	c.mu.Lock()
	c.drag = n
	c.mu.Unlock()
}

func (c *client) ownDrag() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drag
}

// hub drives editing sessions from socket events.
type hub struct {
	reg *sessions.Registry
}

// join authenticates the socket and binds it to one of the user's sessions.
// Switching to another session drops the socket's drag in the previous one.
func (h *hub) join(c *client, args []any) (map[string]any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("session id and token are required")
	}
	sid, ok := args[0].(string)
	if !ok || sid == "" {
		return nil, fmt.Errorf("invalid session id")
	}
	token, ok := args[1].(string)
	if !ok || token == "" {
		return nil, designer.ErrNotAuthenticated
	}

	claims, err := auth.ParseJWT(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", designer.ErrNotAuthenticated, err)
	}
	user := claims.User()
	s, err := h.reg.Get(user.Subject, sid)
	if err != nil {
		return nil, err
	}

	if _, prev := c.binding(); prev != "" && prev != sid {
		h.release(c)
	}

	c.mu.Lock()
	if c.sessionID != sid {
		c.drag = 0
	}
	c.user, c.sessionID = user, sid
	c.mu.Unlock()

	return map[string]any{"state": s.Snapshot()}, nil
}

// gesture applies one gesture event to the bound session.
func (h *hub) gesture(c *client, event string, args []any) (map[string]any, error) {
	user, sid := c.binding()
	if user == nil {
		return nil, errNotJoined
	}
	s, err := h.reg.Get(user.Subject, sid)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{}
	var started uint64
	err = s.Do(func(e *designer.Editor) error {
		g := e.Gesture()
		switch event {
		case EventDragBegin, EventTap:
			id, err := argInt(args, 0)
			if err != nil {
				return err
			}
			if event == EventTap {
				return g.Tap(id)
			}
			if err := g.BeginDrag(id); err != nil {
				return err
			}
			started, _ = g.Drag()
			return nil
		case EventDragMove:
			dx, err := argFloat(args, 0)
			if err != nil {
				return err
			}
			dy, err := argFloat(args, 1)
			if err != nil {
				return err
			}
			target, _ := g.Target()
			pos, err := g.MoveDrag(dx, dy)
			if err != nil {
				return err
			}
			payload["id"], payload["x"], payload["y"] = target, pos.X, pos.Y
		case EventDragEnd:
			target, _ := g.Target()
			pos, err := g.EndDrag()
			if err != nil {
				return err
			}
			payload["id"], payload["x"], payload["y"] = target, pos.X, pos.Y
		case EventDragCancel:
			g.CancelDrag()
		default:
			return fmt.Errorf("%w: %s", errUnknownEvent, event)
		}
		payload["revision"] = e.Revision()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if started != 0 {
		c.setDrag(started)
	}
	return payload, nil
}

// release cancels the drag this socket started, if it is still running.
// Drags started by other sockets or over HTTP are left alone.
func (h *hub) release(c *client) {
	user, sid := c.binding()
	own := c.ownDrag()
	if user == nil || own == 0 {
		return
	}
	s, err := h.reg.Get(user.Subject, sid)
	if err != nil {
		return
	}
	_ = s.Do(func(e *designer.Editor) error {
		if n, dragging := e.Gesture().Drag(); dragging && n == own {
			e.Gesture().CancelDrag()
			logrus.WithField("session_id", sid).Info("Cancelled drag of disconnected client")
		}
		return nil
	})
	c.setDrag(0)
}

// roomMember is the part of a socket that joins and leaves rooms.
type roomMember interface {
	Join(rooms ...socketio.Room)
	Leave(room socketio.Room)
}

// switchRoom moves a socket from the room of its previous session, if any,
// into the room of sid.
func switchRoom(m roomMember, prev, sid string) {
	if prev != "" && prev != sid {
		m.Leave(socketio.Room(prev))
	}
	m.Join(socketio.Room(sid))
}

func argFloat(args []any, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	switch v := args[i].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("argument %d must be a number, got %T", i, args[i])
	}
}

func argInt(args []any, i int) (int64, error) {
	if i < len(args) {
		if v, ok := args[i].(int64); ok {
			return v, nil
		}
	}
	f, err := argFloat(args, i)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func statusPayload(payload map[string]any, err error) map[string]any {
	if err != nil {
		return map[string]any{"status": "error", "error": err.Error()}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	payload["status"] = "ok"
	return payload
}

// SetupSocketIO serves the gesture channel. Every committed change of a
// session, whatever its origin, is announced to the session's room as
// design-updated.
func SetupSocketIO(reg *sessions.Registry) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(1000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)
	h := &hub{reg: reg}

	reg.OnChange = func(sessionID string, revision uint64) {
		_ = srv.To(socketio.Room(sessionID)).Emit("design-updated", map[string]any{
			"sessionId": sessionID,
			"revision":  revision,
		})
	}

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		c := &client{}

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("join-session", func(datas ...any) {
			ack, args := extractAck(datas)
			_, prev := c.binding()
			payload, err := h.join(c, args)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"socket_id": socket.Id(),
					"error":     err,
				}).Warn("Rejected join-session")
				respondWithAck(socket, ack, "join-session-ack", statusPayload(nil, err), err)
				return
			}
			_, sid := c.binding()
			switchRoom(socket, prev, sid)
			logrus.WithFields(logrus.Fields{
				"socket_id":  socket.Id(),
				"session_id": sid,
			}).Info("Socket joined editing session")
			respondWithAck(socket, ack, "join-session-ack", statusPayload(payload, nil), nil)
		})

		for _, event := range gestureEvents {
			//nolint:errcheck // Socket.IO event handlers do not return useful errors
			socket.On(event, func(datas ...any) {
				ack, args := extractAck(datas)
				payload, err := h.gesture(c, event, args)
				if err != nil {
					logrus.WithFields(logrus.Fields{
						"socket_id": socket.Id(),
						"event":     event,
						"error":     err,
					}).Debug("Gesture rejected")
					respondWithAck(socket, ack, event+"-ack", statusPayload(nil, err), err)
					return
				}
				if event == EventDragMove {
					_, sid := c.binding()
					_ = socket.Volatile().Broadcast().To(socketio.Room(sid)).Emit("drag-position", payload)
				}
				respondWithAck(socket, ack, event+"-ack", statusPayload(payload, nil), nil)
			})
		}

		socket.On("disconnecting", func(datas ...any) {
			h.release(c)
		})

		socket.On("disconnect", func(datas ...any) {
			socket.RemoveAllListeners("")
			socket.Disconnect(true)
		})
	})

	return srv
}
