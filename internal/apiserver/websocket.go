package apiserver

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gin-gonic/gin"

	"brokle-tracehub/internal/engine"
	"brokle-tracehub/internal/filterlang"
	"brokle-tracehub/internal/tracedata"
	wsocket "brokle-tracehub/pkg/websocket"
)

// liveSub tracks the one active subscription a subscribeSession holds,
// so a client that sends a fresh subscribe frame replaces its previous
// filter instead of accumulating fan-out goroutines.
type liveSub struct {
	mu     sync.Mutex
	kind   string
	id     string
	cancel func()
}

func (l *liveSub) replace(kind, id string, cancel func()) {
	l.mu.Lock()
	prevCancel := l.cancel
	l.kind, l.id, l.cancel = kind, id, cancel
	l.mu.Unlock()
	if prevCancel != nil {
		prevCancel()
	}
}

func (l *liveSub) clear() {
	l.mu.Lock()
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// handleSubscribe upgrades the request to a websocket and pumps a live
// engine.Update stream out as Add/Remove envelopes (spec.md §6 "a
// receiver of Add(entity) | Remove(key) messages"). The client drives
// what it sees by sending {"kind":"spans"|"events","filter":"..."}
// control frames; a fresh frame replaces the prior subscription.
func (s *Server) handleSubscribe(c *gin.Context) {
	conn, err := wsocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("apiserver: websocket upgrade failed", "error", err)
		return
	}

	sub := &liveSub{}
	conn.OnError(func(err error) {
		s.logger.Warn("apiserver: websocket error", "error", err)
	})
	conn.OnMessage(func(data []byte) {
		var req wsocket.SubscribeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			conn.SendMessage(wsocket.NewErrorMessage("", "invalid subscribe request"))
			return
		}
		s.startSubscription(conn, sub, req)
	})

	conn.Run()
	sub.clear()
}

func (s *Server) startSubscription(conn *wsocket.Conn, sub *liveSub, req wsocket.SubscribeRequest) {
	node, err := filterlang.Parse(req.Filter)
	if err != nil {
		conn.SendMessage(wsocket.NewErrorMessage("", err.Error()))
		return
	}
	if err := filterlang.Validate(node); err != nil {
		conn.SendMessage(wsocket.NewErrorMessage("", err.Error()))
		return
	}

	var id string
	var ch <-chan engine.Update
	switch req.Kind {
	case "spans":
		id, ch, err = s.facade.SubscribeToSpans(node)
	case "events":
		id, ch, err = s.facade.SubscribeToEvents(node)
	default:
		conn.SendMessage(wsocket.NewErrorMessage("", "kind must be \"spans\" or \"events\""))
		return
	}
	if err != nil {
		conn.SendMessage(wsocket.NewErrorMessage("", err.Error()))
		return
	}

	stop := make(chan struct{})
	cancel := func() {
		close(stop)
		if req.Kind == "spans" {
			s.facade.UnsubscribeFromSpans(id)
		} else {
			s.facade.UnsubscribeFromEvents(id)
		}
	}
	sub.replace(req.Kind, id, cancel)
	conn.SendMessage(wsocket.NewAckMessage(id))

	go s.pumpUpdates(conn, id, ch, stop)
}

// pumpUpdates forwards engine updates to the websocket and, when a
// redis backplane is configured, mirrors the same envelope so a sibling
// apiserver process can observe this subscription id too.
func (s *Server) pumpUpdates(conn *wsocket.Conn, subID string, ch <-chan engine.Update, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			if u.Remove != nil {
				msg := wsocket.NewRemoveMessage(subID, uint64(*u.Remove))
				conn.SendMessage(msg)
				s.bus.Publish(context.Background(), subID, msg)
				continue
			}
			msg := wsocket.NewAddMessage(subID, uint64(entityKey(u.Add)), u.Add)
			conn.SendMessage(msg)
			s.bus.Publish(context.Background(), subID, msg)
		}
	}
}

// entityKey extracts the sort key out of the concrete *tracedata.Span /
// *tracedata.Event an Update.Add carries.
func entityKey(v any) tracedata.Timestamp {
	switch e := v.(type) {
	case *tracedata.Span:
		return e.Key()
	case *tracedata.Event:
		return e.Key()
	default:
		return 0
	}
}
