package wire

import (
	"errors"
	"io"
	"log/slog"
	"net"

	"brokle-tracehub/internal/engine"
	"brokle-tracehub/internal/tracedata"
)

// session owns one tracing-producer connection: decode the handshake,
// then decode and apply messages until EOF or a parse error (spec.md
// §6 "Unexpected EOF terminates the session cleanly; parse errors
// terminate it with a warning").
type session struct {
	conn       net.Conn
	facade     *engine.Facade
	logger     *slog.Logger
	instanceID uint64

	resourceKey tracedata.Timestamp
}

func (s *session) run() {
	defer s.conn.Close()
	fr := newFrameReader(s.conn)

	frame, err := fr.readFrame()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.Warn("wire: failed to read handshake", "error", err)
		}
		return
	}
	handshake, err := decodeHandshake(frame)
	if err != nil {
		s.logger.Warn("wire: failed to decode handshake", "error", err)
		return
	}
	res, err := s.facade.InsertResource(handshake.Attributes)
	if err != nil {
		s.logger.Warn("wire: failed to insert resource", "error", err)
		return
	}
	s.resourceKey = res.Key()

	instance := tracedata.NewTracingInstanceID(s.instanceID)
	for {
		frame, err := fr.readFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("wire: failed to read message frame", "error", err)
			}
			break
		}
		msg, err := decodeMessage(frame)
		if err != nil {
			s.logger.Warn("wire: failed to decode message, closing session", "error", err)
			break
		}
		if err := s.apply(msg); err != nil {
			s.logger.Warn("wire: failed to apply message", "kind", msg.Kind, "error", err)
		}
	}

	if err := s.facade.DisconnectTracingInstance(tracedata.SpanIDTracing, instance); err != nil {
		s.logger.Warn("wire: failed to disconnect tracing instance", "error", err)
	}
}

func (s *session) spanID(msg Message) (tracedata.FullSpanId, bool) {
	if msg.SpanID == nil {
		return tracedata.FullSpanId{}, false
	}
	return tracedata.NewTracingSpanID(s.instanceID, *msg.SpanID), true
}

func (s *session) apply(msg Message) error {
	switch msg.Kind {
	case MessageCreate:
		id, ok := s.spanID(msg)
		if !ok {
			return errMissingSpanID
		}
		c := msg.Create
		var parent *tracedata.FullSpanId
		if c.ParentID != nil {
			pid := tracedata.NewTracingSpanID(s.instanceID, *c.ParentID)
			parent = &pid
		}
		var line *uint32
		if c.FileLine != nil {
			line = c.FileLine
		}
		_, err := s.facade.CreateSpan(tracedata.Timestamp(msg.Timestamp), tracedata.SpanIDTracing, tracedata.CreateSpanEvent{
			ResourceKey: s.resourceKey,
			ParentID:    parent,
			SpanID:      id,
			Name:        c.Name,
			Namespace:   c.Target,
			Level:       tracedata.LevelFromTracing(c.Level),
			FileName:    c.FileName,
			FileLine:    line,
			Attributes:  c.Attributes,
		})
		return err
	case MessageUpdate:
		id, ok := s.spanID(msg)
		if !ok {
			return errMissingSpanID
		}
		return s.facade.UpdateSpan(tracedata.Timestamp(msg.Timestamp), id, tracedata.UpdateSpanEvent{Attributes: msg.Update.Attributes})
	case MessageFollows:
		id, ok := s.spanID(msg)
		if !ok {
			return errMissingSpanID
		}
		target := tracedata.NewTracingSpanID(s.instanceID, msg.Follows.Follows)
		return s.facade.FollowsSpan(tracedata.Timestamp(msg.Timestamp), id, tracedata.FollowsSpanEvent{Target: target})
	case MessageEnter:
		id, ok := s.spanID(msg)
		if !ok {
			return errMissingSpanID
		}
		return s.facade.EnterSpan(tracedata.Timestamp(msg.Timestamp), id, tracedata.EnterSpanEvent{ThreadID: msg.Enter.ThreadID})
	case MessageExit:
		id, ok := s.spanID(msg)
		if !ok {
			return errMissingSpanID
		}
		return s.facade.ExitSpan(tracedata.Timestamp(msg.Timestamp), id)
	case MessageClose:
		id, ok := s.spanID(msg)
		if !ok {
			return errMissingSpanID
		}
		return s.facade.CloseSpan(tracedata.Timestamp(msg.Timestamp), id, tracedata.CloseSpanEvent{})
	case MessageEvent:
		ev := msg.Event
		var parent *tracedata.FullSpanId
		if id, ok := s.spanID(msg); ok {
			parent = &id
		}
		_, err := s.facade.InsertEvent(
			tracedata.Timestamp(msg.Timestamp), tracedata.SpanIDTracing, s.resourceKey, parent,
			tracedata.Null(), ev.Target, ev.Name, ev.FileName, ev.FileLine, nil,
			tracedata.LevelFromTracing(ev.Level), ev.Attributes,
		)
		return err
	default:
		return errUnknownMessageKind
	}
}

var (
	errMissingSpanID      = errors.New("wire: message requires a span_id")
	errUnknownMessageKind = errors.New("wire: unknown message kind")
)
