// Package wire implements the binary line protocol tracing producers
// speak to the daemon (spec.md §6 "Ingress binary protocol"): a TCP
// connection starts with a Handshake that becomes a resource, followed
// by a stream of length-prefixed Messages that mutate spans or record
// events. Grounded in original_source/venator-app/src-tauri/src/
// ingress.rs, adapted from its bincode+varint framing to a standalone
// tag-prefixed encoding built on pkg/varint (no Rust-specific codec is
// available in the Go ecosystem for this wire shape).
package wire

import (
	"brokle-tracehub/internal/tracedata"
)

// Handshake is the first payload on a connection; its attributes
// become the resource every subsequent message on the connection is
// attributed to.
type Handshake struct {
	Attributes map[string]tracedata.Value
}

// MessageKind tags the variant carried by a Message's Data field.
type MessageKind byte

const (
	MessageCreate MessageKind = iota
	MessageUpdate
	MessageFollows
	MessageEnter
	MessageExit
	MessageClose
	MessageEvent
)

// Message is one payload after the handshake (spec.md §6): a
// timestamp, an optional span id (absent only for a bare Event with no
// enclosing span), and exactly one kind-tagged payload.
type Message struct {
	Timestamp uint64
	SpanID    *uint64
	Kind      MessageKind
	Create    *CreateData
	Update    *UpdateData
	Follows   *FollowsData
	Enter     *EnterData
	Event     *EventData
}

// CreateData materializes a new span.
type CreateData struct {
	ParentID   *uint64
	Target     string
	Name       string
	Level      int32
	FileName   string
	FileLine   *uint32
	Attributes map[string]tracedata.Value
}

// UpdateData merges additional attributes onto an existing span.
type UpdateData struct {
	Attributes map[string]tracedata.Value
}

// FollowsData records a causal link to another span on the connection.
type FollowsData struct {
	Follows uint64
}

// EnterData marks the span active on a thread.
type EnterData struct {
	ThreadID uint64
}

// EventData records a standalone or span-scoped log-style event.
type EventData struct {
	Target     string
	Name       string
	Level      int32
	FileName   string
	FileLine   *uint32
	Attributes map[string]tracedata.Value
}
