// Command tracehub-loadgen is a manual test harness producer: it dials
// a running tracehub-daemon's wire ingress and drives a handful of
// synthetic spans and events through it, the way a hand-rolled smoke
// client would exercise any other line-protocol service. It speaks the
// exact framing internal/ingest/wire decodes, so it doubles as a
// worked example of the wire protocol for anything else that wants to
// produce against the daemon.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"brokle-tracehub/internal/ingest/wire"
	"brokle-tracehub/internal/tracedata"
)

func main() {
	addr := flag.String("addr", "localhost:8765", "wire ingress address")
	spans := flag.Int("spans", 20, "number of spans to emit")
	events := flag.Int("events", 40, "number of bare events to emit")
	rate := flag.Duration("rate", 5*time.Millisecond, "delay between messages")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("tracehub-loadgen: dial %s: %v", *addr, err)
	}
	defer conn.Close()

	seed := rand.New(rand.NewSource(time.Now().UnixNano()))

	hostname, _ := os.Hostname()
	handshake := wire.Handshake{Attributes: map[string]tracedata.Value{
		"service.name": tracedata.String("tracehub-loadgen"),
		"host.name":    tracedata.String(hostname),
	}}
	if err := wire.WriteFrame(conn, wire.EncodeHandshake(handshake)); err != nil {
		log.Fatalf("tracehub-loadgen: write handshake: %v", err)
	}

	now := uint64(time.Now().UnixMicro())
	sent := 0
	emit := func(msg wire.Message) {
		if err := wire.WriteFrame(conn, wire.EncodeMessage(msg)); err != nil {
			log.Fatalf("tracehub-loadgen: write message: %v", err)
		}
		sent++
		time.Sleep(*rate)
	}

	for i := 0; i < *spans; i++ {
		spanID := uint64(i + 1)
		ts := now + uint64(i)*1000

		emit(wire.Message{
			Timestamp: ts,
			SpanID:    &spanID,
			Kind:      wire.MessageCreate,
			Create: &wire.CreateData{
				Target: "loadgen",
				Name:   fmt.Sprintf("span-%d", i),
				Level:  2, // info, tracing-convention
				Attributes: map[string]tracedata.Value{
					"iteration": tracedata.U64(uint64(i)),
				},
			},
		})

		threadID := uint64(seed.Intn(4))
		emit(wire.Message{Timestamp: ts + 10, SpanID: &spanID, Kind: wire.MessageEnter, Enter: &wire.EnterData{ThreadID: threadID}})
		emit(wire.Message{Timestamp: ts + 100, SpanID: &spanID, Kind: wire.MessageExit})
		emit(wire.Message{Timestamp: ts + 110, SpanID: &spanID, Kind: wire.MessageClose})
	}

	for i := 0; i < *events; i++ {
		ts := now + uint64(*spans)*1000 + uint64(i)*50
		emit(wire.Message{
			Timestamp: ts,
			Kind:      wire.MessageEvent,
			Event: &wire.EventData{
				Target: "loadgen",
				Name:   "tick",
				Level:  2,
				Attributes: map[string]tracedata.Value{
					"seq": tracedata.U64(uint64(i)),
				},
			},
		})
	}

	log.Printf("tracehub-loadgen: sent %d messages to %s", sent, *addr)
}
