package mode

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestOnlineIsKeyAndProbe(t *testing.T) {
	for _, key := range []bool{false, true} {
		for _, probe := range []bool{false, true} {
			if got, want := Online(key, probe), key && probe; got != want {
				t.Fatalf("Online(%v, %v) = %v, want %v", key, probe, got, want)
			}
		}
	}
}

func TestDetectSkipsProbeWithoutKey(t *testing.T) {
	calls := 0
	m := Detect(context.Background(), "   ", ProbeFunc(func(context.Context) bool {
		calls++
		return true
	}))
	if m.Online() {
		t.Fatalf("Online() = true without key")
	}
	if calls != 0 {
		t.Fatalf("probe calls = %d, want 0", calls)
	}
	if m.Status().KeyPresent {
		t.Fatalf("KeyPresent = true for blank key")
	}
}

func TestDetectProbesOnce(t *testing.T) {
	calls := 0
	m := Detect(context.Background(), "key", ProbeFunc(func(context.Context) bool {
		calls++
		return true
	}))
	_ = m.Online()
	_ = m.Online()
	if calls != 1 {
		t.Fatalf("probe calls = %d, want 1", calls)
	}
	if !m.Online() {
		t.Fatalf("Online() = false, want true")
	}

	m.Disable("cloud client rejected key")
	if m.Online() {
		t.Fatalf("Online() after Disable = true")
	}
	st := m.Refresh(context.Background())
	if st.Online || st.DisabledReason == "" {
		t.Fatalf("Refresh() after Disable = %+v, want offline with reason", st)
	}
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := ln.Addr().String()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	if !(TCPProbe{Addr: addr, Timeout: time.Second}).Probe(context.Background()) {
		t.Fatalf("Probe(listening) = false, want true")
	}
	_ = ln.Close()
	if (TCPProbe{Addr: addr, Timeout: 200 * time.Millisecond}).Probe(context.Background()) {
		t.Fatalf("Probe(closed) = true, want false")
	}
}

func TestFixed(t *testing.T) {
	m := Fixed(true)
	if !m.Online() {
		t.Fatalf("Fixed(true).Online() = false")
	}
	if !m.Refresh(context.Background()).Online {
		t.Fatalf("Fixed(true) lost its value on Refresh")
	}
	var nilMode *Mode
	if nilMode.Online() {
		t.Fatalf("nil Mode online")
	}
}
