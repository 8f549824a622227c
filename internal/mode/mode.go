package mode

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"
)

// Prober reports whether the outside network is reachable.
type Prober interface {
	Probe(ctx context.Context) bool
}

// TCPProbe opens and immediately closes a TCP connection to Addr.
type TCPProbe struct {
	Addr    string
	Timeout time.Duration
}

func (p TCPProbe) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// ProbeFunc adapts a function to Prober.
type ProbeFunc func(ctx context.Context) bool

func (f ProbeFunc) Probe(ctx context.Context) bool { return f(ctx) }

// Online is the sole rule for online mode.
func Online(keyPresent, probeOK bool) bool {
	return keyPresent && probeOK
}

// Status is a point-in-time view of the mode decision.
type Status struct {
	Online         bool      `json:"online"`
	KeyPresent     bool      `json:"key_present"`
	ProbeSucceeded bool      `json:"probe_succeeded"`
	DisabledReason string    `json:"disabled_reason,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
}

// Mode holds the process-wide online flag. The probe runs once in Detect and again only on Refresh.
type Mode struct {
	mu       sync.RWMutex
	prober   Prober
	apiKey   string
	status   Status
	disabled string
	pinned   bool
}

// Detect performs the single startup probe.
func Detect(ctx context.Context, apiKey string, prober Prober) *Mode {
	m := &Mode{prober: prober, apiKey: strings.TrimSpace(apiKey)}
	m.Refresh(ctx)
	return m
}

// Fixed returns a Mode pinned to a value, without probing.
func Fixed(online bool) *Mode {
	return &Mode{pinned: true, status: Status{Online: online, KeyPresent: online, ProbeSucceeded: online, CheckedAt: time.Now().UTC()}}
}

func (m *Mode) Online() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Online
}

func (m *Mode) Status() Status {
	if m == nil {
		return Status{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Disable forces offline mode, for example when a cloud client rejects the configured key.
func (m *Mode) Disable(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled = reason
	m.status.Online = false
	m.status.DisabledReason = reason
}

// Refresh re-runs the probe. The probe is skipped when no key is configured.
func (m *Mode) Refresh(ctx context.Context) Status {
	if m.pinned {
		return m.Status()
	}
	keyPresent := m.apiKey != ""
	probeOK := false
	if keyPresent && m.prober != nil {
		probeOK = m.prober.Probe(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = Status{
		Online:         Online(keyPresent, probeOK) && m.disabled == "",
		KeyPresent:     keyPresent,
		ProbeSucceeded: probeOK,
		DisabledReason: m.disabled,
		CheckedAt:      time.Now().UTC(),
	}
	return m.status
}
