package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/neutralize/internal/reliability"
)

// LlamaConfig configures the llama.cpp server backend.
type LlamaConfig struct {
	// ServerBinary is spawned on first use unless URL points at a running server.
	ServerBinary string
	URL          string
	ModelPath    string
	ContextSize  int
	Threads      int
	Mlock        bool
	F16KV        bool
	StartTimeout time.Duration
}

// LlamaBackend serves GGUF weights through llama.cpp's HTTP server. The process is started
// lazily and released by Close; Reopen allows the next call to start it again.
type LlamaBackend struct {
	cfg    LlamaConfig
	client *http.Client

	mu      sync.Mutex
	proc    *llamaProcess
	baseURL string
	closed  bool
	// starting is non-nil while a spawned server loads; it is closed when the attempt ends.
	starting    chan struct{}
	cancelStart context.CancelFunc
}

// llamaProcess is a spawned llama-server and the channel closed once it exits.
type llamaProcess struct {
	cmd     *exec.Cmd
	exited  chan struct{}
	waitErr error
}

func (p *llamaProcess) stop() {
	_ = p.cmd.Process.Signal(os.Interrupt)
	select {
	case <-time.After(2 * time.Second):
		_ = p.cmd.Process.Kill()
		<-p.exited
	case <-p.exited:
	}
}

func NewLlamaBackend(cfg LlamaConfig) (*LlamaBackend, error) {
	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if cfg.URL == "" {
		modelPath := strings.TrimSpace(cfg.ModelPath)
		if modelPath == "" {
			return nil, fmt.Errorf("LOCAL_MODEL_PATH is required")
		}
		if !filepath.IsAbs(modelPath) {
			if wd, err := os.Getwd(); err == nil {
				modelPath = filepath.Join(wd, modelPath)
			}
		}
		if _, err := os.Stat(modelPath); err != nil {
			return nil, fmt.Errorf("local model not found: %s", modelPath)
		}
		cfg.ModelPath = modelPath
		if strings.TrimSpace(cfg.ServerBinary) == "" {
			cfg.ServerBinary = "llama-server"
		}
	}
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = 2048
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 90 * time.Second
	}
	return &LlamaBackend{
		cfg:     cfg,
		client:  &http.Client{},
		baseURL: cfg.URL,
	}, nil
}

func (b *LlamaBackend) Name() string { return "llama" }

func (b *LlamaBackend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type llamaCompletionRequest struct {
	Prompt      string  `json:"prompt"`
	NPredict    int     `json:"n_predict"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
}

type llamaCompletionResponse struct {
	Content string `json:"content"`
}

func (b *LlamaBackend) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	baseURL, err := b.ensureStarted(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(llamaCompletionRequest{
		Prompt:      prompt,
		NPredict:    opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("llama-server: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("llama-server: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &reliability.StatusError{
			Backend: b.Name(),
			Code:    resp.StatusCode,
			Err:     errors.New(strings.TrimSpace(string(raw))),
		}
	}
	var out llamaCompletionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("llama-server: decode response: %w", err)
	}
	if strings.TrimSpace(out.Content) == "" {
		return "", ErrNoResponse
	}
	return out.Content, nil
}

// ensureStarted returns the server URL, spawning llama-server when needed. The lock is
// not held while the model loads, so Closed and Close stay responsive.
func (b *LlamaBackend) ensureStarted(ctx context.Context) (string, error) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return "", ErrModelClosed
		}
		if b.baseURL != "" {
			url := b.baseURL
			b.mu.Unlock()
			return url, nil
		}
		if wait := b.starting; wait != nil {
			b.mu.Unlock()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-wait:
			}
			continue
		}
		startCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		b.starting, b.cancelStart = done, cancel
		b.mu.Unlock()

		proc, url, err := b.launch(startCtx)
		cancel()

		b.mu.Lock()
		b.starting, b.cancelStart = nil, nil
		close(done)
		closed := b.closed
		if err == nil && !closed {
			b.proc, b.baseURL = proc, url
		}
		b.mu.Unlock()

		switch {
		case closed:
			if proc != nil {
				proc.stop()
			}
			return "", ErrModelClosed
		case err != nil:
			return "", err
		}
		return url, nil
	}
}

func (b *LlamaBackend) serverArgs(port int) []string {
	args := []string{
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
		"-m", b.cfg.ModelPath,
		"-c", strconv.Itoa(b.cfg.ContextSize),
	}
	if b.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(b.cfg.Threads))
	}
	if b.cfg.Mlock {
		args = append(args, "--mlock")
	}
	if b.cfg.F16KV {
		args = append(args, "--cache-type-k", "f16", "--cache-type-v", "f16")
	}
	return args
}

// launch spawns llama-server and polls /health until it is ready, the process exits,
// ctx ends or StartTimeout passes.
func (b *LlamaBackend) launch(ctx context.Context) (*llamaProcess, string, error) {
	path, err := exec.LookPath(b.cfg.ServerBinary)
	if err != nil {
		return nil, "", fmt.Errorf("llama.cpp server not found (%s): %w", b.cfg.ServerBinary, err)
	}
	port, err := pickFreePort()
	if err != nil {
		return nil, "", err
	}

	tail := newTailBuffer(24 << 10)
	cmd := exec.Command(path, b.serverArgs(port)...)
	cmd.Stdout = tail
	cmd.Stderr = tail
	cmd.WaitDelay = 2 * time.Second
	if err := cmd.Start(); err != nil {
		return nil, "", fmt.Errorf("start llama-server: %w", err)
	}
	proc := &llamaProcess{cmd: cmd, exited: make(chan struct{})}
	go func() {
		proc.waitErr = cmd.Wait()
		close(proc.exited)
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	deadline := time.NewTimer(b.cfg.StartTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(150 * time.Millisecond)
	defer tick.Stop()
	for {
		if b.healthy(ctx, baseURL) {
			return proc, baseURL, nil
		}
		select {
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			<-proc.exited
			return nil, "", ctx.Err()
		case <-proc.exited:
			return nil, "", fmt.Errorf("llama-server exited: %v: %s", proc.waitErr, tail.String())
		case <-deadline.C:
			_ = cmd.Process.Kill()
			<-proc.exited
			msg := tail.String()
			if msg == "" {
				msg = "llama-server did not become ready"
			}
			return nil, "", fmt.Errorf("%s", msg)
		case <-tick.C:
		}
	}
}

func (b *LlamaBackend) healthy(ctx context.Context, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close stops a spawned server, or abandons one still loading, and marks the backend
// closed. An attached server (URL set) is left running but is no longer called.
func (b *LlamaBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.cancelStart != nil {
		b.cancelStart()
	}
	proc := b.proc
	b.proc = nil
	if proc != nil {
		b.baseURL = ""
	}
	b.mu.Unlock()

	if proc != nil {
		proc.stop()
	}
	return nil
}

// Reopen clears the closed state; a spawned server starts again on the next call.
func (b *LlamaBackend) Reopen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = false
	return nil
}

func pickFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok || addr == nil || addr.Port == 0 {
		return 0, fmt.Errorf("failed to allocate port")
	}
	return addr.Port, nil
}

type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 16 << 10
	}
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
