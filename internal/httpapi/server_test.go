package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/neutralize/internal/bias"
	"github.com/ent0n29/neutralize/internal/config"
	"github.com/ent0n29/neutralize/internal/history"
	"github.com/ent0n29/neutralize/internal/jobdesc"
	"github.com/ent0n29/neutralize/internal/llm"
	"github.com/ent0n29/neutralize/internal/mode"
	"github.com/ent0n29/neutralize/internal/observability"
	"github.com/ent0n29/neutralize/internal/protocol"
	"github.com/ent0n29/neutralize/internal/session"
	"github.com/ent0n29/neutralize/internal/speech"
	"github.com/ent0n29/neutralize/internal/translate"
	"github.com/ent0n29/neutralize/internal/tts"
)

type fakeRecognizer struct {
	text string
	err  error
}

func (f fakeRecognizer) Name() string { return "fake" }

func (f fakeRecognizer) Recognize(context.Context, speech.Utterance, string) (string, error) {
	return f.text, f.err
}

type fakeSynth struct{}

func (fakeSynth) Name() string { return "fake" }

func (fakeSynth) Synthesize(_ context.Context, text, _ string) (tts.Audio, error) {
	return tts.Audio{Data: []byte("RIFF" + text), Format: "wav"}, nil
}

type testEnv struct {
	ts      *httptest.Server
	mock    *llm.MockBackend
	history *history.Recorder
}

func newTestServer(t *testing.T, rec speech.Recognizer) *testEnv {
	t.Helper()
	m := mode.Fixed(false)
	metrics := observability.NewMetrics("test")
	mock := llm.NewMockBackend()
	router := llm.NewRouter(llm.RouterConfig{Local: mock, Mode: m, Metrics: metrics})

	cfg := config.Config{
		SessionInactivityTimeout: 2 * time.Minute,
		JobDescMaxTokens:         500,
		JobDescTemperature:       0.4,
	}
	recorder := history.NewRecorder(history.NewInMemoryStore(10), nil)
	srv := New(Deps{
		Config:     cfg,
		Mode:       m,
		Bias:       bias.NewAnalyzer(router, bias.Config{}, nil, metrics),
		Jobs:       jobdesc.New(router),
		Translator: translate.NewService(translate.Config{Offline: translate.NewLLMTranslator(router, 0), Mode: m, Metrics: metrics}),
		Local:      []LocalModel{router},
		Recognizer: speech.NewCapturer(nil, rec, speech.DefaultListenConfig(), metrics, nil),
		Speaker:    tts.NewSpeaker(fakeSynth{}, nil, tts.SpeakerConfig{PacingPerChar: time.Millisecond}, metrics, nil),
		History:    recorder,
		Sessions:   session.NewManager(cfg.SessionInactivityTimeout),
		Metrics:    metrics,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, mock: mock, history: recorder}
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func decode(t *testing.T, res *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestLegacyBiasRoutes(t *testing.T) {
	env := newTestServer(t, fakeRecognizer{})

	res := postJSON(t, env.ts.URL+"/detect-bias", map[string]string{"text": "He is a great chairman."})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("detect status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var detected map[string]string
	decode(t, res, &detected)
	if detected["neutral_text"] != bias.LabelYes {
		t.Fatalf("neutral_text = %q, want %q", detected["neutral_text"], bias.LabelYes)
	}

	res = postJSON(t, env.ts.URL+"/correct-bias/", map[string]string{"sentence": "He is a great chairman."})
	var corrected map[string]string
	decode(t, res, &corrected)
	if corrected["corrected_sentence"] != "They is a great chairperson." {
		t.Fatalf("corrected_sentence = %q", corrected["corrected_sentence"])
	}

	res = postJSON(t, env.ts.URL+"/bias-score", map[string]string{"sentence": "The team met at noon."})
	var scored map[string]string
	decode(t, res, &scored)
	if scored["score"] != "0%" {
		t.Fatalf("score = %q, want 0%%", scored["score"])
	}

	records, err := env.history.Recent(context.Background(), history.Query{})
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("history records = %d, want 3", len(records))
	}
}

func TestAnalyzeRejectsEmptySentence(t *testing.T) {
	env := newTestServer(t, fakeRecognizer{})
	res := postJSON(t, env.ts.URL+"/v1/bias/analyze", map[string]string{"sentence": "   "})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestJobDescriptionDefaultsAndRange(t *testing.T) {
	env := newTestServer(t, fakeRecognizer{})

	res := postJSON(t, env.ts.URL+"/v1/jobs/description", map[string]any{"title": "Site Engineer"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var desc jobdesc.Description
	decode(t, res, &desc)
	if desc.Title != "Site Engineer" || !strings.Contains(desc.Text, "Site Engineer") || desc.Backend != "mock" {
		t.Fatalf("unexpected description: %+v", desc)
	}

	res = postJSON(t, env.ts.URL+"/v1/jobs/description", map[string]any{"title": "Site Engineer", "max_tokens": 5000})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("out of range status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestLocalModelCloseAndReopen(t *testing.T) {
	env := newTestServer(t, fakeRecognizer{})

	res := postJSON(t, env.ts.URL+"/v1/backend/local/close", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("close status = %d", res.StatusCode)
	}
	if !env.mock.Closed() {
		t.Fatalf("mock backend still open after close")
	}

	res = postJSON(t, env.ts.URL+"/v1/jobs/description", map[string]any{"title": "Nurse"})
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("closed model status = %d, want %d", res.StatusCode, http.StatusServiceUnavailable)
	}

	res = postJSON(t, env.ts.URL+"/v1/backend/local/reopen", nil)
	if res.StatusCode != http.StatusOK || env.mock.Closed() {
		t.Fatalf("reopen status = %d, closed = %v", res.StatusCode, env.mock.Closed())
	}
}

func TestTranslateAndLanguages(t *testing.T) {
	env := newTestServer(t, fakeRecognizer{})

	res := postJSON(t, env.ts.URL+"/v1/translate", map[string]string{"text": "Good morning", "source": "English", "target": "Hindi"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("translate status = %d", res.StatusCode)
	}
	var out translate.Result
	decode(t, res, &out)
	if out.Text != "Good morning" || out.Source != "en" || out.Target != "hi" {
		t.Fatalf("unexpected translation: %+v", out)
	}

	res = postJSON(t, env.ts.URL+"/v1/translate", map[string]string{"text": "Hi", "target": "Klingon"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unsupported target status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}

	langRes, err := http.Get(env.ts.URL + "/v1/languages")
	if err != nil {
		t.Fatalf("GET languages error = %v", err)
	}
	defer langRes.Body.Close()
	var langs struct {
		Languages []map[string]any  `json:"languages"`
		Defaults  map[string]string `json:"defaults"`
	}
	decode(t, langRes, &langs)
	if len(langs.Languages) != 6 || langs.Defaults["participant2"] != "Telugu" {
		t.Fatalf("unexpected languages payload: %+v", langs)
	}
}

func TestRecognizeOutcomes(t *testing.T) {
	cases := []struct {
		name string
		rec  fakeRecognizer
		want int
	}{
		{"recognized", fakeRecognizer{text: "hello"}, http.StatusOK},
		{"not understood", fakeRecognizer{}, http.StatusUnprocessableEntity},
		{"unavailable", fakeRecognizer{err: speech.ErrServiceUnavailable}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestServer(t, tc.rec)
			res, err := http.Post(env.ts.URL+"/v1/speech/recognize?language=en&sample_rate=8000", "application/octet-stream", bytes.NewReader(make([]byte, 320)))
			if err != nil {
				t.Fatalf("POST recognize error = %v", err)
			}
			defer res.Body.Close()
			if res.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d", res.StatusCode, tc.want)
			}
		})
	}
}

func TestSynthesizeReturnsAudio(t *testing.T) {
	env := newTestServer(t, fakeRecognizer{})
	res := postJSON(t, env.ts.URL+"/v1/speech/synthesize", map[string]string{"text": "hello", "language": "ja"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if got := res.Header.Get("Content-Type"); got != "audio/wav" {
		t.Fatalf("Content-Type = %q, want audio/wav", got)
	}
	if got := res.Header.Get("X-Pacing-Ms"); got != "5" {
		t.Fatalf("X-Pacing-Ms = %q, want 5", got)
	}
}

func createSession(t *testing.T, env *testEnv, body map[string]string) session.CreateResponse {
	t.Helper()
	res := postJSON(t, env.ts.URL+"/v1/interpreter/session", body)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
	var created session.CreateResponse
	decode(t, res, &created)
	if created.SessionID == "" {
		t.Fatalf("missing session_id in create response: %+v", created)
	}
	return created
}

func TestCreateAndEndSession(t *testing.T) {
	env := newTestServer(t, fakeRecognizer{})
	created := createSession(t, env, map[string]string{"participant1": "Japanese", "participant2": "ko"})
	if created.Participant1 != "Japanese" || created.Participant2 != "Korean" {
		t.Fatalf("participants = %q/%q", created.Participant1, created.Participant2)
	}

	res := postJSON(t, env.ts.URL+"/v1/interpreter/session/"+created.SessionID+"/end", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var ended session.Session
	decode(t, res, &ended)
	if ended.Status != session.StatusEnded {
		t.Fatalf("status = %q, want ended", ended.Status)
	}

	res = postJSON(t, env.ts.URL+"/v1/interpreter/session", map[string]string{"participant1": "Klingon"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid language status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestSessionWebSocketTurn(t *testing.T) {
	env := newTestServer(t, fakeRecognizer{text: "good morning"})
	created := createSession(t, env, nil)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/interpreter/session/ws?session_id=" + created.SessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	pcm := base64.StdEncoding.EncodeToString(make([]byte, 640))
	for _, msg := range []protocol.ClientAudioChunk{
		{Type: protocol.TypeClientAudioChunk, SessionID: created.SessionID, Speaker: 1, Seq: 1, PCM16Base64: pcm, SampleRate: 16000},
		{Type: protocol.TypeClientAudioChunk, SessionID: created.SessionID, Speaker: 1, Seq: 2, SampleRate: 16000, Commit: true},
	} {
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("WriteJSON() error = %v", err)
		}
	}

	seen := map[protocol.MessageType]map[string]any{}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for seen[protocol.TypeSynthesizedAudio] == nil {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v (seen %v)", err, seen)
		}
		typ, _ := msg["type"].(string)
		seen[protocol.MessageType(typ)] = msg
	}

	if got := seen[protocol.TypeSpeechRecognized]["text"]; got != "good morning" {
		t.Fatalf("recognized text = %v", got)
	}
	tr := seen[protocol.TypeTranslation]
	if tr["source"] != "en" || tr["target"] != "te" || tr["text"] != "good morning" {
		t.Fatalf("unexpected translation message: %v", tr)
	}

	if err := conn.WriteJSON(protocol.ClientControl{Type: protocol.TypeClientControl, SessionID: created.SessionID, Action: protocol.ActionStop}); err != nil {
		t.Fatalf("WriteJSON(stop) error = %v", err)
	}
	// The stop arrives while the synthesized audio is still pacing; the turn must still count.
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v, want interpreter_stopped", err)
		}
		if msg["type"] == string(protocol.TypeSystemEvent) && msg["code"] == "interpreter_stopped" {
			break
		}
	}

	res, err := http.Get(env.ts.URL + "/v1/interpreter/session/" + created.SessionID)
	if err != nil {
		t.Fatalf("GET session error = %v", err)
	}
	var got struct {
		Session session.Session `json:"session"`
	}
	decode(t, res, &got)
	res.Body.Close()
	if got.Session.Turns != 1 {
		t.Fatalf("session turns = %d, want 1", got.Session.Turns)
	}
	records, err := env.history.Recent(context.Background(), history.Query{Kind: history.KindInterpreter})
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("interpreter history records = %d, want 1", len(records))
	}
}

func TestSessionWebSocketRejectsImplausibleSampleRate(t *testing.T) {
	env := newTestServer(t, fakeRecognizer{text: "hello"})
	created := createSession(t, env, nil)

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/interpreter/session/ws?session_id=" + created.SessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	chunk := protocol.ClientAudioChunk{
		Type:        protocol.TypeClientAudioChunk,
		SessionID:   created.SessionID,
		Speaker:     1,
		Seq:         1,
		PCM16Base64: base64.StdEncoding.EncodeToString(make([]byte, 1024)),
		SampleRate:  1 << 30,
	}
	if err := conn.WriteJSON(chunk); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v, want invalid_client_message", err)
		}
		if msg["type"] == string(protocol.TypeErrorEvent) {
			if msg["code"] != "invalid_client_message" {
				t.Fatalf("error code = %v, want invalid_client_message", msg["code"])
			}
			return
		}
	}
}

func TestSessionWebSocketRequiresKnownSession(t *testing.T) {
	env := newTestServer(t, fakeRecognizer{})
	res, err := http.Get(env.ts.URL + "/v1/interpreter/session/ws?session_id=missing")
	if err != nil {
		t.Fatalf("GET ws error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	env := newTestServer(t, fakeRecognizer{})
	res, err := http.Get(env.ts.URL + "/v1/history?limit=abc")
	if err != nil {
		t.Fatalf("GET history error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestOriginPolicy(t *testing.T) {
	srv := New(Deps{})
	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/v1/interpreter/session/ws", nil)
	req.Header.Set("Origin", "http://evil.example")
	if srv.upgrader.CheckOrigin(req) {
		t.Fatalf("cross-origin request accepted")
	}
	req.Header.Set("Origin", "http://localhost:8080")
	if !srv.upgrader.CheckOrigin(req) {
		t.Fatalf("same-origin request rejected")
	}
}
