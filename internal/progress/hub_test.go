package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/conneroisu/casefiler/internal/batch"
	"github.com/conneroisu/casefiler/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, ctx context.Context, url string, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	opts := &websocket.DialOptions{}
	if origin != "" {
		opts.HTTPHeader = http.Header{"Origin": []string{origin}}
	}
	return websocket.Dial(ctx, url, opts)
}

func TestAllowedOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"loopback default", nil, "http://localhost:8080", true},
		{"loopback ip default", nil, "http://127.0.0.1:3000", true},
		{"remote default", nil, "http://evil.example", false},
		{"listed", []string{"https://ops.example"}, "https://ops.example", true},
		{"listed trailing slash", []string{"https://ops.example/"}, "https://ops.example", true},
		{"not listed", []string{"https://ops.example"}, "http://localhost:8080", false},
		{"wildcard", []string{"*"}, "http://anything.example", true},
		{"garbage", nil, "::not a url", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub(tt.allowed, nil)
			defer h.Shutdown(context.Background())
			assert.Equal(t, tt.want, h.AllowedOrigin(tt.origin))
		})
	}
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	defer hub.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := dial(t, ctx, wsURL(srv), "")
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	testutils.WaitFor(t, 2*time.Second, func() bool { return hub.Clients() == 1 }, "client registered")

	hub.Publish(ctx, batch.Event{Type: batch.EventJobStarted, JobID: "j1", JobName: "Job 1"})

	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var got batch.Event
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, batch.EventJobStarted, got.Type)
	assert.Equal(t, "j1", got.JobID)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub([]string{"https://ops.example"}, nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	defer hub.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := dial(t, ctx, wsURL(srv), "https://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, hub.Clients())
}

func TestHubControlMessages(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	defer hub.Shutdown(context.Background())

	actions := make(chan string, 4)
	hub.OnControl(func(action string) { actions <- action })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := dial(t, ctx, wsURL(srv), "")
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not json")))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"action":"pause"}`)))
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"action":"resume"}`)))

	for _, want := range []string{"pause", "resume"} {
		select {
		case got := <-actions:
			assert.Equal(t, want, got)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestControlAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		remote  string
		origin  string
		want    bool
	}{
		{"loopback v4", nil, "127.0.0.1:5000", "", true},
		{"loopback v6", nil, "[::1]:5000", "", true},
		{"remote without origin", nil, "203.0.113.5:5000", "", false},
		{"remote with loopback origin", nil, "203.0.113.5:5000", "http://localhost:8080", false},
		{"remote with listed origin", []string{"https://ops.example"}, "203.0.113.5:5000", "https://ops.example", true},
		{"remote with wildcard", []string{"*"}, "203.0.113.5:5000", "https://any.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHub(tt.allowed, nil)
			defer h.Shutdown(context.Background())

			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.RemoteAddr = tt.remote
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, h.ControlAllowed(r))
		})
	}
}

func TestHubIgnoresControlFromUntrustedClient(t *testing.T) {
	h := NewHub(nil, nil)
	defer h.Shutdown(context.Background())

	var got []string
	h.OnControl(func(action string) { got = append(got, action) })

	h.handleMessage(&client{addr: "203.0.113.5:5000"}, []byte(`{"action":"pause"}`))
	assert.Empty(t, got)

	h.handleMessage(&client{addr: "127.0.0.1:5000", control: true}, []byte(`{"action":"pause"}`))
	assert.Equal(t, []string{"pause"}, got)
}

func TestHubClientDisconnect(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()
	defer hub.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := dial(t, ctx, wsURL(srv), "")
	require.NoError(t, err)
	testutils.WaitFor(t, 2*time.Second, func() bool { return hub.Clients() == 1 }, "client registered")

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	testutils.WaitFor(t, 2*time.Second, func() bool { return hub.Clients() == 0 }, "client removed")
}

func TestHubShutdown(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := dial(t, ctx, wsURL(srv), "")
	require.NoError(t, err)
	testutils.WaitFor(t, 2*time.Second, func() bool { return hub.Clients() == 1 }, "client registered")

	require.NoError(t, hub.Shutdown(ctx))
	require.NoError(t, hub.Shutdown(ctx), "shutdown is idempotent")
	assert.Zero(t, hub.Clients())

	_, _, err = conn.Read(ctx)
	assert.Error(t, err, "client sees the close")

	assert.Error(t, hub.Broadcast(map[string]string{"k": "v"}))

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServerServe(t *testing.T) {
	hub := NewHub(nil, nil)
	s, err := Listen("127.0.0.1:0", hub)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	var status struct {
		Clients int `json:"clients"`
	}
	testutils.WaitFor(t, 2*time.Second, func() bool {
		resp, err := http.Get("http://" + s.Addr() + "/status")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&status) == nil
	}, "status endpoint answers")
	assert.Zero(t, status.Clients)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}
