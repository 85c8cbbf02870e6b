package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suredesigns/alier-bridge/internal/dispatch"
	"github.com/suredesigns/alier-bridge/internal/handle"
	"github.com/suredesigns/alier-bridge/internal/wire"
)

// fakeHost is an in-test native host speaking the envelope protocol.
type fakeHost struct {
	t *testing.T

	mu      sync.Mutex
	conn    *websocket.Conn
	signals []string
}

func newFakeHost(t *testing.T) (*fakeHost, string) {
	t.Helper()
	h := &fakeHost{t: t}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.mu.Lock()
		h.conn = conn
		h.mu.Unlock()
		h.serve(conn)
	}))
	t.Cleanup(srv.Close)

	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (h *fakeHost) serve(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := sonic.Unmarshal(data, &env); err != nil {
			continue
		}

		switch env.Type {
		case frameInvokeSync:
			reply := envelope{Type: frameReply, ID: env.ID}
			switch env.Name {
			case "add":
				reply.Text = `{"result": 42}`
			case "explode":
				reply.Error = "host refused"
			default:
				reply.Error = "unknown function " + env.Name
			}
			h.send(conn, reply)
		case frameInvokeAsync:
			// Settle the callback with a success payload, then with an
			// id-less invoke to exercise the unanswerable path.
			payload, _ := wire.EncodeText(wire.List([]wire.Value{
				wire.Map(map[string]wire.Value{"result": wire.String("done")}),
			}))
			h.send(conn, envelope{
				Type:    frameInvoke,
				Handle:  env.Callback,
				Args:    payload,
				Dispose: true,
			})
		case frameLoadText:
			h.send(conn, envelope{Type: frameReply, ID: env.ID, Text: "loaded:" + env.Path})
		case frameSignal:
			h.mu.Lock()
			h.signals = append(h.signals, env.Topic)
			h.mu.Unlock()
		}
	}
}

func (h *fakeHost) send(conn *websocket.Conn, env envelope) {
	data, err := sonic.Marshal(env)
	require.NoError(h.t, err)
	h.mu.Lock()
	defer h.mu.Unlock()
	require.NoError(h.t, conn.WriteMessage(websocket.TextMessage, data))
}

func (h *fakeHost) signalAt(i int) string {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		n := len(h.signals)
		var s string
		if n > i {
			s = h.signals[i]
		}
		h.mu.Unlock()
		if n > i {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatalf("no signal at index %d", i)
	return ""
}

func (h *fakeHost) pushSignal(topic string) {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()
	require.NotNil(h.t, conn)
	h.send(conn, envelope{Type: frameSignal, Topic: topic})
}

func dialTest(t *testing.T, url string, receiver dispatch.Receiver, notify func(string)) *Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := Dial(ctx, url, receiver, notify, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestInvokeSyncRoundTrip(t *testing.T) {
	_, url := newFakeHost(t)
	conn := dialTest(t, url, nil, nil)

	text, err := conn.InvokeSync("add", []wire.Value{wire.Number(40), wire.Number(2)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result": 42}`, text)
}

func TestInvokeSyncHostError(t *testing.T) {
	_, url := newFakeHost(t)
	conn := dialTest(t, url, nil, nil)

	_, err := conn.InvokeSync("explode", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host refused")
}

func TestInvokeAsyncSettlesCallback(t *testing.T) {
	_, url := newFakeHost(t)

	reg := handle.New()
	conn := dialTest(t, url, nil, nil)
	d := dispatch.New(conn, reg)
	conn.Bind(d)

	fut, err := d.CallAsync("work")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := fut.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "done", got)

	// The host asked for disposal, so the settlement handle is gone.
	assert.Equal(t, 0, reg.Len())
}

func TestSignalReachesHost(t *testing.T) {
	host, url := newFakeHost(t)
	conn := dialTest(t, url, nil, nil)

	require.NoError(t, conn.Signal("PROLOGUE_COMPLETE"))
	assert.Equal(t, "PROLOGUE_COMPLETE", host.signalAt(0))
}

func TestInboundSignalNotifies(t *testing.T) {
	host, url := newFakeHost(t)

	got := make(chan string, 1)
	conn := dialTest(t, url, nil, func(topic string) { got <- topic })

	// Prime the server side connection.
	require.NoError(t, conn.Signal("hello"))
	host.signalAt(0)

	host.pushSignal("FUNCTION_REGISTRATION_COMPLETE")
	select {
	case topic := <-got:
		assert.Equal(t, "FUNCTION_REGISTRATION_COMPLETE", topic)
	case <-time.After(2 * time.Second):
		t.Fatal("signal never delivered")
	}
}

func TestLoadText(t *testing.T) {
	_, url := newFakeHost(t)
	conn := dialTest(t, url, nil, nil)

	text, err := conn.LoadText("app/main.js")
	require.NoError(t, err)
	assert.Equal(t, "loaded:app/main.js", text)
}

func TestClosedConnectionFailsCalls(t *testing.T) {
	_, url := newFakeHost(t)
	conn := dialTest(t, url, nil, nil)
	require.NoError(t, conn.Close())

	_, err := conn.InvokeSync("add", nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, conn.Signal("x"), ErrClosed)
}
