package loopback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suredesigns/alier-bridge/internal/dispatch"
	"github.com/suredesigns/alier-bridge/internal/handle"
	"github.com/suredesigns/alier-bridge/internal/wire"
)

func TestInvokeSyncEnvelope(t *testing.T) {
	h := NewHost(nil)
	h.Register("add", false, func(args []any) (any, error) {
		a, _ := args[0].(float64)
		b, _ := args[1].(float64)
		return a + b, nil
	})

	text, err := h.InvokeSync("add", []wire.Value{wire.Number(2), wire.Number(3)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result": 5}`, text)
}

func TestInvokeSyncErrorEnvelope(t *testing.T) {
	h := NewHost(nil)
	h.Register("fail", false, func([]any) (any, error) {
		return nil, errors.New("boom")
	})

	text, err := h.InvokeSync("fail", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": {"message": "boom"}}`, text)
}

func TestInvokeSyncUnknownFunction(t *testing.T) {
	h := NewHost(nil)

	text, err := h.InvokeSync("missing", nil)
	require.NoError(t, err)
	assert.Contains(t, text, "missing")
	assert.Contains(t, text, "error")
}

func TestInvokeAsyncDeliversThroughCallback(t *testing.T) {
	h := NewHost(nil)
	h.Register("greet", true, func(args []any) (any, error) {
		name, _ := args[0].(string)
		return "hello " + name, nil
	})

	d := dispatch.New(h, handle.New())
	h.Bind(d, nil)

	fut, err := d.CallAsync("greet", "bridge")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := fut.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello bridge", got)
}

func TestInvokeAsyncUnknownFunctionRejects(t *testing.T) {
	h := NewHost(nil)
	d := dispatch.New(h, handle.New())
	h.Bind(d, nil)

	fut, err := d.CallAsync("nope")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = fut.Await(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestLoadText(t *testing.T) {
	h := NewHost(nil)
	h.AddScript("main.js", "export default 1")

	text, err := h.LoadText("main.js")
	require.NoError(t, err)
	assert.Equal(t, "export default 1", text)

	_, err = h.LoadText("other.js")
	assert.Error(t, err)
}

func TestRegistrationRequiresBinding(t *testing.T) {
	h := NewHost(nil)
	h.Register("f", false, func([]any) (any, error) { return nil, nil })

	// Announcing availability without a bound receiver is a wiring bug
	// and must surface, not silently no-op.
	err := h.Signal("FUNCTION_REGISTRATION_AVAILABLE")
	assert.Error(t, err)
}
