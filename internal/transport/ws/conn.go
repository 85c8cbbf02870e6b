// Package ws runs the bridge call protocol over a websocket to an
// out-of-process native host.
//
// Each frame is a small JSON envelope. Requests needing a reply
// (invoke_sync, load_text) carry a correlation id and block the caller
// until the matching reply frame arrives; invoke_async and signal are fire
// and forget. The native side invokes scripting-held callables with invoke
// frames, which are answered with reply frames.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/suredesigns/alier-bridge/internal/dispatch"
	"github.com/suredesigns/alier-bridge/internal/wire"
)

// Frame types of the envelope protocol.
const (
	frameInvokeSync  = "invoke_sync"
	frameInvokeAsync = "invoke_async"
	frameInvoke      = "invoke"
	frameReply       = "reply"
	frameSignal      = "signal"
	frameLoadText    = "load_text"
	frameBootstrap   = "bootstrap"
)

// envelope is one websocket frame.
type envelope struct {
	Type     string       `json:"type"`
	ID       string       `json:"id,omitempty"`
	Name     string       `json:"name,omitempty"`
	Topic    string       `json:"topic,omitempty"`
	Path     string       `json:"path,omitempty"`
	Callback *wire.Handle `json:"callback,omitempty"`
	Handle   *wire.Handle `json:"handle,omitempty"`
	// Args is the wire text of the argument list.
	Args string `json:"args,omitempty"`
	// Text carries reply payloads and loaded resources.
	Text    string `json:"text,omitempty"`
	Dispose bool   `json:"dispose,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrClosed reports operations on a closed connection.
var ErrClosed = errors.New("ws: connection closed")

// Conn implements dispatch.Transport over a websocket.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan envelope

	receiverMu sync.RWMutex
	receiver   dispatch.Receiver

	notify func(topic string)
	log    *zap.Logger

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial connects to the native host at url. Inbound invoke frames are
// delivered to receiver; inbound signal frames to notify.
func Dial(ctx context.Context, url string, receiver dispatch.Receiver, notify func(topic string), log *zap.Logger) (*Conn, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", url, err)
	}

	c := &Conn{
		ws:       conn,
		pending:  make(map[string]chan envelope),
		receiver: receiver,
		notify:   notify,
		log:      log,
		closed:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Bind installs the receiver servicing inbound invoke frames. Dialing
// with a nil receiver and binding later lets the dispatcher be built on
// top of the connection.
func (c *Conn) Bind(receiver dispatch.Receiver) {
	c.receiverMu.Lock()
	c.receiver = receiver
	c.receiverMu.Unlock()
}

// Close tears down the connection and fails every blocked round trip.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.ws.Close()

		c.pendingMu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
	})
	return err
}

// SetBootstrapHandle implements dispatch.BootstrapAware: the registration
// handle is announced to the remote host ahead of the availability signal.
func (c *Conn) SetBootstrapHandle(h wire.Handle) {
	if err := c.write(envelope{Type: frameBootstrap, Handle: &h}); err != nil {
		c.log.Error("bootstrap handle announcement failed", zap.Error(err))
	}
}

// InvokeAsync implements dispatch.Transport.
func (c *Conn) InvokeAsync(name string, callback wire.Handle, args []wire.Value) error {
	argsText, err := wire.EncodeText(wire.List(args))
	if err != nil {
		return err
	}
	return c.write(envelope{
		Type:     frameInvokeAsync,
		Name:     name,
		Callback: &callback,
		Args:     argsText,
	})
}

// InvokeSync implements dispatch.Transport. It blocks until the host's
// reply frame arrives or the connection dies.
func (c *Conn) InvokeSync(name string, args []wire.Value) (string, error) {
	argsText, err := wire.EncodeText(wire.List(args))
	if err != nil {
		return "", err
	}
	reply, err := c.roundTrip(envelope{
		Type: frameInvokeSync,
		Name: name,
		Args: argsText,
	})
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

// Signal implements dispatch.Transport.
func (c *Conn) Signal(topic string) error {
	return c.write(envelope{Type: frameSignal, Topic: topic})
}

// LoadText implements dispatch.Transport.
func (c *Conn) LoadText(path string) (string, error) {
	reply, err := c.roundTrip(envelope{Type: frameLoadText, Path: path})
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

func (c *Conn) roundTrip(env envelope) (envelope, error) {
	env.ID = uuid.NewString()

	ch := make(chan envelope, 1)
	c.pendingMu.Lock()
	c.pending[env.ID] = ch
	c.pendingMu.Unlock()

	if err := c.write(env); err != nil {
		c.drop(env.ID)
		return envelope{}, err
	}

	reply, ok := <-ch
	if !ok {
		return envelope{}, ErrClosed
	}
	if reply.Error != "" {
		return envelope{}, fmt.Errorf("ws: %s %q: %s", env.Type, env.Name, reply.Error)
	}
	return reply, nil
}

func (c *Conn) write(env envelope) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	data, err := sonic.Marshal(env)
	if err != nil {
		return fmt.Errorf("ws: encode frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) readLoop() {
	defer c.Close()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var env envelope
		if err := sonic.Unmarshal(data, &env); err != nil {
			c.log.Warn("malformed frame dropped", zap.Error(err))
			continue
		}

		switch env.Type {
		case frameReply:
			c.settle(env)
		case frameInvoke:
			go c.handleInvoke(env)
		case frameSignal:
			if c.notify != nil {
				c.notify(env.Topic)
			}
		default:
			c.log.Warn("unknown frame type", zap.String("type", env.Type))
		}
	}
}

func (c *Conn) settle(env envelope) {
	c.pendingMu.Lock()
	ch, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.pendingMu.Unlock()
	if !ok {
		c.log.Warn("reply with no pending request", zap.String("id", env.ID))
		return
	}
	ch <- env
}

// handleInvoke services a native-originated call on a scripting-held
// handle and answers with a reply frame when the request carries an id.
func (c *Conn) handleInvoke(env envelope) {
	reply := envelope{Type: frameReply, ID: env.ID}

	c.receiverMu.RLock()
	receiver := c.receiver
	c.receiverMu.RUnlock()

	switch {
	case receiver == nil:
		reply.Error = "no receiver bound"
	case env.Handle == nil:
		reply.Error = "invoke frame without a handle"
	default:
		args, err := decodeArgs(env.Args)
		if err != nil {
			reply.Error = err.Error()
			break
		}
		text, err := receiver.InvokeByHandle(*env.Handle, args, env.Dispose)
		if err != nil {
			reply.Error = err.Error()
			break
		}
		reply.Text = text
	}

	if env.ID == "" {
		if reply.Error != "" {
			c.log.Warn("unanswerable invoke failed", zap.String("error", reply.Error))
		}
		return
	}
	if err := c.write(reply); err != nil && !errors.Is(err, ErrClosed) {
		c.log.Warn("reply write failed", zap.Error(err))
	}
}

func (c *Conn) drop(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func decodeArgs(text string) ([]any, error) {
	if text == "" {
		return nil, nil
	}
	decoded, err := wire.DecodeText(text)
	if err != nil {
		return nil, err
	}
	list, ok := decoded.([]any)
	if !ok {
		return nil, fmt.Errorf("ws: argument payload is not a list: %q", text)
	}
	return list, nil
}
