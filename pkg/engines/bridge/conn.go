package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// ErrClosed is returned by calls on a connection whose peer went away.
var ErrClosed = errors.New("bridge: connection closed")

// Handler serves messages initiated by the peer. Requests are handled on
// their own goroutine; notifications are handled in arrival order on the
// read loop and their result is discarded.
type Handler func(ctx context.Context, method string, params json.RawMessage) (any, error)

// Conn is one end of a Content-Length framed JSON-RPC stream.
type Conn struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan *Message
	done    chan struct{}
	err     error
}

// NewConn creates a connection reading from r and writing to w.
// Run must be called to start processing incoming messages.
func NewConn(r io.Reader, w io.Writer, h Handler, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Conn{
		reader:  bufio.NewReader(r),
		writer:  w,
		handler: h,
		logger:  logger,
		pending: make(map[int64]chan *Message),
		done:    make(chan struct{}),
	}
}

// Run reads messages until the stream ends or ctx is cancelled. Pending
// calls fail with ErrClosed once it returns.
func (c *Conn) Run(ctx context.Context) error {
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			c.setErr(ctx.Err())
			return ctx.Err()
		default:
		}

		msg, err := c.readMessage()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			c.setErr(err)
			return err
		}
		c.dispatch(ctx, msg)
	}
}

// Done is closed when Run returns.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the error that stopped the read loop, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Call sends a request and decodes the response into result, which may be
// nil. Error responses are mapped back to engine errors where possible.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	ch := make(chan *Message, 1)
	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		return ErrClosed
	default:
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	raw := json.RawMessage(strconv.FormatInt(id, 10))
	msg := &Message{JSONRPC: "2.0", ID: &raw, Method: method}
	if err := msg.setParams(params); err != nil {
		return err
	}
	if err := c.writeMessage(msg); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	case resp := <-ch:
		if resp.Error != nil {
			return fromRPCError(resp.Error)
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
		return nil
	}
}

// Notify sends a notification.
func (c *Conn) Notify(method string, params any) error {
	msg := &Message{JSONRPC: "2.0", Method: method}
	if err := msg.setParams(params); err != nil {
		return err
	}
	return c.writeMessage(msg)
}

func (c *Conn) dispatch(ctx context.Context, msg *Message) {
	switch {
	case msg.Method == "":
		c.deliver(msg)
	case msg.ID == nil:
		if c.handler == nil {
			return
		}
		if _, err := c.handler(ctx, msg.Method, msg.Params); err != nil {
			c.logger.Debug("notification failed", "method", msg.Method, "error", err)
		}
	default:
		go c.serve(ctx, msg)
	}
}

func (c *Conn) serve(ctx context.Context, msg *Message) {
	resp := &Message{JSONRPC: "2.0", ID: msg.ID}
	if c.handler == nil {
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: "method not found: " + msg.Method}
	} else {
		result, err := c.handler(ctx, msg.Method, msg.Params)
		if err != nil {
			resp.Error = toRPCError(err)
		} else {
			data, err := json.Marshal(result)
			if err != nil {
				resp.Error = toRPCError(err)
			} else {
				resp.Result = data
			}
		}
	}
	if err := c.writeMessage(resp); err != nil {
		c.logger.Debug("failed to write response", "method", msg.Method, "error", err)
	}
}

func (c *Conn) deliver(msg *Message) {
	if msg.ID == nil {
		c.logger.Warn("response without id")
		return
	}
	id, err := strconv.ParseInt(string(*msg.ID), 10, 64)
	if err != nil {
		c.logger.Warn("response with foreign id", "id", string(*msg.ID))
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		// Late reply to a cancelled call.
		return
	}
	ch <- msg
}

func (c *Conn) setErr(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// readMessage reads one framed message.
func (c *Conn) readMessage() (*Message, error) {
	contentLength := -1
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if v, ok := strings.CutPrefix(line, "Content-Length: "); ok {
			contentLength, err = strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length: %w", err)
			}
		}
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, fmt.Errorf("error reading body: %w", err)
	}

	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("error parsing message: %w", err)
	}
	return &msg, nil
}

// writeMessage writes one framed message.
func (c *Conn) writeMessage(msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error marshaling message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := fmt.Fprintf(c.writer, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	if _, err := c.writer.Write(body); err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	return nil
}

func (m *Message) setParams(params any) error {
	if params == nil {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("error marshaling params: %w", err)
	}
	m.Params = data
	return nil
}
