package ipc

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Client is the shell side of the control protocol.
type Client struct {
	socketPath string
	timeout    time.Duration

	mu        sync.Mutex
	conn      net.Conn
	requestID atomic.Uint32

	events    chan *Event
	pending   map[uint32]chan *Message
	pendingMu sync.Mutex

	closed atomic.Bool
}

// NewClient prepares a client for the daemon socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    10 * time.Second,
		events:     make(chan *Event, 64),
		pending:    make(map[uint32]chan *Message),
	}
}

// Connect dials the daemon and performs the handshake.
func (c *Client) Connect(clientName string) error {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return fmt.Errorf("ipc: connect to daemon: %w (is realtypecoachd running?)", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()

	var ack HandshakeAck
	if err := c.Call(MsgHandshake, HandshakeRequest{ClientName: clientName, Version: ProtocolVersion}, &ack); err != nil {
		conn.Close()
		return fmt.Errorf("ipc: handshake: %w", err)
	}
	if ack.ServerVersion != ProtocolVersion {
		conn.Close()
		return fmt.Errorf("ipc: daemon speaks protocol v%d, client v%d", ack.ServerVersion, ProtocolVersion)
	}
	return nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.closed.Store(true)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Events returns the channel streamed events arrive on after Subscribe.
func (c *Client) Events() <-chan *Event { return c.events }

// Call issues one request and decodes the response into out (which may
// be nil for empty responses).
func (c *Client) Call(msgType MessageType, payload, out any) error {
	id := c.requestID.Add(1)
	msg, err := NewMessage(msgType, id, payload)
	if err != nil {
		return err
	}

	ch := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return errors.New("ipc: not connected")
	}
	err = WriteMessage(conn, msg)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case resp := <-ch:
		if resp.Header.Type == MsgError {
			var e ErrorResponse
			if err := resp.Decode(&e); err != nil {
				return err
			}
			return errors.New(e.Error)
		}
		if out != nil {
			return resp.Decode(out)
		}
		return nil
	case <-time.After(c.timeout):
		return errors.New("ipc: request timed out")
	}
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		msg, err := ReadMessage(conn)
		if err != nil {
			if !c.closed.Load() {
				// Connection lost; pending calls time out on their own.
			}
			return
		}

		if msg.Header.Type == MsgEvent {
			var ev Event
			if err := msg.Decode(&ev); err == nil {
				select {
				case c.events <- &ev:
				default:
					// Slow consumer: drop rather than stall the reader.
				}
			}
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[msg.Header.RequestID]
		c.pendingMu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

// --- typed commands ---

// Ping checks daemon liveness.
func (c *Client) Ping() error {
	return c.Call(MsgPing, nil, nil)
}

// Status fetches the daemon status snapshot.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.Call(MsgStatus, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncNow triggers an immediate sync cycle.
func (c *Client) SyncNow() (*SyncNowResponse, error) {
	var resp SyncNowResponse
	if err := c.Call(MsgSyncNow, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Export streams persisted bursts for [fromMs, toMs) to a CSV file.
func (c *Client) Export(outputPath string, fromMs, toMs int64) (*ExportResponse, error) {
	var resp ExportResponse
	err := c.Call(MsgExport, ExportRequest{OutputPath: outputPath, FromMs: fromMs, ToMs: toMs}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Clear wipes all stored data.
func (c *Client) Clear() error {
	return c.Call(MsgClear, ClearRequest{Confirm: true}, nil)
}

// ReloadConfig re-reads the config file.
func (c *Client) ReloadConfig() error {
	return c.Call(MsgReloadConfig, nil, nil)
}

// GetSettings fetches the flat settings map.
func (c *Client) GetSettings() (map[string]string, error) {
	var resp SettingsResponse
	if err := c.Call(MsgGetSettings, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Settings, nil
}

// SetSetting updates one setting.
func (c *Client) SetSetting(key, value string) error {
	return c.Call(MsgSetSetting, SetSettingRequest{Key: key, Value: value}, nil)
}

// Subscribe starts the event stream; empty events means all.
func (c *Client) Subscribe(events ...EventType) error {
	return c.Call(MsgSubscribe, SubscribeRequest{Events: events}, nil)
}
