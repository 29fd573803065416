// Package ipc provides inter-process communication between the
// realtypecoach daemon and its shells (CLI, GUI, tray).
//
// The protocol is a length-prefixed, JSON-framed request/response pair
// plus a one-way event stream for subscribers, carried over a Unix
// domain socket. The daemon only ever pushes events; shells only ever
// pull data and issue commands, which keeps the core→shell boundary
// one-directional.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Protocol constants.
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x52544350 // "RTCP"
)

// MessageType identifies the type of IPC message.
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005

	// Commands (0x01xx)
	MsgStatus           MessageType = 0x0100
	MsgStatusResp       MessageType = 0x0101
	MsgSyncNow          MessageType = 0x0102
	MsgSyncNowResp      MessageType = 0x0103
	MsgExport           MessageType = 0x0104
	MsgExportResp       MessageType = 0x0105
	MsgClear            MessageType = 0x0106
	MsgClearResp        MessageType = 0x0107
	MsgReloadConfig     MessageType = 0x0108
	MsgReloadConfigResp MessageType = 0x0109
	MsgGetSettings      MessageType = 0x010a
	MsgGetSettingsResp  MessageType = 0x010b
	MsgSetSetting       MessageType = 0x010c
	MsgSetSettingResp   MessageType = 0x010d

	// Event streaming (0x02xx)
	MsgSubscribe     MessageType = 0x0200
	MsgSubscribeResp MessageType = 0x0201
	MsgEvent         MessageType = 0x0202
)

// EventType identifies the type of streamed event.
type EventType string

const (
	EventBurst             EventType = "burst"
	EventHighScore         EventType = "high_score"
	EventExceptionalBurst  EventType = "exceptional_burst"
	EventWorstLetterChange EventType = "worst_letter_changed"
	EventUnrealisticBurst  EventType = "unrealistic_burst"
	EventSyncResult        EventType = "sync_result"
	EventDailySummary      EventType = "daily_summary"
)

// Header is the fixed-size message header (16 bytes).
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32
}

// HeaderSize is the size of the header in bytes.
const HeaderSize = 16

// MaxPayloadSize bounds a single frame; anything larger is a protocol
// violation, not a legitimate status response.
const MaxPayloadSize = 16 << 20

// Message wraps a header and its JSON payload.
type Message struct {
	Header  Header
	Payload []byte
}

// Protocol-level errors.
var (
	ErrBadMagic      = errors.New("ipc: bad protocol magic")
	ErrBadVersion    = errors.New("ipc: unsupported protocol version")
	ErrFrameTooLarge = errors.New("ipc: frame exceeds maximum size")
)

// NewMessage builds a message of the given type with payload marshaled
// to JSON.
func NewMessage(msgType MessageType, requestID uint32, payload any) (*Message, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("ipc: marshal payload: %w", err)
		}
	}
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(body)),
		},
		Payload: body,
	}, nil
}

// Decode unmarshals the payload into out.
func (m *Message) Decode(out any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, out); err != nil {
		return fmt.Errorf("ipc: unmarshal payload: %w", err)
	}
	return nil
}

// WriteMessage frames and writes one message.
func WriteMessage(w io.Writer, m *Message) error {
	var hdr [HeaderSize]byte
	binary.BigEndian.PutUint32(hdr[0:4], m.Header.Magic)
	hdr[4] = m.Header.Version
	hdr[5] = m.Header.Flags
	binary.BigEndian.PutUint16(hdr[6:8], uint16(m.Header.Type))
	binary.BigEndian.PutUint32(hdr[8:12], m.Header.RequestID)
	binary.BigEndian.PutUint32(hdr[12:16], uint32(len(m.Payload)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("ipc: write header: %w", err)
	}
	if len(m.Payload) > 0 {
		if _, err := w.Write(m.Payload); err != nil {
			return fmt.Errorf("ipc: write payload: %w", err)
		}
	}
	return nil
}

// ReadMessage reads and validates one framed message.
func ReadMessage(r io.Reader) (*Message, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	m := &Message{
		Header: Header{
			Magic:     binary.BigEndian.Uint32(hdr[0:4]),
			Version:   hdr[4],
			Flags:     hdr[5],
			Type:      MessageType(binary.BigEndian.Uint16(hdr[6:8])),
			RequestID: binary.BigEndian.Uint32(hdr[8:12]),
			Length:    binary.BigEndian.Uint32(hdr[12:16]),
		},
	}

	if m.Header.Magic != ProtocolMagic {
		return nil, ErrBadMagic
	}
	if m.Header.Version != ProtocolVersion {
		return nil, ErrBadVersion
	}
	if m.Header.Length > MaxPayloadSize {
		return nil, ErrFrameTooLarge
	}

	if m.Header.Length > 0 {
		m.Payload = make([]byte, m.Header.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, fmt.Errorf("ipc: read payload: %w", err)
		}
	}
	return m, nil
}

// --- payloads ---

// ErrorResponse carries a command failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandshakeRequest opens a connection.
type HandshakeRequest struct {
	ClientName string `json:"client_name"`
	Version    int    `json:"version"`
}

// HandshakeAck confirms the connection.
type HandshakeAck struct {
	ServerVersion int    `json:"server_version"`
	DaemonVersion string `json:"daemon_version"`
}

// StatusResponse is the daemon's status snapshot.
type StatusResponse struct {
	Running         bool     `json:"running"`
	Uptime          string   `json:"uptime"`
	ActiveLayout    string   `json:"active_layout"`
	Devices         []string `json:"devices"`
	QueueDepth      int      `json:"queue_depth"`
	QueueDrops      uint64   `json:"queue_drops"`
	EventsConsumed  uint64   `json:"events_consumed"`
	BurstsToday     int64    `json:"bursts_today"`
	KeystrokesToday int64    `json:"keystrokes_today"`
	AvgWPMToday     float64  `json:"avg_wpm_today"`
	TodayBestWPM    float64  `json:"today_best_wpm"`
	LongTermAvgWPM  float64  `json:"long_term_avg_wpm"`
	SyncEnabled     bool     `json:"sync_enabled"`
	LastSyncError   string   `json:"last_sync_error,omitempty"`
	LastSyncAt      int64    `json:"last_sync_at,omitempty"`
}

// SyncNowResponse reports one on-demand sync cycle.
type SyncNowResponse struct {
	Started    bool   `json:"started"`
	InProgress bool   `json:"in_progress,omitempty"`
	Pushed     int    `json:"pushed"`
	Pulled     int    `json:"pulled"`
	Merged     int    `json:"merged"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// ExportRequest asks for a CSV export over a date range.
type ExportRequest struct {
	OutputPath string `json:"output_path"`
	FromMs     int64  `json:"from_ms"`
	ToMs       int64  `json:"to_ms"`
}

// ExportResponse reports a finished export.
type ExportResponse struct {
	OutputPath string `json:"output_path"`
}

// ClearRequest wipes all stored data; Confirm guards against an
// accidental bare command.
type ClearRequest struct {
	Confirm bool `json:"confirm"`
}

// SettingsResponse returns the full flat settings map.
type SettingsResponse struct {
	Settings map[string]string `json:"settings"`
}

// SetSettingRequest updates one setting.
type SetSettingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SubscribeRequest selects event types to stream; empty means all.
type SubscribeRequest struct {
	Events []EventType `json:"events"`
}

// Event is one streamed notification.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event with data marshaled to JSON.
func NewEvent(eventType EventType, timestampMs int64, data any) (*Event, error) {
	var body json.RawMessage
	if data != nil {
		var err error
		body, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("ipc: marshal event data: %w", err)
		}
	}
	return &Event{Type: eventType, Timestamp: timestampMs, Data: body}, nil
}
