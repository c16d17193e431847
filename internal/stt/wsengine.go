package stt

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lmor152/jarvis-monorepo/internal/audio"
)

// transcriptEvent is one recognized increment from the remote engine.
type transcriptEvent struct {
	text     string
	endpoint bool
}

// beginMessage, turnMessage and errorMessage mirror the streaming service's
// JSON protocol.
type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	EndOfTurn  bool   `json:"end_of_turn"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// StreamEngine is a websocket client for a streaming transcription service
// that performs its own endpointing. Frames go out as binary PCM messages;
// growing turn transcripts come back as JSON, with an end-of-turn flag when
// the engine decides the utterance finished.
type StreamEngine struct {
	endpoint   string
	apiKey     string
	sampleRate int

	conn    *websocket.Conn
	audioCh chan []byte
	events  chan transcriptEvent
	stopCh  chan struct{}

	mu        sync.Mutex
	connected bool

	accMu     sync.Mutex
	latest    string
	committed string
}

// NewStreamEngine prepares a client for the given websocket endpoint.
func NewStreamEngine(endpoint, apiKey string, sampleRate int) *StreamEngine {
	return &StreamEngine{
		endpoint:   endpoint,
		apiKey:     apiKey,
		sampleRate: sampleRate,
		audioCh:    make(chan []byte, 256),
		events:     make(chan transcriptEvent, 64),
		stopCh:     make(chan struct{}),
	}
}

// Connect dials the service and starts the send and receive loops.
func (e *StreamEngine) Connect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.connected {
		return nil
	}
	if e.apiKey == "" {
		return fmt.Errorf("stt: streaming api key is empty")
	}

	u, err := url.Parse(e.endpoint)
	if err != nil {
		return fmt.Errorf("stt: invalid stream endpoint: %w", err)
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(e.sampleRate))
	q.Set("encoding", "pcm_s16le")
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	headers := http.Header{"Authorization": {e.apiKey}}
	conn, resp, err := dialer.Dial(u.String(), headers)
	if err != nil {
		if resp != nil {
			log.Printf("stt: stream connect failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("stt: connect stream engine: %w", err)
	}
	e.conn = conn
	e.connected = true

	go e.sendLoop()
	go e.readLoop()
	return nil
}

// Process queues the frame for the service and returns any transcript
// increments received since the previous call.
func (e *StreamEngine) Process(frame audio.Frame) (string, bool, error) {
	e.mu.Lock()
	connected := e.connected
	e.mu.Unlock()
	if !connected {
		return "", false, fmt.Errorf("stt: stream engine not connected")
	}

	select {
	case e.audioCh <- audio.FrameToBytes(frame):
	default:
		log.Printf("stt: audio backlog full, dropping frame")
	}

	var parts []string
	endpoint := false
	for {
		select {
		case ev := <-e.events:
			if ev.text != "" {
				parts = append(parts, ev.text)
			}
			if ev.endpoint {
				endpoint = true
			}
		default:
			return strings.Join(parts, ""), endpoint, nil
		}
	}
}

// Flush returns the transcript tail the engine has recognized but not yet
// delivered through Process.
func (e *StreamEngine) Flush() (string, error) {
	e.accMu.Lock()
	defer e.accMu.Unlock()
	delta := newText(e.committed, e.latest)
	e.committed = e.latest
	return delta, nil
}

// Reset drops any queued events and clears the turn accumulator.
func (e *StreamEngine) Reset() {
	for {
		select {
		case <-e.events:
		default:
			e.accMu.Lock()
			e.latest = ""
			e.committed = ""
			e.accMu.Unlock()
			return
		}
	}
}

// Release closes the connection and stops the worker loops.
func (e *StreamEngine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.connected {
		return
	}
	e.connected = false
	close(e.stopCh)
	_ = e.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Terminate"}`))
	_ = e.conn.Close()
}

func (e *StreamEngine) sendLoop() {
	for {
		select {
		case <-e.stopCh:
			return
		case pcm := <-e.audioCh:
			if err := e.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				log.Printf("stt: stream write error: %v", err)
				return
			}
		}
	}
}

func (e *StreamEngine) readLoop() {
	for {
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			select {
			case <-e.stopCh:
			default:
				log.Printf("stt: stream read error: %v", err)
			}
			return
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			log.Printf("stt: malformed stream message: %v", err)
			continue
		}

		switch envelope.Type {
		case "Begin":
			var msg beginMessage
			if err := json.Unmarshal(data, &msg); err == nil {
				log.Printf("stt: stream session %s started", msg.ID)
			}
		case "Turn":
			var msg turnMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Printf("stt: malformed turn message: %v", err)
				continue
			}
			e.handleTurn(msg)
		case "Error":
			var msg errorMessage
			if err := json.Unmarshal(data, &msg); err == nil {
				log.Printf("stt: stream engine error: %s", msg.Error)
			}
		case "Termination":
			return
		}
	}
}

func (e *StreamEngine) handleTurn(msg turnMessage) {
	e.accMu.Lock()
	e.latest = msg.Transcript
	delta := newText(e.committed, e.latest)
	e.committed = e.latest
	if msg.EndOfTurn {
		e.latest = ""
		e.committed = ""
	}
	e.accMu.Unlock()

	if delta == "" && !msg.EndOfTurn {
		return
	}
	select {
	case e.events <- transcriptEvent{text: delta, endpoint: msg.EndOfTurn}:
	default:
		log.Printf("stt: transcript backlog full, dropping increment")
	}
}

// newText returns the portion of latest not yet committed. A transcript
// revision that no longer extends the committed prefix replaces it wholesale.
func newText(committed, latest string) string {
	if latest == "" {
		return ""
	}
	if strings.HasPrefix(latest, committed) {
		return latest[len(committed):]
	}
	return latest
}
