// Package dialogue talks to the remote dialogue service that resolves each
// transcribed command into spoken replies and a turn-taking action.
package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// NextAction is the turn-taking directive attached to a dialogue response.
type NextAction string

const (
	// ActionWait re-arms listening so the user can reply without re-waking.
	ActionWait NextAction = "wait"
	// ActionContinue asks the satellite to poll for a follow-up response.
	ActionContinue NextAction = "continue"
	// ActionFinish ends the turn.
	ActionFinish NextAction = "finish"
	// ActionError marks a request-level failure (network, status, parse).
	ActionError NextAction = "error"
)

// Message is one spoken reply with its own next-action override.
type Message struct {
	Text string
	Next NextAction
}

// Result is the normalized outcome of one dialogue exchange. Next is the
// effective action when Messages is empty.
type Result struct {
	Messages []Message
	Next     NextAction
}

// TurnRequest is one outbound conversation turn. A nil Text signals a
// follow-up poll carrying no new user utterance.
type TurnRequest struct {
	Text           *string
	ConversationID string
	Speaker        string
}

type wirePayload struct {
	Text           *string `json:"text"`
	ConversationID string  `json:"conversation_id"`
	Speaker        *string `json:"speaker,omitempty"`
}

type wireMessage struct {
	Text string `json:"text"`
	Next string `json:"next"`
}

type wireResponse struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []wireMessage `json:"messages"`
	Next           string        `json:"next"`
}

// Client is a synchronous request/response adapter for the dialogue service.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
}

// NewClient builds a client for POST <base>/conversation.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Converse performs one exchange. Failures are never surfaced as Go errors to
// the turn logic; they come back as Result{Next: ActionError} so the caller's
// fallback path runs uniformly.
func (c *Client) Converse(ctx context.Context, req TurnRequest) Result {
	payload := wirePayload{Text: req.Text, ConversationID: req.ConversationID}
	if req.Speaker != "" {
		payload.Speaker = &req.Speaker
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("dialogue: marshal request: %v", err)
		return Result{Next: ActionError}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/conversation", bytes.NewReader(body))
	if err != nil {
		log.Printf("dialogue: build request: %v", err)
		return Result{Next: ActionError}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		log.Printf("dialogue: request failed: %v", err)
		return Result{Next: ActionError}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Printf("dialogue: status=%d body=%s", resp.StatusCode, string(b))
		return Result{Next: ActionError}
	}

	var parsed wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		log.Printf("dialogue: response was not valid JSON: %v", err)
		return Result{Next: ActionError}
	}

	return normalize(parsed)
}

// normalize drops empty message texts and lowercases actions, defaulting
// unknown or missing values to finish.
func normalize(resp wireResponse) Result {
	out := Result{Next: normalizeAction(resp.Next)}
	for _, m := range resp.Messages {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		out.Messages = append(out.Messages, Message{Text: text, Next: normalizeAction(m.Next)})
	}
	return out
}

func normalizeAction(raw string) NextAction {
	switch NextAction(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionWait:
		return ActionWait
	case ActionContinue:
		return ActionContinue
	case ActionFinish:
		return ActionFinish
	default:
		return ActionFinish
	}
}
