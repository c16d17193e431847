// Package tts renders utterance text to PCM for the playback queue.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ElevenLabsSynthesizer renders speech through the ElevenLabs HTTP streaming
// endpoint and collects the raw PCM of a whole utterance. The playback queue
// owns chunking, so a complete clip keeps cancellation handling in one place.
type ElevenLabsSynthesizer struct {
	APIKey     string
	VoiceID    string
	ModelID    string
	BaseURL    string
	HTTPClient *http.Client

	sampleRate int
}

// NewElevenLabsSynthesizer builds a synthesizer for the given voice.
// sampleRate must be one of the PCM rates the API offers (16000, 22050,
// 24000, 44100, 48000).
func NewElevenLabsSynthesizer(apiKey, voiceID string, sampleRate int) *ElevenLabsSynthesizer {
	return &ElevenLabsSynthesizer{
		APIKey:     apiKey,
		VoiceID:    voiceID,
		ModelID:    "eleven_flash_v2_5",
		BaseURL:    "https://api.elevenlabs.io",
		HTTPClient: &http.Client{},
		sampleRate: sampleRate,
	}
}

// SampleRate reports the PCM rate of clips returned by Synthesize.
func (e *ElevenLabsSynthesizer) SampleRate() int { return e.sampleRate }

// Synthesize renders text to mono s16le samples.
func (e *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) ([]int16, error) {
	if e.APIKey == "" || e.VoiceID == "" {
		return nil, fmt.Errorf("elevenlabs: api key or voice id missing")
	}
	if text == "" {
		return nil, nil
	}

	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: bad base url: %w", err)
	}
	u.Path = "/v1/text-to-speech/" + e.VoiceID + "/stream"
	q := u.Query()
	q.Set("model_id", e.ModelID)
	q.Set("output_format", fmt.Sprintf("pcm_%d", e.sampleRate))
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": e.ModelID,
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("elevenlabs: status=%d body=%s", resp.StatusCode, string(b))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio stream: %w", err)
	}
	return bytesToSamples(raw), nil
}

// Release is a no-op; the synthesizer holds no engine resources.
func (e *ElevenLabsSynthesizer) Release() {}

// bytesToSamples decodes s16le bytes, dropping a trailing odd byte if the
// stream was truncated mid-sample.
func bytesToSamples(raw []byte) []int16 {
	n := len(raw) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(raw[2*i]) | int16(raw[2*i+1])<<8
	}
	return samples
}
