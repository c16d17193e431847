// Package config loads the satellite configuration from the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress  string
	InstanceName string

	// Wake and interrupt spotting
	PicovoiceAccessKey   string
	WakeKeywords         []string
	WakeSensitivities    []float64
	InterruptKeyword     string
	InterruptSensitivity float64

	// Audio pipeline
	PreRollSeconds   float64
	VADProvider      string
	VADThreshold     float64
	PreSpeechTimeout time.Duration
	FollowupGrace    time.Duration

	// Transcription
	STTProvider       string
	STTStreamURL      string
	STTStreamKey      string
	WhisperAPIKey     string
	WhisperModel      string
	EndpointSilenceMS int
	STTMinEnergy      float64

	// Speech synthesis
	ElevenLabsKey        string
	ElevenLabsVoiceID    string
	ElevenLabsSampleRate int

	// Speaker recognition
	RecognitionProvider     string
	RecognitionVoicesDir    string
	RecognitionMinScore     float64
	RecognitionSmoothing    float64
	RecognitionSilenceDecay float64

	// Dialogue service
	AssistantURL     string
	AssistantTimeout time.Duration
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file")
	}

	addr := envString("HTTP_ADDRESS", ":8090")

	picoKey := os.Getenv("PICOVOICE_ACCESS_KEY")
	if picoKey == "" {
		log.Println("Warning: PICOVOICE_ACCESS_KEY not set - wake word detection will not work")
	}

	elevenKey := os.Getenv("ELEVENLABS_API_KEY")
	if elevenKey == "" {
		log.Println("Warning: ELEVENLABS_API_KEY not set - TTS will not work")
	}
	voiceID := os.Getenv("ELEVENLABS_VOICE_ID")
	if voiceID == "" {
		log.Println("Warning: ELEVENLABS_VOICE_ID not set - set a concrete voice ID from your ElevenLabs dashboard")
	}

	sttProvider := envString("STT_PROVIDER", "batch")
	switch sttProvider {
	case "batch":
		if os.Getenv("OPENAI_API_KEY") == "" {
			log.Println("Warning: OPENAI_API_KEY not set - transcription will not work")
		}
	case "stream":
		if os.Getenv("STT_STREAM_API_KEY") == "" {
			log.Println("Warning: STT_STREAM_API_KEY not set - transcription will not work")
		}
	}

	cfg := Config{
		HTTPAddress:  addr,
		InstanceName: os.Getenv("INSTANCE_NAME"),

		PicovoiceAccessKey:   picoKey,
		WakeKeywords:         envList("WAKE_KEYWORDS", []string{"jarvis"}),
		WakeSensitivities:    envFloatList("WAKE_SENSITIVITIES", []float64{0.6}),
		InterruptKeyword:     envString("INTERRUPT_KEYWORD", "alexa"),
		InterruptSensitivity: envFloat("INTERRUPT_SENSITIVITY", 0.5),

		PreRollSeconds:   envFloat("PRE_ROLL_SECONDS", 1.5),
		VADProvider:      envString("VAD_PROVIDER", "energy"),
		VADThreshold:     envFloat("VAD_ACTIVATION_THRESHOLD", 0.7),
		PreSpeechTimeout: envSeconds("VAD_PRE_SPEECH_TIMEOUT", 4*time.Second),
		FollowupGrace:    envSeconds("VAD_FOLLOWUP_GRACE", time.Second),

		STTProvider:       sttProvider,
		STTStreamURL:      os.Getenv("STT_STREAM_URL"),
		STTStreamKey:      os.Getenv("STT_STREAM_API_KEY"),
		WhisperAPIKey:     os.Getenv("OPENAI_API_KEY"),
		WhisperModel:      envString("OPENAI_STT_MODEL", "gpt-4o-mini-transcribe"),
		EndpointSilenceMS: envInt("STT_ENDPOINT_SILENCE_MS", 900),
		STTMinEnergy:      envFloat("STT_MIN_ENERGY", 60.0),

		ElevenLabsKey:        elevenKey,
		ElevenLabsVoiceID:    voiceID,
		ElevenLabsSampleRate: envInt("ELEVENLABS_SAMPLE_RATE", 22050),

		RecognitionProvider:     envString("RECOGNITION_PROVIDER", "none"),
		RecognitionVoicesDir:    os.Getenv("RECOGNITION_VOICES_DIR"),
		RecognitionMinScore:     envFloat("RECOGNITION_MIN_SCORE", 0.5),
		RecognitionSmoothing:    envFloat("RECOGNITION_SMOOTHING", 0.4),
		RecognitionSilenceDecay: envFloat("RECOGNITION_SILENCE_DECAY", 0.95),

		AssistantURL:     envString("ASSISTANT_URL", "http://localhost:8001"),
		AssistantTimeout: envSeconds("ASSISTANT_TIMEOUT", 60*time.Second),
	}

	log.Printf("config: HTTP_ADDRESS=%s wake=%v stt=%s", cfg.HTTPAddress, cfg.WakeKeywords, cfg.STTProvider)
	return cfg
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: %s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number, using %g", key, v, def)
		return def
	}
	return f
}

// envSeconds reads a duration expressed in seconds (e.g. "4" or "1.5").
func envSeconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Warning: %s=%q is not a number of seconds, using %s", key, v, def)
		return def
	}
	return time.Duration(f * float64(time.Second))
}

// envList reads a comma-separated list.
func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func envFloatList(key string, def []float64) []float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []float64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			log.Printf("Warning: %s contains %q which is not a number, using defaults", key, part)
			return def
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return def
	}
	return out
}
