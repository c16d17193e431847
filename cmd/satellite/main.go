package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lmor152/jarvis-monorepo/internal/audio"
	"github.com/lmor152/jarvis-monorepo/internal/config"
	"github.com/lmor152/jarvis-monorepo/internal/detector"
	"github.com/lmor152/jarvis-monorepo/internal/dialogue"
	"github.com/lmor152/jarvis-monorepo/internal/discovery"
	"github.com/lmor152/jarvis-monorepo/internal/httpserver"
	"github.com/lmor152/jarvis-monorepo/internal/playback"
	"github.com/lmor152/jarvis-monorepo/internal/satellite"
	"github.com/lmor152/jarvis-monorepo/internal/speakerid"
	"github.com/lmor152/jarvis-monorepo/internal/stt"
	"github.com/lmor152/jarvis-monorepo/internal/tts"
)

const openAIBaseURL = "https://api.openai.com/v1"

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()

	wake, err := detector.NewPorcupineWake(cfg.PicovoiceAccessKey, cfg.WakeKeywords, cfg.WakeSensitivities)
	if err != nil {
		log.Fatalf("wake spotter init failed: %v", err)
	}
	defer wake.Release()

	interrupt, err := detector.NewPorcupineWake(cfg.PicovoiceAccessKey, []string{cfg.InterruptKeyword}, []float64{cfg.InterruptSensitivity})
	if err != nil {
		log.Fatalf("interrupt spotter init failed: %v", err)
	}
	defer interrupt.Release()

	sampleRate := wake.SampleRate()
	frameLength := wake.FrameLength()

	vad, err := detector.NewVAD(cfg.VADProvider, frameLength)
	if err != nil {
		log.Fatalf("vad init failed: %v", err)
	}
	defer vad.Release()

	speakerID, tracker, err := buildSpeakerID(cfg)
	if err != nil {
		log.Fatalf("speaker recognition init failed: %v", err)
	}
	if speakerID != nil {
		defer speakerID.Release()
	}

	transcriber, err := buildTranscriber(cfg, sampleRate, frameLength)
	if err != nil {
		log.Fatalf("transcriber init failed: %v", err)
	}
	defer transcriber.Release()

	synth := tts.NewElevenLabsSynthesizer(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, cfg.ElevenLabsSampleRate)
	queue := playback.NewQueue(synth, playback.NewSpeaker())
	defer queue.Close()

	dialogueClient := dialogue.NewClient(cfg.AssistantURL, cfg.AssistantTimeout)

	sat := satellite.New(
		wake, interrupt, vad, speakerID, tracker, transcriber,
		dialogueClient, queue, satellite.ConsoleFeedback{},
		satellite.Params{
			SampleRate:       sampleRate,
			FrameLength:      frameLength,
			VADThreshold:     cfg.VADThreshold,
			PreSpeechTimeout: cfg.PreSpeechTimeout,
			FollowupGrace:    cfg.FollowupGrace,
			PreRollSeconds:   cfg.PreRollSeconds,
			SpeakerMinScore:  cfg.RecognitionMinScore,
		},
	)

	capture, err := audio.NewCapture(sampleRate, frameLength, sat.OnFrame)
	if err != nil {
		log.Fatalf("microphone init failed: %v", err)
	}
	defer capture.Close()
	if err := capture.Start(); err != nil {
		log.Fatalf("microphone start failed: %v", err)
	}
	log.Printf("satellite ready: wake=%v interrupt=%q rate=%d frame=%d",
		wake.Keywords(), cfg.InterruptKeyword, sampleRate, frameLength)

	e := httpserver.New(sat)
	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("control server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	stopAdvertising := discovery.Advertise(cfg.InstanceName, listenPort(cfg.HTTPAddress), cfg.WakeKeywords)
	defer stopAdvertising()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("control server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}

func buildSpeakerID(cfg config.Config) (detector.SpeakerIdentifier, *speakerid.Tracker, error) {
	if cfg.RecognitionProvider == "" || cfg.RecognitionProvider == "none" {
		return nil, nil, nil
	}
	profiles, err := speakerid.LoadProfiles(cfg.RecognitionVoicesDir)
	if err != nil {
		return nil, nil, err
	}
	identifier, err := detector.NewSpeakerIdentifier(cfg.RecognitionProvider, profiles)
	if err != nil {
		return nil, nil, err
	}
	if identifier == nil {
		return nil, nil, nil
	}
	tracker := speakerid.NewTracker(
		speakerid.Labels(profiles),
		cfg.RecognitionMinScore,
		cfg.RecognitionSmoothing,
		cfg.RecognitionSilenceDecay,
	)
	log.Printf("speaker recognition enabled for: %v", speakerid.Labels(profiles))
	return identifier, tracker, nil
}

func buildTranscriber(cfg config.Config, sampleRate, frameLength int) (stt.Adapter, error) {
	switch cfg.STTProvider {
	case "stream":
		engine := stt.NewStreamEngine(cfg.STTStreamURL, cfg.STTStreamKey, sampleRate)
		if err := engine.Connect(); err != nil {
			return nil, err
		}
		log.Printf("using streaming STT provider")
		return stt.NewStreaming(engine), nil
	case "batch":
		whisper := stt.NewWhisperClient(openAIBaseURL, cfg.WhisperAPIKey, cfg.WhisperModel, sampleRate)
		log.Printf("using batch STT provider (%s)", cfg.WhisperModel)
		return stt.NewBatch(whisper, sampleRate, frameLength, cfg.EndpointSilenceMS, cfg.STTMinEnergy, cfg.AssistantTimeout), nil
	default:
		return nil, fmt.Errorf("unsupported stt provider %q", cfg.STTProvider)
	}
}

// listenPort extracts the numeric port from an address like ":8090". The mDNS
// advertisement needs a concrete port.
func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}
