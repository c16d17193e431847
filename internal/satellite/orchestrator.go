package satellite

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lmor152/jarvis-monorepo/internal/audio"
	"github.com/lmor152/jarvis-monorepo/internal/detector"
	"github.com/lmor152/jarvis-monorepo/internal/dialogue"
	"github.com/lmor152/jarvis-monorepo/internal/playback"
	"github.com/lmor152/jarvis-monorepo/internal/speakerid"
	"github.com/lmor152/jarvis-monorepo/internal/stt"
)

// DialogueClient is the satellite's view of the remote dialogue service.
type DialogueClient interface {
	Converse(ctx context.Context, req dialogue.TurnRequest) dialogue.Result
}

// SpeechQueue is the satellite's view of the playback worker.
type SpeechQueue interface {
	Enqueue(job *playback.Job) bool
	Stop()
}

// Params holds the orchestrator tunables.
type Params struct {
	SampleRate  int
	FrameLength int

	// VADThreshold is the voice probability above which a frame counts as
	// speech.
	VADThreshold float64
	// PreSpeechTimeout abandons a turn when no speech arrives after wake.
	PreSpeechTimeout time.Duration
	// FollowupGrace is the window after a "wait" response during which
	// silence does not count toward PreSpeechTimeout.
	FollowupGrace time.Duration
	// PreRollSeconds of audio retained while idle and replayed on wake.
	PreRollSeconds float64
	// SpeakerMinScore gates the last-identified-speaker fallback when the
	// tracker has no confident match at endpoint time.
	SpeakerMinScore float64
	// MaxFollowups bounds a chain of "continue" actions within one turn.
	MaxFollowups int
}

const defaultMaxFollowups = 8

// requestErrorFallback and followupErrorFallback are spoken when the dialogue
// service cannot be reached; the turn then resolves as finished.
const (
	requestErrorFallback  = "Sorry, I couldn't reach the assistant just now."
	followupErrorFallback = "Sorry, I lost connection to the assistant while finishing that request."
)

// Satellite is the top-level coordinator. All mutable turn state lives behind
// one mutex: the frame callback mutates it during dispatch, and background
// dialogue tasks re-enter through the same lock when their responses arrive.
type Satellite struct {
	wake      detector.WakeSpotter
	interrupt detector.WakeSpotter
	vad       detector.VoiceActivityDetector
	speakerID detector.SpeakerIdentifier
	tracker   *speakerid.Tracker
	stt       stt.Adapter
	dialogue  DialogueClient
	queue     SpeechQueue
	feedback  Feedback

	params        Params
	frameDuration time.Duration

	mu      sync.Mutex
	mode    Mode
	preRoll *audio.PreRoll

	conversationID  string
	partial         []string
	listeningActive bool
	silence         time.Duration
	graceDeadline   time.Time

	currentSpeaker    string
	currentConfidence float64
	lastSpeaker       string
	lastConfidence    float64

	followupInFlight bool
	followupAttempts int

	// now is swapped out in tests to drive the grace deadline.
	now func() time.Time
}

// New builds a satellite in ModeIdle. speakerID and tracker may be nil
// together, which disables attribution; every other collaborator is required.
func New(
	wake, interrupt detector.WakeSpotter,
	vad detector.VoiceActivityDetector,
	speakerID detector.SpeakerIdentifier,
	tracker *speakerid.Tracker,
	transcriber stt.Adapter,
	dialogueClient DialogueClient,
	queue SpeechQueue,
	feedback Feedback,
	params Params,
) *Satellite {
	if params.MaxFollowups <= 0 {
		params.MaxFollowups = defaultMaxFollowups
	}
	if feedback == nil {
		feedback = NopFeedback{}
	}
	return &Satellite{
		wake:           wake,
		interrupt:      interrupt,
		vad:            vad,
		speakerID:      speakerID,
		tracker:        tracker,
		stt:            transcriber,
		dialogue:       dialogueClient,
		queue:          queue,
		feedback:       feedback,
		params:         params,
		frameDuration:  audio.FrameDuration(params.FrameLength, params.SampleRate),
		mode:           ModeIdle,
		preRoll:        audio.NewPreRoll(params.SampleRate, params.FrameLength, params.PreRollSeconds),
		conversationID: uuid.NewString(),
		now:            time.Now,
	}
}

// OnFrame dispatches one microphone frame according to the current mode. It
// runs on the capture callback path and never performs network or disk I/O;
// dialogue requests are handed off to background goroutines.
func (s *Satellite) OnFrame(frame audio.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case ModeIdle:
		s.preRoll.Push(frame)
		idx, err := s.wake.Process(frame)
		if err != nil {
			log.Printf("satellite: wake spotter error: %v", err)
			return
		}
		if idx >= 0 {
			s.handleWakeLocked()
		}
	case ModeListening:
		s.processListeningLocked(frame, false)
	case ModeSpeaking:
		idx, err := s.interrupt.Process(frame)
		if err != nil {
			log.Printf("satellite: interrupt spotter error: %v", err)
			return
		}
		if idx >= 0 {
			s.handleInterruptLocked()
		}
	case ModeThinking:
		// Frames are received but ignored while a dialogue request is out.
	}
}

// ExternalTrigger starts a turn without a wake phrase, as if the wake word had
// just been spotted. It is ignored unless the satellite is idle.
func (s *Satellite) ExternalTrigger() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeIdle {
		return false
	}
	log.Printf("satellite: external trigger")
	s.handleWakeLocked()
	return true
}

// Snapshot is a point-in-time view of the satellite for the control surface.
type Snapshot struct {
	Mode           string  `json:"mode"`
	ConversationID string  `json:"conversation_id"`
	Speaker        string  `json:"speaker,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
}

// State returns the current snapshot.
func (s *Satellite) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Mode:           s.mode.String(),
		ConversationID: s.conversationID,
		Speaker:        s.currentSpeaker,
		Confidence:     s.currentConfidence,
	}
}

// handleWakeLocked starts a fresh turn and replays the pre-roll so speech
// overlapping the wake phrase is not lost. Replayed frames are tagged so they
// never count toward the silence timeout.
func (s *Satellite) handleWakeLocked() {
	log.Printf("satellite: wake detected")
	s.conversationID = uuid.NewString()
	s.stt.Reset()
	s.vad.Reset()
	if s.tracker != nil {
		s.tracker.Reset()
	}
	s.partial = nil
	s.listeningActive = true
	s.silence = 0
	s.graceDeadline = time.Time{}
	s.followupAttempts = 0
	s.currentSpeaker = ""
	s.currentConfidence = 0
	s.lastSpeaker = ""
	s.lastConfidence = 0

	buffered := s.preRoll.Drain()
	s.setModeLocked(ModeListening)
	for _, frame := range buffered {
		s.processListeningLocked(frame, true)
	}
}

// processListeningLocked runs the Listening path for one frame: VAD, speaker
// attribution, silence accounting, and transcription.
func (s *Satellite) processListeningLocked(frame audio.Frame, fromBuffer bool) {
	if !s.listeningActive {
		return
	}

	prob, err := s.vad.Process(frame)
	if err != nil {
		log.Printf("satellite: vad error: %v", err)
		prob = 0
	}
	isVoice := prob >= s.params.VADThreshold

	s.attributeSpeakerLocked(frame, isVoice)

	if isVoice {
		s.silence = 0
		s.graceDeadline = time.Time{}
	} else if !fromBuffer && len(s.partial) == 0 {
		if !s.graceDeadline.IsZero() && s.now().Before(s.graceDeadline) {
			// Inside the follow-up grace window; silence does not count.
		} else {
			s.graceDeadline = time.Time{}
			s.silence += s.frameDuration
			if s.silence >= s.params.PreSpeechTimeout {
				s.abandonTurnLocked()
				return
			}
		}
	}

	text, endpoint := s.stt.Process(frame)
	if text != "" {
		s.partial = append(s.partial, text)
		s.feedback.DisplayText(strings.Join(s.partial, ""))
	}
	if endpoint {
		s.finalizeTurnLocked()
	}
}

// attributeSpeakerLocked feeds one frame through the identifier and tracker,
// updating the current and best-so-far speaker estimates.
func (s *Satellite) attributeSpeakerLocked(frame audio.Frame, isVoice bool) {
	if s.speakerID == nil || s.tracker == nil {
		return
	}
	raw, err := s.speakerID.Process(frame)
	if err != nil {
		log.Printf("satellite: speaker identifier error: %v", err)
		return
	}
	label, confidence := s.tracker.Update(raw, isVoice)
	if label != "" {
		s.currentSpeaker = label
		s.currentConfidence = confidence
		if confidence > s.lastConfidence {
			s.lastSpeaker = label
			s.lastConfidence = confidence
		}
	} else {
		s.currentConfidence = confidence
		if isVoice {
			s.currentSpeaker = ""
		}
	}
}

// abandonTurnLocked drops a turn in which nobody spoke. The abandonment is
// silent: no dialogue request, no spoken apology.
func (s *Satellite) abandonTurnLocked() {
	log.Printf("satellite: no speech detected, abandoning turn")
	s.partial = nil
	s.listeningActive = false
	s.silence = 0
	s.graceDeadline = time.Time{}
	s.preRoll.Clear()
	s.vad.Reset()
	s.stt.Reset()
	s.currentSpeaker = ""
	s.currentConfidence = 0
	s.lastSpeaker = ""
	s.lastConfidence = 0
	if s.tracker != nil {
		s.tracker.Reset()
	}
	s.setModeLocked(ModeIdle)
}

// finalizeTurnLocked closes the utterance at an endpoint: flushes the
// transcriber, fixes the speaker guess, and dispatches the command off the
// frame path.
func (s *Satellite) finalizeTurnLocked() {
	final := strings.TrimSpace(strings.Join(s.partial, ""))
	if flushed := strings.TrimSpace(s.stt.Flush()); flushed != "" {
		if final != "" {
			final = final + " " + flushed
		} else {
			final = flushed
		}
	}

	s.partial = nil
	s.listeningActive = false
	s.silence = 0
	s.graceDeadline = time.Time{}
	s.preRoll.Clear()
	s.vad.Reset()

	if final == "" {
		s.setModeLocked(ModeIdle)
		return
	}

	speaker, confidence := s.speakerGuessLocked()
	if speaker != "" {
		s.lastSpeaker = speaker
		s.lastConfidence = confidence
		s.feedback.DisplayText(speaker + " said: " + final)
		log.Printf("satellite: heard (%s %.2f): %s", speaker, confidence, final)
	} else {
		s.feedback.DisplayText("You said: " + final)
		log.Printf("satellite: heard: %s", final)
	}

	s.setModeLocked(ModeThinking)

	convID := s.conversationID
	go s.dispatchCommand(convID, final, speaker)
}

// speakerGuessLocked resolves the per-turn speaker: the tracker's best match,
// falling back to the last identified speaker if it still meets the threshold.
func (s *Satellite) speakerGuessLocked() (string, float64) {
	minScore := s.params.SpeakerMinScore
	if s.tracker != nil {
		minScore = s.tracker.MinScore()
		if label, score := s.tracker.BestMatch(); label != "" {
			return label, score
		}
	}
	if s.lastSpeaker != "" && s.lastConfidence >= minScore {
		return s.lastSpeaker, s.lastConfidence
	}
	return "", 0
}

// handleInterruptLocked stops playback and hard-resets the turn.
func (s *Satellite) handleInterruptLocked() {
	log.Printf("satellite: interrupt, stopping speech")
	s.queue.Stop()
	s.partial = nil
	s.listeningActive = false
	s.silence = 0
	s.graceDeadline = time.Time{}
	s.preRoll.Clear()
	s.vad.Reset()
	s.stt.Reset()
	s.conversationID = uuid.NewString()
	s.followupAttempts = 0
	s.currentSpeaker = ""
	s.currentConfidence = 0
	s.lastSpeaker = ""
	s.lastConfidence = 0
	if s.tracker != nil {
		s.tracker.Reset()
	}
	s.setModeLocked(ModeIdle)
}

// dispatchCommand sends the finalized transcript to the dialogue service.
// Runs off the frame path; the response re-enters via handleResultLocked.
func (s *Satellite) dispatchCommand(convID, text, speaker string) {
	req := dialogue.TurnRequest{
		Text:           &text,
		ConversationID: convID,
		Speaker:        speaker,
	}
	result := s.dialogue.Converse(context.Background(), req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if convID != s.conversationID {
		log.Printf("satellite: discarding stale dialogue response for %s", convID)
		return
	}
	s.handleResultLocked(result, requestErrorFallback)
}

// requestFollowup asks the dialogue service to continue a multi-step turn
// with no new user text.
func (s *Satellite) requestFollowup(convID, speaker string) {
	req := dialogue.TurnRequest{
		ConversationID: convID,
		Speaker:        speaker,
	}
	result := s.dialogue.Converse(context.Background(), req)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.followupInFlight = false
	if convID != s.conversationID {
		log.Printf("satellite: discarding stale follow-up response for %s", convID)
		return
	}
	s.handleResultLocked(result, followupErrorFallback)
}

// handleResultLocked turns a dialogue result into playback jobs and resolves
// the effective next action.
func (s *Satellite) handleResultLocked(result dialogue.Result, errorFallback string) {
	if result.Next == dialogue.ActionError {
		log.Printf("satellite: assistant unavailable")
		s.feedback.DisplayText(errorFallback)
		s.queueSpeechLocked([]string{errorFallback}, dialogue.ActionFinish)
		return
	}

	action := result.Next
	if action == "" {
		action = dialogue.ActionFinish
	}
	var texts []string
	for _, msg := range result.Messages {
		texts = append(texts, msg.Text)
		s.feedback.DisplayText(msg.Text)
		log.Printf("satellite: assistant: %s", msg.Text)
		if msg.Next != "" {
			action = msg.Next
		}
	}

	if len(texts) == 0 {
		s.applyNextActionLocked(action)
		return
	}
	s.queueSpeechLocked(texts, action)
}

// queueSpeechLocked enqueues the messages in order; only the last job's
// completion carries the effective next action. If the last job cannot be
// queued, the action is applied directly so the machine never stalls.
func (s *Satellite) queueSpeechLocked(texts []string, action dialogue.NextAction) {
	s.setModeLocked(ModeSpeaking)
	convID := s.conversationID

	last := len(texts) - 1
	for i, text := range texts {
		spoken := sanitizeSpeech(text)
		if spoken == "" {
			spoken = unreadableFallback
		} else if spoken != text {
			log.Printf("satellite: sanitized speech text")
		}

		job := &playback.Job{Text: spoken}
		if i == last {
			act := action
			job.OnComplete = func() {
				s.onSpeechComplete(convID, act)
			}
		}
		if !s.queue.Enqueue(job) && i == last {
			log.Printf("satellite: playback queue rejected final job, resolving %s directly", action)
			s.applyNextActionLocked(action)
		}
	}
}

// onSpeechComplete runs on the playback worker after the last message of a
// response finished playing.
func (s *Satellite) onSpeechComplete(convID string, action dialogue.NextAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if convID != s.conversationID {
		log.Printf("satellite: discarding stale playback completion for %s", convID)
		return
	}
	s.applyNextActionLocked(action)
}

// applyNextActionLocked drives the state transition for the effective next
// action of a completed dialogue exchange.
func (s *Satellite) applyNextActionLocked(action dialogue.NextAction) {
	switch action {
	case dialogue.ActionWait:
		log.Printf("satellite: awaiting follow-up")
		s.partial = nil
		s.listeningActive = true
		s.silence = 0
		s.preRoll.Clear()
		s.stt.Reset()
		s.vad.Reset()
		s.followupAttempts = 0
		s.graceDeadline = s.now().Add(s.params.FollowupGrace)
		s.setModeLocked(ModeListening)
	case dialogue.ActionContinue:
		s.followupAttempts++
		if s.followupAttempts > s.params.MaxFollowups {
			log.Printf("satellite: follow-up limit reached, finishing turn")
			s.resetTurnLocked()
			return
		}
		s.listeningActive = false
		s.preRoll.Clear()
		s.vad.Reset()
		s.graceDeadline = time.Time{}
		s.setModeLocked(ModeThinking)
		if s.followupInFlight {
			return
		}
		s.followupInFlight = true
		go s.requestFollowup(s.conversationID, s.lastSpeaker)
	default:
		s.resetTurnLocked()
	}
}

// resetTurnLocked ends the turn: back to idle with a fresh conversation id.
// Speaker estimates survive so the next turn can fall back to them.
func (s *Satellite) resetTurnLocked() {
	s.partial = nil
	s.listeningActive = false
	s.silence = 0
	s.graceDeadline = time.Time{}
	s.preRoll.Clear()
	s.vad.Reset()
	s.conversationID = uuid.NewString()
	s.followupAttempts = 0
	s.setModeLocked(ModeIdle)
}

func (s *Satellite) setModeLocked(mode Mode) {
	if s.mode == mode {
		return
	}
	s.mode = mode
	s.feedback.SetState(mode)
}
