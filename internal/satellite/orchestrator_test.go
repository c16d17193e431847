package satellite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lmor152/jarvis-monorepo/internal/audio"
	"github.com/lmor152/jarvis-monorepo/internal/dialogue"
	"github.com/lmor152/jarvis-monorepo/internal/playback"
)

const (
	testSampleRate  = 16000
	testFrameLength = 512
)

type fakeSpotter struct {
	mu       sync.Mutex
	fireNext bool
	calls    int
}

func (f *fakeSpotter) FrameLength() int { return testFrameLength }
func (f *fakeSpotter) SampleRate() int  { return testSampleRate }
func (f *fakeSpotter) Release()         {}

func (f *fakeSpotter) Process(audio.Frame) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fireNext {
		f.fireNext = false
		return 0, nil
	}
	return -1, nil
}

func (f *fakeSpotter) fire() {
	f.mu.Lock()
	f.fireNext = true
	f.mu.Unlock()
}

type fakeVAD struct {
	mu   sync.Mutex
	prob float64
}

func (f *fakeVAD) Process(audio.Frame) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prob, nil
}

func (f *fakeVAD) Reset()   {}
func (f *fakeVAD) Release() {}

func (f *fakeVAD) set(p float64) {
	f.mu.Lock()
	f.prob = p
	f.mu.Unlock()
}

type sttStep struct {
	text     string
	endpoint bool
}

type fakeSTT struct {
	mu        sync.Mutex
	steps     []sttStep
	flushText string
	processed int
	resets    int
}

func (f *fakeSTT) Process(audio.Frame) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed++
	if len(f.steps) == 0 {
		return "", false
	}
	step := f.steps[0]
	f.steps = f.steps[1:]
	return step.text, step.endpoint
}

func (f *fakeSTT) Flush() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	text := f.flushText
	f.flushText = ""
	return text
}

func (f *fakeSTT) Reset() {
	f.mu.Lock()
	f.resets++
	f.steps = nil
	f.mu.Unlock()
}

func (f *fakeSTT) Release() {}

func (f *fakeSTT) script(steps ...sttStep) {
	f.mu.Lock()
	f.steps = append(f.steps, steps...)
	f.mu.Unlock()
}

func (f *fakeSTT) processedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed
}

type fakeDialogue struct {
	mu       sync.Mutex
	requests []dialogue.TurnRequest
	results  []dialogue.Result
}

func (f *fakeDialogue) Converse(_ context.Context, req dialogue.TurnRequest) dialogue.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.results) == 0 {
		return dialogue.Result{Next: dialogue.ActionFinish}
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res
}

func (f *fakeDialogue) respond(results ...dialogue.Result) {
	f.mu.Lock()
	f.results = append(f.results, results...)
	f.mu.Unlock()
}

func (f *fakeDialogue) recorded() []dialogue.TurnRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dialogue.TurnRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// fakeQueue completes jobs on a goroutine like the real worker does; with
// manual set, jobs sit until the test fires their callbacks itself.
type fakeQueue struct {
	mu     sync.Mutex
	manual bool
	jobs   []*playback.Job
	stops  int
}

func (f *fakeQueue) Enqueue(job *playback.Job) bool {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	manual := f.manual
	f.mu.Unlock()
	if !manual && job.OnComplete != nil {
		go job.OnComplete()
	}
	return true
}

func (f *fakeQueue) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeQueue) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, j := range f.jobs {
		out = append(out, j.Text)
	}
	return out
}

func (f *fakeQueue) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fixture struct {
	sat       *Satellite
	wake      *fakeSpotter
	interrupt *fakeSpotter
	vad       *fakeVAD
	stt       *fakeSTT
	dialogue  *fakeDialogue
	queue     *fakeQueue
}

func newFixture(params Params) *fixture {
	if params.SampleRate == 0 {
		params = Params{
			SampleRate:       testSampleRate,
			FrameLength:      testFrameLength,
			VADThreshold:     0.5,
			PreSpeechTimeout: 5 * time.Second,
			FollowupGrace:    2 * time.Second,
			PreRollSeconds:   0.2,
			MaxFollowups:     params.MaxFollowups,
		}
	}
	fx := &fixture{
		wake:      &fakeSpotter{},
		interrupt: &fakeSpotter{},
		vad:       &fakeVAD{},
		stt:       &fakeSTT{},
		dialogue:  &fakeDialogue{},
		queue:     &fakeQueue{},
	}
	fx.sat = New(fx.wake, fx.interrupt, fx.vad, nil, nil, fx.stt, fx.dialogue, fx.queue, NopFeedback{}, params)
	return fx
}

func (fx *fixture) frame() audio.Frame {
	return make(audio.Frame, testFrameLength)
}

func (fx *fixture) waitForMode(t *testing.T, mode Mode) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fx.sat.State().Mode == mode.String() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("state is %q, wanted %q", fx.sat.State().Mode, mode)
}

func TestWakeCommandRoundTrip(t *testing.T) {
	fx := newFixture(Params{})
	fx.dialogue.respond(dialogue.Result{
		Messages: []dialogue.Message{{Text: "hi", Next: dialogue.ActionFinish}},
		Next:     dialogue.ActionFinish,
	})

	// Idle: pre-roll fills with silence.
	for i := 0; i < 5; i++ {
		fx.sat.OnFrame(fx.frame())
	}
	if got := fx.sat.State().Mode; got != "idle" {
		t.Fatalf("state before wake = %q", got)
	}

	fx.wake.fire()
	fx.sat.OnFrame(fx.frame())
	if got := fx.sat.State().Mode; got != "listening" {
		t.Fatalf("state after wake = %q", got)
	}
	turnID := fx.sat.State().ConversationID

	fx.vad.set(0.9)
	fx.stt.script(sttStep{text: "hello", endpoint: false}, sttStep{endpoint: true})
	fx.sat.OnFrame(fx.frame())
	fx.sat.OnFrame(fx.frame())

	fx.waitForMode(t, ModeIdle)

	reqs := fx.dialogue.recorded()
	if len(reqs) != 1 {
		t.Fatalf("dialogue requests = %d, want 1", len(reqs))
	}
	if reqs[0].Text == nil || *reqs[0].Text != "hello" {
		t.Errorf("request text = %v", reqs[0].Text)
	}
	if reqs[0].ConversationID != turnID {
		t.Errorf("request conversation id = %q, want %q", reqs[0].ConversationID, turnID)
	}
	if reqs[0].Speaker != "" {
		t.Errorf("request speaker = %q, want empty", reqs[0].Speaker)
	}
	if texts := fx.queue.texts(); len(texts) != 1 || texts[0] != "hi" {
		t.Errorf("playback jobs = %v, want [hi]", texts)
	}
	if got := fx.sat.State().ConversationID; got == turnID {
		t.Error("conversation id was not rotated after finish")
	}
}

func TestPreSpeechTimeoutBoundary(t *testing.T) {
	frameDur := audio.FrameDuration(testFrameLength, testSampleRate)
	fx := newFixture(Params{
		SampleRate:       testSampleRate,
		FrameLength:      testFrameLength,
		VADThreshold:     0.5,
		PreSpeechTimeout: 3 * frameDur,
		FollowupGrace:    time.Second,
		PreRollSeconds:   0.05,
	})

	fx.wake.fire()
	fx.sat.OnFrame(fx.frame())

	// Two silent frames: one frame short of the timeout.
	fx.sat.OnFrame(fx.frame())
	fx.sat.OnFrame(fx.frame())
	if got := fx.sat.State().Mode; got != "listening" {
		t.Fatalf("state one frame before timeout = %q", got)
	}

	fx.sat.OnFrame(fx.frame())
	if got := fx.sat.State().Mode; got != "idle" {
		t.Fatalf("state at timeout = %q", got)
	}
	if reqs := fx.dialogue.recorded(); len(reqs) != 0 {
		t.Errorf("abandonment should be silent, got %d dialogue requests", len(reqs))
	}
	if texts := fx.queue.texts(); len(texts) != 0 {
		t.Errorf("abandonment should not speak, got jobs %v", texts)
	}
}

func TestPreRollReplayDoesNotCountSilence(t *testing.T) {
	frameDur := audio.FrameDuration(testFrameLength, testSampleRate)
	fx := newFixture(Params{
		SampleRate:       testSampleRate,
		FrameLength:      testFrameLength,
		VADThreshold:     0.5,
		PreSpeechTimeout: 2 * frameDur,
		FollowupGrace:    time.Second,
		PreRollSeconds:   1.0, // far more buffered frames than the timeout allows
	})

	for i := 0; i < 20; i++ {
		fx.sat.OnFrame(fx.frame())
	}
	fx.wake.fire()
	fx.sat.OnFrame(fx.frame())

	// All 21 pre-roll frames (including the trigger frame) replay through the
	// listening path without tripping the 2-frame silence timeout.
	if got := fx.sat.State().Mode; got != "listening" {
		t.Fatalf("state after replay = %q", got)
	}
	if got := fx.stt.processedCount(); got != 21 {
		t.Errorf("transcriber saw %d frames, want 21", got)
	}
}

func TestWaitArmsGraceWindow(t *testing.T) {
	fx := newFixture(Params{})
	base := time.Now()
	now := base
	var nowMu sync.Mutex
	fx.sat.now = func() time.Time {
		nowMu.Lock()
		defer nowMu.Unlock()
		return now
	}
	fx.dialogue.respond(dialogue.Result{
		Messages: []dialogue.Message{{Text: "done. anything else?"}},
		Next:     dialogue.ActionWait,
	})

	fx.wake.fire()
	fx.sat.OnFrame(fx.frame())
	fx.vad.set(0.9)
	fx.stt.script(sttStep{text: "hello", endpoint: true})
	fx.sat.OnFrame(fx.frame())

	fx.waitForMode(t, ModeListening)

	// Silence inside the grace window must not accrue toward the timeout.
	fx.vad.set(0.0)
	frameDur := audio.FrameDuration(testFrameLength, testSampleRate)
	many := int(fx.sat.params.PreSpeechTimeout/frameDur) + 5
	for i := 0; i < many; i++ {
		fx.sat.OnFrame(fx.frame())
	}
	if got := fx.sat.State().Mode; got != "listening" {
		t.Fatalf("state during grace = %q", got)
	}

	// Past the deadline, silence counts again and the turn times out.
	nowMu.Lock()
	now = base.Add(fx.sat.params.FollowupGrace + time.Second)
	nowMu.Unlock()
	for i := 0; i < many; i++ {
		fx.sat.OnFrame(fx.frame())
	}
	if got := fx.sat.State().Mode; got != "idle" {
		t.Fatalf("state after grace elapsed = %q", got)
	}
}

func TestContinueFollowupChainIsBounded(t *testing.T) {
	fx := newFixture(Params{MaxFollowups: 3})
	// Initial response and every follow-up ask to continue with nothing to say.
	for i := 0; i < 10; i++ {
		fx.dialogue.respond(dialogue.Result{Next: dialogue.ActionContinue})
	}

	fx.wake.fire()
	fx.sat.OnFrame(fx.frame())
	fx.vad.set(0.9)
	fx.stt.script(sttStep{text: "run my morning routine", endpoint: true})
	fx.sat.OnFrame(fx.frame())

	fx.waitForMode(t, ModeIdle)

	reqs := fx.dialogue.recorded()
	if len(reqs) != 4 { // initial + 3 follow-ups
		t.Fatalf("dialogue requests = %d, want 4", len(reqs))
	}
	for i, req := range reqs[1:] {
		if req.Text != nil {
			t.Errorf("follow-up %d carried text %q", i+1, *req.Text)
		}
	}
}

func TestInterruptStopsPlaybackAndResets(t *testing.T) {
	fx := newFixture(Params{})
	fx.queue.manual = true // keep the satellite in Speaking
	fx.dialogue.respond(dialogue.Result{
		Messages: []dialogue.Message{{Text: "a very long answer"}},
		Next:     dialogue.ActionFinish,
	})

	fx.wake.fire()
	fx.sat.OnFrame(fx.frame())
	turnID := fx.sat.State().ConversationID
	fx.vad.set(0.9)
	fx.stt.script(sttStep{text: "tell me everything", endpoint: true})
	fx.sat.OnFrame(fx.frame())

	fx.waitForMode(t, ModeSpeaking)

	fx.interrupt.fire()
	fx.sat.OnFrame(fx.frame())

	if got := fx.sat.State().Mode; got != "idle" {
		t.Fatalf("state after interrupt = %q", got)
	}
	if fx.queue.stopCount() != 1 {
		t.Errorf("queue.Stop calls = %d, want 1", fx.queue.stopCount())
	}
	if got := fx.sat.State().ConversationID; got == turnID {
		t.Error("conversation id unchanged after interrupt")
	}
}

func TestStaleDialogueResponseDiscarded(t *testing.T) {
	fx := newFixture(Params{})
	fx.dialogue.respond(dialogue.Result{
		Messages: []dialogue.Message{{Text: "too late"}},
		Next:     dialogue.ActionWait,
	})

	// A response tagged with a conversation id the live turn no longer has
	// must change nothing.
	fx.sat.dispatchCommand("expired-turn", "hello", "")

	if got := fx.sat.State().Mode; got != "idle" {
		t.Fatalf("state after stale response = %q", got)
	}
	if texts := fx.queue.texts(); len(texts) != 0 {
		t.Errorf("stale response queued playback jobs %v", texts)
	}
}

func TestStalePlaybackCompletionDiscarded(t *testing.T) {
	fx := newFixture(Params{})
	fx.sat.onSpeechComplete("expired-turn", dialogue.ActionWait)
	if got := fx.sat.State().Mode; got != "idle" {
		t.Fatalf("state after stale completion = %q", got)
	}
}

func TestDialogueErrorSpeaksFallback(t *testing.T) {
	fx := newFixture(Params{})
	fx.dialogue.respond(dialogue.Result{Next: dialogue.ActionError})

	fx.wake.fire()
	fx.sat.OnFrame(fx.frame())
	fx.vad.set(0.9)
	fx.stt.script(sttStep{text: "hello", endpoint: true})
	fx.sat.OnFrame(fx.frame())

	fx.waitForMode(t, ModeIdle)

	texts := fx.queue.texts()
	if len(texts) != 1 || texts[0] != requestErrorFallback {
		t.Fatalf("playback jobs = %v, want the fallback apology", texts)
	}
}

func TestEmptyMessagesResolveImmediately(t *testing.T) {
	fx := newFixture(Params{})
	fx.dialogue.respond(dialogue.Result{Next: dialogue.ActionFinish})

	fx.wake.fire()
	fx.sat.OnFrame(fx.frame())
	fx.vad.set(0.9)
	fx.stt.script(sttStep{text: "hello", endpoint: true})
	fx.sat.OnFrame(fx.frame())

	fx.waitForMode(t, ModeIdle)
	if texts := fx.queue.texts(); len(texts) != 0 {
		t.Errorf("no playback expected, got %v", texts)
	}
}

func TestFlushTextJoinsTranscript(t *testing.T) {
	fx := newFixture(Params{})
	fx.wake.fire()
	fx.sat.OnFrame(fx.frame())
	fx.vad.set(0.9)
	fx.stt.script(sttStep{text: "turn on", endpoint: true})
	fx.stt.mu.Lock()
	fx.stt.flushText = "the lights"
	fx.stt.mu.Unlock()
	fx.sat.OnFrame(fx.frame())

	fx.waitForMode(t, ModeIdle)

	reqs := fx.dialogue.recorded()
	if len(reqs) != 1 || reqs[0].Text == nil || *reqs[0].Text != "turn on the lights" {
		t.Fatalf("dialogue requests = %+v, want one with flushed transcript", reqs)
	}
}

func TestEmptyTranscriptSkipsDialogue(t *testing.T) {
	fx := newFixture(Params{})
	fx.wake.fire()
	fx.sat.OnFrame(fx.frame())
	fx.vad.set(0.9)
	fx.stt.script(sttStep{endpoint: true})
	fx.sat.OnFrame(fx.frame())

	if got := fx.sat.State().Mode; got != "idle" {
		t.Fatalf("state after empty endpoint = %q", got)
	}
	if reqs := fx.dialogue.recorded(); len(reqs) != 0 {
		t.Errorf("empty transcript should not reach dialogue, got %d requests", len(reqs))
	}
}

func TestExternalTrigger(t *testing.T) {
	fx := newFixture(Params{})
	if !fx.sat.ExternalTrigger() {
		t.Fatal("trigger from idle should succeed")
	}
	if got := fx.sat.State().Mode; got != "listening" {
		t.Fatalf("state after trigger = %q", got)
	}
	if fx.sat.ExternalTrigger() {
		t.Error("trigger while listening should be rejected")
	}
}
