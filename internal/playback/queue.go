// Package playback serializes speech synthesis and audio output through a
// single worker, with immediate cancellation for barge-in.
package playback

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// Synthesizer renders text to PCM at a fixed sample rate.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]int16, error)
	SampleRate() int
	Release()
}

// OutputStream accepts floating-point chunks at the synthesizer's rate.
type OutputStream interface {
	Write(chunk []float32) error
	// Abort drops queued device audio and tears the stream down immediately.
	Abort()
	Close() error
}

// OutputDevice opens output streams; one stream lives per playback job.
type OutputDevice interface {
	Open(sampleRate int) (OutputStream, error)
}

// Job is one utterance to speak. OnComplete fires only when the job played to
// the end: interrupted or failed jobs never invoke it.
type Job struct {
	Text       string
	OnComplete func()
}

// chunkSamples is the per-write chunk size; small enough that a stop request
// lands within tens of milliseconds.
const chunkSamples = 2048

// sentinel closes the worker loop.
var sentinel = &Job{}

// Queue is a single-consumer playback worker. Jobs play strictly in enqueue
// order; at most one is active at a time.
type Queue struct {
	synth  Synthesizer
	device OutputDevice

	jobs     chan *Job
	stopFlag atomic.Bool
	playing  atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewQueue starts the worker.
func NewQueue(synth Synthesizer, device OutputDevice) *Queue {
	q := &Queue{
		synth:  synth,
		device: device,
		jobs:   make(chan *Job, 64),
		done:   make(chan struct{}),
	}
	go q.worker()
	return q
}

// Enqueue appends a job without blocking. A full queue drops the job, which
// only happens if the dialogue service floods messages faster than they can
// be spoken.
func (q *Queue) Enqueue(job *Job) bool {
	select {
	case q.jobs <- job:
		return true
	default:
		log.Printf("playback: queue full, dropping job %q", job.Text)
		return false
	}
}

// Stop aborts the active job and discards all not-yet-started jobs. It is
// idempotent and safe to call concurrently with an active job.
func (q *Queue) Stop() {
	q.stopFlag.Store(true)
	q.drainPending()
}

// Playing reports whether a job is currently synthesizing or streaming.
func (q *Queue) Playing() bool { return q.playing.Load() }

// Close shuts the worker down after the current job, discarding the rest of
// the queue, and releases the synthesizer.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.jobs <- sentinel
		<-q.done
		q.synth.Release()
	})
}

// drainPending removes queued jobs, preserving a sentinel so shutdown still
// completes if a Stop races with Close.
func (q *Queue) drainPending() {
	for {
		select {
		case job := <-q.jobs:
			if job == sentinel {
				q.jobs <- sentinel
				return
			}
		default:
			return
		}
	}
}

func (q *Queue) worker() {
	defer close(q.done)
	for job := range q.jobs {
		if job == sentinel {
			break
		}
		q.stopFlag.Store(false)
		q.playing.Store(true)
		interrupted := q.play(job)
		if !interrupted && job.OnComplete != nil {
			invokeCallback(job.OnComplete)
		}
		q.playing.Store(false)
		q.stopFlag.Store(false)
	}
	// Drain leftovers so shutdown never blocks on a full queue.
	for {
		select {
		case <-q.jobs:
		default:
			return
		}
	}
}

// play synthesizes and streams one job, checking the stop flag before every
// chunk write. It reports whether the job was interrupted or failed.
func (q *Queue) play(job *Job) bool {
	pcm, err := q.synth.Synthesize(context.Background(), job.Text)
	if err != nil {
		log.Printf("playback: synthesis failed: %v", err)
		return true
	}
	if len(pcm) == 0 {
		return false
	}

	stream, err := q.device.Open(q.synth.SampleRate())
	if err != nil {
		log.Printf("playback: open output stream: %v", err)
		return true
	}

	interrupted := false
	for i := 0; i < len(pcm); i += chunkSamples {
		if q.stopFlag.Load() {
			interrupted = true
			stream.Abort()
			break
		}
		end := i + chunkSamples
		if end > len(pcm) {
			end = len(pcm)
		}
		chunk := make([]float32, end-i)
		for j, s := range pcm[i:end] {
			chunk[j] = float32(s) / 32768.0
		}
		if err := stream.Write(chunk); err != nil {
			log.Printf("playback: stream write failed: %v", err)
			interrupted = true
			stream.Abort()
			break
		}
	}
	if !interrupted {
		if err := stream.Close(); err != nil {
			log.Printf("playback: close output stream: %v", err)
		}
	}
	return interrupted
}

// invokeCallback swallows callback panics so a bad completion handler cannot
// kill the worker.
func invokeCallback(cb func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("playback: completion callback panicked: %v", r)
		}
	}()
	cb()
}
