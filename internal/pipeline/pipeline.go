// Package pipeline drives the transcribe -> chat -> synthesize sequence for
// one finished capture. The three remote operations run strictly in order and
// the run short-circuits on the first failure.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	log "log/slog"

	"murmur/internal/capture"
)

// ErrNoSpeech marks an empty transcript. It is a benign outcome, not a
// failure: the run halts before chat without escalating.
var ErrNoSpeech = errors.New("no speech detected")

type Transcriber interface {
	Transcribe(ctx context.Context, art capture.Artifact) (string, error)
}

type Responder interface {
	Reply(ctx context.Context, text string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Result accumulates whatever the run produced before it stopped. Fields
// populated before a failing step stay populated.
type Result struct {
	Transcript string
	Reply      string
	Speech     []byte
}

type Runner struct {
	stt  Transcriber
	chat Responder
	tts  Synthesizer

	processing atomic.Bool
}

func NewRunner(stt Transcriber, chat Responder, tts Synthesizer) *Runner {
	return &Runner{stt: stt, chat: chat, tts: tts}
}

// Processing reports whether a run is in flight.
func (r *Runner) Processing() bool {
	return r.processing.Load()
}

// Run executes the three steps in sequence. The processing flag brackets the
// whole run and is cleared on every exit path.
func (r *Runner) Run(ctx context.Context, art capture.Artifact) (Result, error) {
	r.processing.Store(true)
	defer r.processing.Store(false)

	var res Result

	transcript, err := r.stt.Transcribe(ctx, art)
	if err != nil {
		return res, fmt.Errorf("transcribe: %w", err)
	}
	res.Transcript = transcript

	if strings.TrimSpace(transcript) == "" {
		return res, ErrNoSpeech
	}
	log.Info("Transcribed", "text", transcript)

	reply, err := r.chat.Reply(ctx, transcript)
	if err != nil {
		return res, fmt.Errorf("chat: %w", err)
	}
	res.Reply = reply
	log.Info("Reply ready", "text", reply)

	speech, err := r.tts.Synthesize(ctx, reply)
	if err != nil {
		return res, fmt.Errorf("synthesize: %w", err)
	}
	res.Speech = speech

	return res, nil
}
