package notify

import (
	"time"

	log "log/slog"

	"github.com/faiface/beep"
	"github.com/faiface/beep/generators"
	"github.com/faiface/beep/speaker"
)

const earconRate = beep.SampleRate(44100)

// Chirp plays a short tone to acknowledge the listen gesture. Failures are
// logged and swallowed; the earcon is never load-bearing.
func Chirp() {
	tone, err := generators.SinTone(earconRate, 880)
	if err != nil {
		log.Debug("Earcon unavailable", "err", err)
		return
	}

	if err := speaker.Init(earconRate, earconRate.N(time.Second/10)); err != nil {
		log.Debug("Earcon speaker init failed", "err", err)
		return
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(beep.Take(earconRate.N(120*time.Millisecond), tone), beep.Callback(func() {
		close(done)
	})))
	<-done
}
