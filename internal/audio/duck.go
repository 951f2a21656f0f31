// Package audio lowers other PulseAudio streams while the assistant speaks
// and restores them afterwards. Everything here is best-effort: a missing
// pactl must never break playback.
package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

const maxVolumePercent = 150

type streamInfo struct {
	ID      int
	Volume  int
	AppName string
}

type fadeTarget struct {
	id   int
	from int
	to   int
}

// Ducker fades sink-inputs other than our own down and back. selfNames holds
// the application.name values to leave alone.
type Ducker struct {
	mu          sync.Mutex
	active      bool
	selfNames   []string
	originalVol map[int]int
	minVolume   int
}

func NewDucker(selfNames []string, minVolume int) *Ducker {
	if minVolume < 0 {
		minVolume = 0
	}
	if minVolume > maxVolumePercent {
		minVolume = maxVolumePercent
	}
	return &Ducker{
		selfNames:   append([]string(nil), selfNames...),
		originalVol: make(map[int]int),
		minVolume:   minVolume,
	}
}

// Duck lowers every foreign stream to current*factor, clamped to minVolume,
// remembering the original levels. Idempotent while active.
func (d *Ducker) Duck(ctx context.Context, factor float64, fade time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := listStreams(ctx)
	if err != nil {
		return fmt.Errorf("list sink-inputs: %w", err)
	}

	d.originalVol = make(map[int]int)
	var targets []fadeTarget
	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		to := int(math.Round(math.Max(float64(s.Volume)*factor, float64(d.minVolume))))
		d.originalVol[s.ID] = s.Volume
		targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: to})
	}

	if len(targets) > 0 {
		if err := fadeInputs(ctx, targets, fade); err != nil {
			return err
		}
	}
	d.active = true
	return nil
}

// Restore brings foreign streams back to their pre-duck levels. Streams that
// appeared after Duck are left as they are.
func (d *Ducker) Restore(ctx context.Context, fade time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := listStreams(ctx)
	if err != nil {
		return fmt.Errorf("list sink-inputs: %w", err)
	}

	var targets []fadeTarget
	for _, s := range streams {
		if d.isSelf(s) {
			continue
		}
		orig, ok := d.originalVol[s.ID]
		if !ok {
			continue
		}
		targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: orig})
	}

	if len(targets) > 0 {
		if err := fadeInputs(ctx, targets, fade); err != nil {
			return err
		}
	}
	d.originalVol = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelf(s streamInfo) bool {
	for _, name := range d.selfNames {
		if s.AppName == name {
			return true
		}
	}
	return false
}

func fadeInputs(ctx context.Context, targets []fadeTarget, fade time.Duration) error {
	const minStep = 10 * time.Millisecond

	steps := int(fade / minStep)
	if steps < 1 {
		steps = 1
	}
	stepDur := fade / time.Duration(steps)

	for i := 0; i <= steps; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		frac := float64(i) / float64(steps)
		for _, t := range targets {
			v := int(math.Round(float64(t.from) + float64(t.to-t.from)*frac))
			if err := setSinkInputVolume(ctx, t.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", t.id, err)
			}
		}
		if i < steps {
			time.Sleep(stepDur)
		}
	}
	return nil
}

func listStreams(ctx context.Context) ([]streamInfo, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, err
	}

	blocks := strings.Split(string(out), "Sink Input #")
	var res []streamInfo
	for _, block := range blocks[1:] {
		nl := strings.IndexByte(block, '\n')
		if nl <= 0 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(block[:nl]))
		if err != nil {
			continue
		}

		s := streamInfo{ID: id}
		for _, line := range strings.Split(block[nl+1:], "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					s.Volume, _ = strconv.Atoi(m[1])
				}
			}
			if strings.HasPrefix(line, "application.name =") && s.AppName == "" {
				if parts := strings.SplitN(line, "\"", 3); len(parts) >= 2 {
					s.AppName = parts[1]
				}
			}
		}
		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}
	return res, nil
}

func setSinkInputVolume(ctx context.Context, id, percent int) error {
	if percent < 0 {
		percent = 0
	}
	if percent > maxVolumePercent {
		percent = maxVolumePercent
	}
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume",
		strconv.Itoa(id), fmt.Sprintf("%d%%", percent)).Run()
}
