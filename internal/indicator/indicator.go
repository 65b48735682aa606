// Package indicator plays audible cues when capture starts or stops and when
// the interview completes.
package indicator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rbright/rehearse/internal/config"
)

// Player emits cues asynchronously, one at a time.
type Player struct {
	cfg    config.IndicatorConfig
	logger *slog.Logger
	play   func(context.Context, Cue) error

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	wg     sync.WaitGroup
}

// NewPlayer creates a cue player. Cues are dropped when cfg.Sound is false.
func NewPlayer(cfg config.IndicatorConfig, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{cfg: cfg, logger: logger, ctx: ctx, cancel: cancel}
	p.play = p.playCue
	return p
}

func (p *Player) Started()   { p.emit(CueStart) }
func (p *Player) Stopped()   { p.emit(CueStop) }
func (p *Player) Completed() { p.emit(CueComplete) }
func (p *Player) Failed()    { p.emit(CueError) }

// Close cancels pending playback and waits for it to drain.
func (p *Player) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Player) emit(kind Cue) {
	if !p.cfg.Sound || p.ctx.Err() != nil {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.mu.Lock()
		defer p.mu.Unlock()

		if err := p.play(p.ctx, kind); err != nil {
			p.logger.Debug("cue playback failed", "cue", kind.String(), "error", err.Error())
		}
	}()
}

func (p *Player) playCue(ctx context.Context, kind Cue) error {
	if path := expandUserPath(p.cuePath(kind)); path != "" {
		err := playCueFile(ctx, path)
		if err == nil {
			return nil
		}
		p.logger.Debug("cue file failed; using synthesized tone", "path", path, "error", err.Error())
	}

	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return playSynthCue(ctx, samples)
}

func (p *Player) cuePath(kind Cue) string {
	switch kind {
	case CueStart:
		return p.cfg.StartFile
	case CueStop:
		return p.cfg.StopFile
	case CueComplete:
		return p.cfg.CompleteFile
	case CueError:
		return p.cfg.ErrorFile
	default:
		return ""
	}
}
