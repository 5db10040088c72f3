// Package sched pushes periodic summary digests to the owner on a cron
// schedule.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/tgmon/internal/summarize"
)

// Notifier delivers one text to the owner.
type Notifier interface {
	Send(text string) error
}

// Config mirrors the scheduled_push config block.
type Config struct {
	Enabled bool
	Cron    string
	Hours   int
}

// Pusher evaluates the cron expression once a minute and runs the per-group
// digest when due.
type Pusher struct {
	cfg      Config
	sum      *summarize.Summarizer
	notifier Notifier
	cron     *gronx.Gronx
}

// New builds a pusher.
func New(cfg Config, sum *summarize.Summarizer, notifier Notifier) *Pusher {
	if cfg.Hours <= 0 {
		cfg.Hours = 24
	}
	return &Pusher{cfg: cfg, sum: sum, notifier: notifier, cron: gronx.New()}
}

// Run blocks until ctx is canceled. Returns immediately when disabled or
// misconfigured.
func (p *Pusher) Run(ctx context.Context) {
	if !p.cfg.Enabled || p.notifier == nil {
		return
	}
	if !p.cron.IsValid(p.cfg.Cron) {
		slog.Error("invalid scheduled_push cron, push disabled", "cron", p.cfg.Cron)
		return
	}
	slog.Info("scheduled push armed", "cron", p.cfg.Cron, "hours", p.cfg.Hours)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	var lastFired string
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			minute := now.Format("2006-01-02 15:04")
			if minute == lastFired {
				continue
			}
			due, err := p.cron.IsDue(p.cfg.Cron, now)
			if err != nil || !due {
				continue
			}
			lastFired = minute
			p.push(ctx)
		}
	}
}

// push runs the digest and delivers it. Failures are actively reported to
// the owner with a follow-up message instead of dying silently.
func (p *Pusher) push(ctx context.Context) {
	slog.Info("scheduled push firing")
	report := p.sum.SummarizeAllGroups(ctx, p.cfg.Hours, true, nil)

	if strings.HasPrefix(report, "❌") {
		p.reportFailure(report)
		return
	}
	if err := p.notifier.Send(report); err != nil {
		p.reportFailure(err.Error())
	}
}

func (p *Pusher) reportFailure(detail string) {
	slog.Error("scheduled push failed", "detail", detail)
	msg := fmt.Sprintf("⚠️ 定时摘要推送失败:\n%s", detail)
	if err := p.notifier.Send(msg); err != nil {
		slog.Error("failure notice delivery failed", "error", err)
	}
}
