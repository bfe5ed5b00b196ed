package push

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// GarbageCollector reclaims abandoned push sessions and their staging areas
type GarbageCollector struct {
	o        *Orchestrator
	interval time.Duration
	ttl      time.Duration
	l        *zap.Logger
}

// SweepReport summarizes a sweep
type SweepReport struct {
	Sessions int `json:"sessions"`
	Orphans  int `json:"orphans"`
}

// GarbageCollector builds a garbage collector for the sessions of this orchestrator
func (o *Orchestrator) GarbageCollector(opts ...GCOption) *GarbageCollector {
	g := &GarbageCollector{
		o:        o,
		interval: DefaultGCInterval,
		ttl:      o.ttl,
		l:        o.l.With(zap.String("component", "gc")),
	}
	for _, apply := range opts {
		apply(g)
	}
	return g
}

// Run sweeps at every interval, until the context is done
func (g *GarbageCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.l.Info("garbage collector started", zap.Duration("interval", g.interval), zap.Duration("ttl", g.ttl))
	defer g.l.Info("garbage collector stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.Sweep(ctx); err != nil {
				g.l.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep reclaims every session older than the TTL, whatever its state, then removes the staging
// directories older than the TTL which belong to no session.
//
// Sessions with a commit in progress are left to the next sweep.
func (g *GarbageCollector) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	t0 := time.Now()

	for _, expired := range g.o.sessions.Expired(g.ttl) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sess, removed := g.o.sessions.Reclaim(expired.Token)
		if !removed {
			continue
		}
		if err := g.o.staging.Remove(sess.Token); err != nil {
			g.l.Warn("could not remove staging area", zap.String("token", sess.Token), zap.Error(err))
		}
		g.l.Info("session reclaimed",
			zap.String("token", sess.Token),
			zap.Stringer("dataset", sess.Dataset),
			zap.Stringer("state", sess.State),
			zap.Duration("age", sess.Age(g.o.sessions.Now())),
		)
		g.o.reclaimed("expired")
		report.Sessions++
	}

	dirs, err := g.o.staging.List()
	if err != nil {
		return report, err
	}
	now := g.o.sessions.Now()
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if g.o.sessions.Has(dir.Token) || now.Sub(dir.ModTime) <= g.ttl {
			continue
		}
		if err := g.o.staging.Remove(dir.Token); err != nil {
			g.l.Warn("could not remove orphan staging area", zap.String("token", dir.Token), zap.Error(err))
			continue
		}
		g.l.Info("orphan staging area removed", zap.String("token", dir.Token))
		g.o.reclaimed("orphan")
		report.Orphans++
	}

	if report.Sessions > 0 || report.Orphans > 0 {
		g.l.Info("sweep done",
			zap.Int("sessions", report.Sessions),
			zap.Int("orphans", report.Orphans),
			zap.Duration("elapsed", time.Since(t0)),
		)
	}
	return report, nil
}
