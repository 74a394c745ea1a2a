package scraper

import (
	"context"
	"log/slog"

	"github.com/use-agent/shopscrape/browser"
)

type fingerprint struct {
	proxy    string
	headless bool
}

// SessionManager owns at most one browser session and decides whether an
// acquire can reuse it. It is not safe for concurrent use.
type SessionManager struct {
	launcher   browser.Launcher
	reuse      bool
	base       browser.Options
	userAgents []string
	pacer      *Pacer
	logger     *slog.Logger
	metrics    *Metrics

	current browser.Session
	fp      fingerprint
}

// NewSessionManager returns a manager launching sessions through l. When
// reuse is set, a live session with a matching proxy and headless mode is
// handed out again instead of launching a new browser.
func NewSessionManager(l browser.Launcher, reuse bool, base browser.Options, userAgents []string, pacer *Pacer, logger *slog.Logger, metrics *Metrics) *SessionManager {
	if len(userAgents) == 0 {
		userAgents = browser.DefaultUserAgents
	}
	return &SessionManager{
		launcher:   l,
		reuse:      reuse,
		base:       base,
		userAgents: userAgents,
		pacer:      pacer,
		logger:     logger,
		metrics:    metrics,
	}
}

// Acquire returns a session for proxy and headless mode. The bool result
// is true when an existing session was reused. A reused session that fails
// its liveness probe is replaced silently.
func (m *SessionManager) Acquire(ctx context.Context, proxy string, headless bool) (browser.Session, bool, error) {
	fp := fingerprint{proxy: proxy, headless: headless}

	if m.current != nil {
		switch {
		case !m.reuse:
			m.discard("reuse disabled")
		case m.fp != fp:
			m.discard("session settings changed")
		default:
			if err := m.current.Ping(ctx); err != nil {
				m.logger.Info("kept session is gone, relaunching", "error", err)
				m.discard("liveness probe failed")
			} else {
				m.logger.Debug("reusing browser session")
				m.metrics.IncSession("reused")
				return m.current, true, nil
			}
		}
	}

	opts := m.base
	opts.Proxy = proxy
	opts.Headless = headless
	opts.UserAgent = m.userAgents[m.pacer.IntN(len(m.userAgents))]

	s, err := m.launcher.Launch(ctx, opts)
	if err != nil {
		return nil, false, err
	}
	m.metrics.IncSession("launched")
	m.logger.Info("browser session launched", "headless", headless, "proxy", proxy != "")

	m.current = s
	m.fp = fp
	return s, false, nil
}

// Release ends the current attempt's use of the session. With keepOpen the
// session stays up for the next Acquire; otherwise it is torn down.
func (m *SessionManager) Release(keepOpen bool) {
	if keepOpen && m.reuse {
		return
	}
	m.discard("released")
}

// Close tears down the current session, if any. It is safe to call more
// than once.
func (m *SessionManager) Close() {
	m.discard("closed")
}

// Current returns the live session, or nil.
func (m *SessionManager) Current() browser.Session {
	return m.current
}

func (m *SessionManager) discard(reason string) {
	if m.current == nil {
		return
	}
	if err := m.current.Close(); err != nil {
		m.logger.Debug("error closing browser session", "reason", reason, "error", err)
	}
	m.current = nil
	m.fp = fingerprint{}
}
