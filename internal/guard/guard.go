// Package guard gates every monitoring channel on the crisis allowlist.
//
// Calling code must check the relevant predicate and act on its boolean in
// the same synchronous execution, before capturing anything, so there is no
// window between "checked" and "about to record". No predicate logs, stores,
// or otherwise records the URL it is asked about: a crisis visit must leave
// no artifact in any monitoring channel.
package guard

import (
	"safesignal/internal/allowlist"
)

// CrisisGuard answers, per monitoring channel, whether a URL may be recorded.
// It is stateless over the immutable matcher and safe for concurrent use.
type CrisisGuard struct {
	matcher *allowlist.Matcher
}

// NewCrisisGuard creates the guard over a matcher.
func NewCrisisGuard(matcher *allowlist.Matcher) *CrisisGuard {
	return &CrisisGuard{matcher: matcher}
}

// ShouldBlock is the master predicate: true for any crisis URL.
func (g *CrisisGuard) ShouldBlock(url string) bool {
	return g.matcher.IsCrisisURL(url)
}

// ShouldBlockScreenshot reports whether screenshot capture must be skipped.
func (g *CrisisGuard) ShouldBlockScreenshot(url string) bool {
	return g.matcher.IsCrisisURL(url)
}

// ShouldBlockURLLogging reports whether browsing-history logging must be skipped.
func (g *CrisisGuard) ShouldBlockURLLogging(url string) bool {
	return g.matcher.IsCrisisURL(url)
}

// ShouldBlockTimeTracking reports whether time tracking must be skipped.
func (g *CrisisGuard) ShouldBlockTimeTracking(url string) bool {
	return g.matcher.IsCrisisURL(url)
}

// ShouldBlockNotification reports whether guardian notifications about the
// visit must be suppressed.
func (g *CrisisGuard) ShouldBlockNotification(url string) bool {
	return g.matcher.IsCrisisURL(url)
}

// ShouldBlockAnalytics reports whether analytics events must be suppressed.
func (g *CrisisGuard) ShouldBlockAnalytics(url string) bool {
	return g.matcher.IsCrisisURL(url)
}
