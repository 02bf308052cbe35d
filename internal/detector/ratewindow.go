package detector

import "time"

// rateTracker counts frames per source MAC over a sliding window. It is only
// touched from the detection goroutine, so it carries no lock.
type rateTracker struct {
	window time.Duration
	perMAC map[string][]time.Time
}

func newRateTracker(window time.Duration) *rateTracker {
	return &rateTracker{
		window: window,
		perMAC: make(map[string][]time.Time),
	}
}

// Observe records one frame for the MAC and returns the per-second rate over
// the window after trimming expired samples.
func (r *rateTracker) Observe(mac string, now time.Time) float64 {
	cutoff := now.Add(-r.window)
	samples := r.perMAC[mac]

	trimmed := samples[:0]
	for _, ts := range samples {
		if ts.After(cutoff) {
			trimmed = append(trimmed, ts)
		}
	}
	trimmed = append(trimmed, now)
	r.perMAC[mac] = trimmed

	return float64(len(trimmed)) / r.window.Seconds()
}

// prune drops MACs whose samples have all expired; called opportunistically
// so idle sources do not accumulate forever.
func (r *rateTracker) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	for mac, samples := range r.perMAC {
		if len(samples) == 0 || !samples[len(samples)-1].After(cutoff) {
			delete(r.perMAC, mac)
		}
	}
}
