package common

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RequestLimiter paces outgoing REST calls and tracks the weight the
// exchange reports back in response headers.
type RequestLimiter struct {
	limiter *rate.Limiter

	weightLimit int
	usedWeight  int
	lastReset   time.Time
	window      time.Duration
	mu          sync.RWMutex
}

// NewRequestLimiter builds a limiter allowing roughly weightLimit units per
// window, with a small burst so bursts of reads do not stall.
func NewRequestLimiter(weightLimit int, window time.Duration) *RequestLimiter {
	perSecond := float64(weightLimit) / window.Seconds()
	return &RequestLimiter{
		limiter:     rate.NewLimiter(rate.Limit(perSecond), weightLimit/10+1),
		weightLimit: weightLimit,
		window:      window,
		lastReset:   time.Now(),
	}
}

// Wait blocks until the next request may be sent or the context is done.
func (rl *RequestLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// ObserveHeader updates used weight from an exchange response header value.
func (rl *RequestLimiter) ObserveHeader(headerValue string) {
	if headerValue == "" {
		return
	}
	weight, err := strconv.Atoi(headerValue)
	if err != nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastReset) >= rl.window {
		rl.usedWeight = 0
		rl.lastReset = time.Now()
	}
	rl.usedWeight = weight

	pct := float64(rl.usedWeight) / float64(rl.weightLimit) * 100
	if pct >= 95 {
		log.Printf("rate limit critical: %d/%d (%.1f%%)", rl.usedWeight, rl.weightLimit, pct)
	} else if pct >= 80 {
		log.Printf("rate limit warning: %d/%d (%.1f%%)", rl.usedWeight, rl.weightLimit, pct)
	}
}

// Usage returns the currently tracked weight and limit.
func (rl *RequestLimiter) Usage() (used, limit int) {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if time.Since(rl.lastReset) >= rl.window {
		return 0, rl.weightLimit
	}
	return rl.usedWeight, rl.weightLimit
}
