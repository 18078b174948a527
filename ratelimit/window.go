package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow 滑动窗口计数器
// 记录窗口内已放行请求的时间戳，用于突发保护
// 过期条目在每次检查时惰性清除，临界区为 O(窗口内请求数)
type SlidingWindow struct {
	limit  int
	window time.Duration

	mu       sync.Mutex
	requests []time.Time
}

// NewSlidingWindow 创建滑动窗口计数器
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:  limit,
		window: window,
	}
}

// Allow 检查当前请求是否被放行
// 放行时将当前时间记入窗口并返回 (true, 0)；
// 拒绝时返回 (false, retryAfter)，retryAfter 为最早条目滑出窗口的时间
func (w *SlidingWindow) Allow() (bool, time.Duration) {
	return w.allowAt(time.Now())
}

// allowAt 以指定时间点检查，便于测试
func (w *SlidingWindow) allowAt(now time.Time) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 清除过期条目
	cutoff := now.Add(-w.window)
	kept := w.requests[:0]
	for _, t := range w.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.requests = kept

	if len(w.requests) < w.limit {
		w.requests = append(w.requests, now)
		return true, 0
	}

	// 条目按时间递增，最早的条目决定下一个空位
	oldest := w.requests[0]
	retryAfter := oldest.Add(w.window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return false, retryAfter
}

// Len 返回窗口内的当前条目数（含未过期条目）
func (w *SlidingWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := time.Now().Add(-w.window)
	n := 0
	for _, t := range w.requests {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
