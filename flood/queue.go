package flood

import (
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/bulwark/clog"
)

// ========================================
// 待冲刷队列 (Pending Queue)
// ========================================

// Enqueue 将消息放入队列等待解封后冲刷
func (g *gate) Enqueue(chatID int64, payload any, priority int) string {
	msg := QueuedMessage{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Payload:   payload,
		Priority:  priority,
		CreatedAt: time.Now(),
	}

	g.mu.Lock()
	if len(g.queue) >= g.cfg.MaxQueue {
		g.evictLocked()
	}
	g.queue = append(g.queue, msg)
	depth := len(g.queue)
	g.mu.Unlock()

	if g.logger != nil {
		g.logger.Debug("message queued",
			clog.String("message_id", msg.ID),
			clog.Int64("chat_id", chatID),
			clog.Int("queue_depth", depth))
	}
	return msg.ID
}

// evictLocked 淘汰最低优先级中最旧的一条，调用方持锁
// 队列按入队顺序存放，第一条命中最低优先级的即最旧
func (g *gate) evictLocked() {
	if len(g.queue) == 0 {
		return
	}

	lowest := g.queue[0].Priority
	for _, m := range g.queue[1:] {
		if m.Priority < lowest {
			lowest = m.Priority
		}
	}

	for i, m := range g.queue {
		if m.Priority == lowest {
			if g.logger != nil {
				g.logger.Warn("queue full, evicting message",
					clog.String("message_id", m.ID),
					clog.Int("priority", m.Priority))
			}
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
			return
		}
	}
}

// DrainReady 取出当前可发送的队列消息
func (g *gate) DrainReady() []QueuedMessage {
	now := time.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	// 全局封锁期间不冲刷
	if now.Before(g.blockedUntil) {
		return nil
	}

	var ready []QueuedMessage
	var kept []QueuedMessage
	for _, m := range g.queue {
		if until, ok := g.blockedChats[m.ChatID]; ok && now.Before(until) {
			kept = append(kept, m)
			continue
		}
		ready = append(ready, m)
	}
	g.queue = kept
	return ready
}
