package realtime

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/review-feed/config"
	"github.com/d60-Lab/review-feed/pkg/feedevent"
	"github.com/d60-Lab/review-feed/pkg/logger"
)

// Config 推送中心参数
type Config struct {
	QueueSize     int
	Workers       int
	SessionBuffer int
	PongWait      time.Duration
	PingPeriod    time.Duration
	WriteWait     time.Duration
}

// ConfigFrom maps the realtime config section.
func ConfigFrom(rc config.RealtimeConfig) Config {
	return Config{
		QueueSize:     rc.QueueSize,
		Workers:       rc.Workers,
		SessionBuffer: rc.SessionBuffer,
		PongWait:      rc.PongWait,
		PingPeriod:    rc.PingPeriod,
		WriteWait:     rc.WriteWait,
	}
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 4096
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.SessionBuffer <= 0 {
		c.SessionBuffer = 256
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	return c
}

type targetKind int

const (
	targetAll targetKind = iota + 1
	targetTopic
	targetUser
)

type dispatchJob struct {
	kind   targetKind
	target string
	frame  []byte
	event  string
	enqAt  time.Time
}

// Stats is a sampled view of the hub.
type Stats struct {
	Sessions  int   `json:"sessions"`
	Users     int   `json:"users"`
	Topics    int   `json:"topics"`
	QueueLen  int   `json:"queue_len"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
}

// Hub 会话注册表 + 异步广播队列（尽力投递，不阻塞调用方）
type Hub struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[*Session]struct{}
	byUser   map[string]map[*Session]struct{}
	topics   map[string]map[*Session]struct{}

	queue     chan dispatchJob
	metricsCh chan time.Duration
	seq       atomic.Uint64
	delivered atomic.Int64
	dropped   atomic.Int64
	stopped   atomic.Bool
}

func NewHub(cfg Config) *Hub {
	cfg = cfg.withDefaults()
	return &Hub{
		cfg:       cfg,
		sessions:  make(map[*Session]struct{}),
		byUser:    make(map[string]map[*Session]struct{}),
		topics:    make(map[string]map[*Session]struct{}),
		queue:     make(chan dispatchJob, cfg.QueueSize),
		metricsCh: make(chan time.Duration, 65536),
	}
}

// Start launches the dispatch workers and returns the stop function.
func (h *Hub) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = h.cfg.Workers
	}
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case job := <-h.queue:
					h.dispatch(job)
				case <-stopCh:
					return
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		h.stopped.Store(true)
		// 给队列一个自然排空的窗口
		drain := time.NewTimer(2 * time.Second)
		defer drain.Stop()
	wait:
		for len(h.queue) > 0 {
			select {
			case <-ctx.Done():
				break wait
			case <-drain.C:
				break wait
			case <-time.After(20 * time.Millisecond):
			}
		}
		close(stopCh)
		wg.Wait()
		h.closeAll()
		return nil
	}
}

// Register 会话上线（onConnect）
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; ok {
		h.mu.Unlock()
		return
	}
	s.hub = h
	h.sessions[s] = struct{}{}
	if h.byUser[s.userID] == nil {
		h.byUser[s.userID] = make(map[*Session]struct{})
	}
	h.byUser[s.userID][s] = struct{}{}
	h.mu.Unlock()

	logger.Debug("session registered", zap.String("session", s.id), zap.String("user", s.userID))
	h.broadcastPresence()
}

// Unregister 会话下线（onDisconnect），可重复调用
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s)
	if set := h.byUser[s.userID]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(h.byUser, s.userID)
		}
	}
	for topic := range s.topics {
		h.removeFromTopic(topic, s)
	}
	s.topics = nil
	h.mu.Unlock()

	s.close()
	logger.Debug("session unregistered", zap.String("session", s.id), zap.String("user", s.userID))
	h.broadcastPresence()
}

// removeFromTopic requires h.mu held.
func (h *Hub) removeFromTopic(topic string, s *Session) {
	if set := h.topics[topic]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
}

// Subscribe adds s to topic. Unknown sessions are ignored.
func (h *Hub) Subscribe(s *Session, topic string) bool {
	if topic == "" {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return false
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Session]struct{})
	}
	h.topics[topic][s] = struct{}{}
	if s.topics == nil {
		s.topics = make(map[string]struct{})
	}
	s.topics[topic] = struct{}{}
	return true
}

func (h *Hub) Unsubscribe(s *Session, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromTopic(topic, s)
	delete(s.topics, topic)
}

// Topics returns the topics s is subscribed to.
func (h *Hub) Topics(s *Session) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// OnlineUsers returns the distinct connected user ids, sorted.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.byUser))
	for u := range h.byUser {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (h *Hub) broadcastPresence() {
	if h.stopped.Load() {
		return
	}
	h.BroadcastAll(feedevent.UsersOnline, feedevent.UsersOnlinePayload{Users: h.OnlineUsers()})
}

// BroadcastAll delivers to every connected session.
func (h *Hub) BroadcastAll(event string, payload any) { h.enqueue(targetAll, "", event, payload) }

// BroadcastToTopic delivers to sessions subscribed to topic.
func (h *Hub) BroadcastToTopic(topic, event string, payload any) {
	h.enqueue(targetTopic, topic, event, payload)
}

// SendToUser delivers to every session of userID.
func (h *Hub) SendToUser(userID, event string, payload any) {
	h.enqueue(targetUser, userID, event, payload)
}

func (h *Hub) frame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(feedevent.Envelope{
		Event:     event,
		Seq:       h.seq.Add(1),
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) enqueue(kind targetKind, target, event string, payload any) {
	frame, err := h.frame(event, payload)
	if err != nil {
		logger.Error("encode event failed", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case h.queue <- dispatchJob{kind: kind, target: target, frame: frame, event: event, enqAt: time.Now()}:
	default:
		h.dropped.Add(1)
		logger.Warn("hub queue full, drop event", zap.String("event", event), zap.String("target", target))
	}
}

func (h *Hub) targets(job dispatchJob) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var set map[*Session]struct{}
	switch job.kind {
	case targetAll:
		set = h.sessions
	case targetTopic:
		set = h.topics[job.target]
	case targetUser:
		set = h.byUser[job.target]
	}
	out := make([]*Session, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

func (h *Hub) dispatch(job dispatchJob) {
	var slow []*Session
	for _, s := range h.targets(job) {
		if s.offer(job.frame) {
			h.delivered.Add(1)
		} else {
			slow = append(slow, s)
		}
	}
	for _, s := range slow {
		h.dropped.Add(1)
		logger.Warn("session buffer full, disconnecting", zap.String("session", s.id), zap.String("user", s.userID), zap.String("event", job.event))
		h.Unregister(s)
	}
	select {
	case h.metricsCh <- time.Since(job.enqAt):
	default:
	}
}

// sendTo writes a frame to one session, bypassing the queue.
func (h *Hub) sendTo(s *Session, event string, payload any) {
	frame, err := h.frame(event, payload)
	if err != nil {
		return
	}
	if !s.offer(frame) {
		h.Unregister(s)
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	all := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()
	for _, s := range all {
		h.Unregister(s)
	}
}

// Stats 采样统计
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Sessions:  len(h.sessions),
		Users:     len(h.byUser),
		Topics:    len(h.topics),
		QueueLen:  len(h.queue),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}

// Metrics 返回入队到投递完成的耗时（每个事件一次）
func (h *Hub) Metrics() <-chan time.Duration { return h.metricsCh }
