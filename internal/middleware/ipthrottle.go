package middleware

import (
	"container/list"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aman-churiwal/projectguard/internal/security"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	ip       string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPThrottle is a coarse per-client token bucket for unauthenticated
// endpoints such as login. Idle clients are evicted least-recently-used first.
type IPThrottle struct {
	mu         sync.Mutex
	visitors   map[string]*list.Element
	lru        *list.List
	rate       rate.Limit
	burst      int
	maxEntries int
	idleTTL    time.Duration
	now        func() time.Time
}

func NewIPThrottle(perMinute, burst, maxEntries int) *IPThrottle {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = perMinute
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}

	return &IPThrottle{
		visitors:   make(map[string]*list.Element),
		lru:        list.New(),
		rate:       rate.Every(time.Minute / time.Duration(perMinute)),
		burst:      burst,
		maxEntries: maxEntries,
		idleTTL:    10 * time.Minute,
		now:        time.Now,
	}
}

func (t *IPThrottle) Allow(ip string) bool {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictIdle(now)

	if elem, ok := t.visitors[ip]; ok {
		t.lru.MoveToFront(elem)
		v := elem.Value.(*visitor)
		v.lastSeen = now
		return v.limiter.AllowN(now, 1)
	}

	if len(t.visitors) >= t.maxEntries {
		if oldest := t.lru.Back(); oldest != nil {
			delete(t.visitors, oldest.Value.(*visitor).ip)
			t.lru.Remove(oldest)
		}
	}

	v := &visitor{ip: ip, limiter: rate.NewLimiter(t.rate, t.burst), lastSeen: now}
	t.visitors[ip] = t.lru.PushFront(v)

	return v.limiter.AllowN(now, 1)
}

// Callers hold t.mu
func (t *IPThrottle) evictIdle(now time.Time) {
	for elem := t.lru.Back(); elem != nil; elem = t.lru.Back() {
		v := elem.Value.(*visitor)
		if now.Sub(v.lastSeen) < t.idleTTL {
			return
		}
		delete(t.visitors, v.ip)
		t.lru.Remove(elem)
	}
}

func (t *IPThrottle) Middleware(delayer security.Delayer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if t.Allow(c.ClientIP()) {
			c.Next()
			return
		}

		delayer.Wait(c.Request.Context())
		c.Header("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"message": security.MsgRateLimited,
		})
	}
}
