package ratelimit

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, cfg *Config) (*Limiter, *mockClock) {
	t.Helper()
	clock := &mockClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Clock = clock
	l := New(cfg)
	t.Cleanup(l.Close)
	return l, clock
}

func TestHolderHourlyLimit(t *testing.T) {
	l, clock := newTestLimiter(t, &Config{MaxPerHolderPerHour: 3, MaxPerIPPerHour: 100})

	for i := 0; i < 3; i++ {
		if res := l.CheckReserve("user-1", "1.2.3.4"); !res.Allowed {
			t.Fatalf("attempt %d blocked: %+v", i, res)
		}
		l.RecordReserve("user-1", "1.2.3.4")
	}

	res := l.CheckReserve("user-1", "1.2.3.4")
	if res.Allowed {
		t.Fatal("fourth attempt allowed, want holder limit")
	}
	if res.Reason != "holder_hourly_limit" || res.RetryAfter <= 0 {
		t.Errorf("result = %+v", res)
	}

	// Another holder from the same IP is unaffected.
	if res := l.CheckReserve("user-2", "1.2.3.4"); !res.Allowed {
		t.Errorf("other holder blocked: %+v", res)
	}

	// The window rolls over.
	clock.Advance(time.Hour)
	if res := l.CheckReserve("user-1", "1.2.3.4"); !res.Allowed {
		t.Errorf("blocked after window expiry: %+v", res)
	}
}

func TestIPHourlyLimit(t *testing.T) {
	l, _ := newTestLimiter(t, &Config{MaxPerHolderPerHour: 100, MaxPerIPPerHour: 2})

	l.RecordReserve("user-1", "1.2.3.4")
	l.RecordReserve("user-2", "1.2.3.4")

	res := l.CheckReserve("user-3", "1.2.3.4")
	if res.Allowed || res.Reason != "ip_hourly_limit" {
		t.Errorf("result = %+v, want ip_hourly_limit", res)
	}

	if res := l.CheckReserve("user-3", "5.6.7.8"); !res.Allowed {
		t.Errorf("other IP blocked: %+v", res)
	}
}

func TestRecordRestartsWindowAfterExpiry(t *testing.T) {
	l, clock := newTestLimiter(t, &Config{MaxPerHolderPerHour: 2, MaxPerIPPerHour: 100})

	l.RecordReserve("user-1", "1.2.3.4")
	l.RecordReserve("user-1", "1.2.3.4")
	clock.Advance(time.Hour + time.Minute)
	l.RecordReserve("user-1", "1.2.3.4")

	if res := l.CheckReserve("user-1", "1.2.3.4"); !res.Allowed {
		t.Errorf("blocked in fresh window: %+v", res)
	}
}

func TestGetClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		trustProxy bool
		want       string
	}{
		{"direct", "9.9.9.9:1234", "", "", false, "9.9.9.9"},
		{"untrusted proxy ignores xff", "9.9.9.9:1234", "8.8.8.8", "", false, "9.9.9.9"},
		{"trusted proxy rightmost public", "10.0.0.1:1234", "8.8.8.8, 10.0.0.2", "", true, "8.8.8.8"},
		{"trusted proxy all private", "10.0.0.1:1234", "192.168.1.5, 10.0.0.2", "", true, "10.0.0.2"},
		{"trusted proxy x-real-ip", "10.0.0.1:1234", "", "8.8.4.4", true, "8.8.4.4"},
		{"no port", "9.9.9.9", "", "", false, "9.9.9.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", nil)
			r.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xri != "" {
				r.Header.Set("X-Real-IP", tc.xri)
			}
			if got := GetClientIP(r, tc.trustProxy); got != tc.want {
				t.Errorf("GetClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}
