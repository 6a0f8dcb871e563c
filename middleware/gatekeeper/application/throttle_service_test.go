package application

import (
	"testing"
	"time"

	"s2r-gateway/middleware/gatekeeper/domain"
)

type fakeLimiter struct {
	allow bool
}

func (f fakeLimiter) Allow() bool { return f.allow }

type fakeLimiterStore struct {
	lim  domain.Limiter
	keys []domain.Key
}

func (s *fakeLimiterStore) Get(k domain.Key) domain.Limiter {
	s.keys = append(s.keys, k)
	return s.lim
}

func TestThrottleService_Decide_AllowsWhenNoStore(t *testing.T) {
	svc := ThrottleService{}
	dec := svc.Decide("203.0.113.7")
	if !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if dec.RetryAfter != 0 {
		t.Fatalf("expected RetryAfter=0 when allowed, got %s", dec.RetryAfter)
	}
}

func TestThrottleService_Decide_UsesIdentityAsKey(t *testing.T) {
	store := &fakeLimiterStore{lim: fakeLimiter{allow: true}}
	svc := ThrottleService{Store: store, RetryAfter: 5 * time.Second}

	if dec := svc.Decide("203.0.113.7"); !dec.Allowed {
		t.Fatalf("expected allowed")
	}
	if len(store.keys) != 1 || store.keys[0] != "203.0.113.7" {
		t.Fatalf("expected identity as key, got %v", store.keys)
	}
}

func TestThrottleService_Decide_BlocksWithRetryAfterDefault(t *testing.T) {
	svc := ThrottleService{Store: &fakeLimiterStore{lim: fakeLimiter{allow: false}}}
	dec := svc.Decide("k")
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfter != 1*time.Second {
		t.Fatalf("expected default RetryAfter=1s, got %s", dec.RetryAfter)
	}
}

func TestThrottleService_Decide_BlocksWithConfiguredRetryAfter(t *testing.T) {
	svc := ThrottleService{Store: &fakeLimiterStore{lim: fakeLimiter{allow: false}}, RetryAfter: 2500 * time.Millisecond}
	dec := svc.Decide("k")
	if dec.Allowed {
		t.Fatalf("expected blocked")
	}
	if dec.RetryAfter != 2500*time.Millisecond {
		t.Fatalf("expected RetryAfter=2.5s, got %s", dec.RetryAfter)
	}
}
