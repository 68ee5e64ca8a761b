package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterWindowBoundary(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(15*time.Minute, 50)
	l.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("51st request inside the window should be rejected")
	}

	// 窗口刚过，最早的时间戳失效，应重新放行
	now = now.Add(15*time.Minute + time.Second)
	if !l.Allow("10.0.0.1") {
		t.Fatal("request after the window elapsed should be allowed")
	}
}

func TestRateLimiterRejectionsAreNotRecorded(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(10*time.Minute, 2)
	l.now = func() time.Time { return now }

	l.Allow("u1")
	l.Allow("u1")

	// 多次被拒的请求不得计入窗口，否则窗口会被不断顺延
	for i := 0; i < 5; i++ {
		now = now.Add(time.Minute)
		if l.Allow("u1") {
			t.Fatalf("request at +%dm should still be rejected", i+1)
		}
	}

	// 距首个放行请求刚超过窗口长度，应重新放行
	now = now.Add(5*time.Minute + time.Second)
	if !l.Allow("u1") {
		t.Fatal("request should be allowed once the admitted entries expired")
	}
}

func TestRateLimiterIdentitiesAreIndependent(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(15*time.Minute, 1)
	l.now = func() time.Time { return now }

	if !l.Allow("10.0.0.1") {
		t.Fatal("first identity should be allowed")
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("first identity should now be limited")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatal("second identity must not share the first identity's window")
	}
}
