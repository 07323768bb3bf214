package ratelimit

import (
	"testing"
	"time"
)

func TestAllowHonorsConfiguredBudget(t *testing.T) {
	rl := New(Config{MaxRequestsPerMinute: 3, WindowDuration: time.Hour})
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.allow("user-1") {
			t.Fatalf("request %d denied, want allowed within budget", i+1)
		}
	}
	if rl.allow("user-1") {
		t.Error("request over budget allowed, want denied")
	}
	if !rl.allow("user-2") {
		t.Error("other client denied, buckets should be per client")
	}
}

func TestDefaultBudget(t *testing.T) {
	rl := New(Config{})
	defer rl.Stop()
	if rl.maxTokens != 60 {
		t.Errorf("default budget = %d, want 60", rl.maxTokens)
	}
}
