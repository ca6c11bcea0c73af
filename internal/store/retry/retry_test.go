package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/vpsinv/internal/logger"
)

func fastOptions() Options {
	return Options{
		ConnectTimeout: 500 * time.Millisecond,
		RetryInterval:  5 * time.Millisecond,
		MaxWait:        20 * time.Millisecond,
		PingTimeout:    50 * time.Millisecond,
		WarnThreshold:  1,
	}
}

func TestUntilReachableRetries(t *testing.T) {
	calls := 0
	ping := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}

	if err := UntilReachable(context.Background(), "redis", "localhost:6379", ping, fastOptions(), logger.Nop()); err != nil {
		t.Fatalf("UntilReachable() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("ping called %d times, want 3", calls)
	}
}

func TestUntilReachableTimesOut(t *testing.T) {
	down := errors.New("connection refused")
	opts := fastOptions()
	opts.ConnectTimeout = 50 * time.Millisecond

	err := UntilReachable(context.Background(), "postgres", "db:5432", func(context.Context) error { return down }, opts, logger.Nop())
	if !errors.Is(err, down) {
		t.Errorf("UntilReachable() error = %v, want wrapped ping error", err)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *Options)
	}{
		{"connect timeout", func(o *Options) { o.ConnectTimeout = 0 }},
		{"retry interval", func(o *Options) { o.RetryInterval = 0 }},
		{"max wait", func(o *Options) { o.MaxWait = -1 }},
		{"ping timeout", func(o *Options) { o.PingTimeout = 0 }},
		{"warn threshold", func(o *Options) { o.WarnThreshold = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := fastOptions()
			tt.mutate(&o)
			if err := o.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}

	if err := fastOptions().Validate(); err != nil {
		t.Errorf("Validate() of valid options = %v", err)
	}
}
