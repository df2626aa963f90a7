package clock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sophialabs/stubkit/internal/infrastructure/outbound/clock"
)

func TestSystem_Now(t *testing.T) {
	clk := clock.New()
	before := time.Now()
	got := clk.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestSystem_SleepContext(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name       string
		ctx        context.Context
		d          time.Duration
		wantErr    error
		minElapsed time.Duration
	}{
		{name: "full delay", ctx: context.Background(), d: 50 * time.Millisecond, minElapsed: 40 * time.Millisecond},
		{name: "zero delay", ctx: context.Background(), d: 0},
		{name: "cancelled", ctx: cancelled, d: 10 * time.Second, wantErr: context.Canceled},
		{name: "cancelled zero delay", ctx: cancelled, d: 0, wantErr: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			err := clock.New().SleepContext(tt.ctx, tt.d)
			elapsed := time.Since(start)

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SleepContext() error = %v, want %v", err, tt.wantErr)
			}
			if elapsed < tt.minElapsed {
				t.Errorf("SleepContext returned too early: %v", elapsed)
			}
			if tt.wantErr != nil && elapsed > time.Second {
				t.Errorf("cancelled sleep took %v", elapsed)
			}
		})
	}
}
