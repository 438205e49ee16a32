package worker

import (
	"testing"
	"time"
)

func TestIntervalOrDefault(t *testing.T) {
	cases := []struct {
		seconds  int
		fallback int
		want     time.Duration
	}{
		{seconds: 300, fallback: 60, want: 5 * time.Minute},
		{seconds: 0, fallback: 600, want: 10 * time.Minute},
		{seconds: -1, fallback: 60, want: time.Minute},
	}
	for _, item := range cases {
		if got := intervalOrDefault(item.seconds, item.fallback); got != item.want {
			t.Fatalf("interval(%d, %d) want %v got %v", item.seconds, item.fallback, item.want, got)
		}
	}
}

func TestConsumerRegisterNilSafe(t *testing.T) {
	var c *Consumer
	c.Register(nil)

	nc := NewConsumer(nil)
	nc.Register(nil)
}
