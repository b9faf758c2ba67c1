package eventbus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"bleremote/internal/domain"
)

// BenchmarkPublishControlChanged measures the hot path while a slider is dragged.
func BenchmarkPublishControlChanged(b *testing.B) {
	bus := New(slog.Default())
	ctx := context.Background()
	event := domain.Event{
		Type:      domain.EventControlChanged,
		Timestamp: time.Now(),
		SessionID: "bench-session",
	}

	bus.Subscribe(domain.EventControlChanged, func(_ context.Context, _ domain.Event) {})

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		bus.Publish(ctx, event)
	}

	bus.Close()
}

// BenchmarkPublishFanOut has the panel and three gateway clients listening.
func BenchmarkPublishFanOut(b *testing.B) {
	bus := New(slog.Default())
	ctx := context.Background()
	event := domain.Event{Type: domain.EventPayloadSent, Timestamp: time.Now()}

	for i := 0; i < 4; i++ {
		bus.SubscribeAll(func(_ context.Context, _ domain.Event) {})
	}

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			bus.Publish(ctx, event)
		}
	})

	bus.Close()
}

// BenchmarkPublishNoSubscribers measures the overhead of Publish itself.
func BenchmarkPublishNoSubscribers(b *testing.B) {
	bus := New(slog.Default())
	ctx := context.Background()
	event := domain.Event{Type: domain.EventScanStarted, Timestamp: time.Now()}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		bus.Publish(ctx, event)
	}

	bus.Close()
}
