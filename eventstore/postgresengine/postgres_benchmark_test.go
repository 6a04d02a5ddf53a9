//go:build integration

package postgresengine_test

import (
	"testing"
	"time"

	"github.com/versioned-streams/eventstore-go/testutil/fixtures"
)

func Benchmark_Append_SingleEvent(b *testing.B) {
	// setup
	wrapper, ctx := setupWrapper(b)
	es := wrapper.GetEventStore()
	fakeClock := time.Unix(0, 0).UTC()

	streamID := fixtures.UniqueStreamID("bench")
	version := uint(0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		event := fixtures.BuildSomethingHappened(b, streamID, "benchmark append", fakeClock)

		newVersion, appendErr := es.Append(ctx, streamID, version, event)
		if appendErr != nil {
			b.Fatalf("append failed: %v", appendErr)
		}
		version = newVersion
	}
}

func Benchmark_Append_EventBatch(b *testing.B) {
	// setup
	wrapper, ctx := setupWrapper(b)
	es := wrapper.GetEventStore()
	fakeClock := time.Unix(0, 0).UTC()

	streamID := fixtures.UniqueStreamID("bench")
	version := uint(0)

	const batchSize = 10

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		events, _ := fixtures.BuildSomethingHappenedBatch(b, streamID, batchSize, fakeClock)

		newVersion, appendErr := es.Append(ctx, streamID, version, events...)
		if appendErr != nil {
			b.Fatalf("append failed: %v", appendErr)
		}
		version = newVersion
	}
}

func Benchmark_Read_FullStream(b *testing.B) {
	// setup
	wrapper, ctx := setupWrapper(b)
	es := wrapper.GetEventStore()
	fakeClock := time.Unix(0, 0).UTC()

	streamID := fixtures.UniqueStreamID("bench")
	_ = fixtures.GivenStreamWithEvents(b, ctx, es, streamID, 100, fakeClock)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		eventStream, readErr := es.Read(ctx, streamID, 0, 0)
		if readErr != nil {
			b.Fatalf("read failed: %v", readErr)
		}
		if len(eventStream) != 100 {
			b.Fatalf("unexpected event count: %d", len(eventStream))
		}
	}
}

func Benchmark_ReadAll_Page(b *testing.B) {
	// setup
	wrapper, ctx := setupWrapper(b)
	es := wrapper.GetEventStore()
	fakeClock := time.Unix(0, 0).UTC()

	for i := 0; i < 5; i++ {
		streamID := fixtures.UniqueStreamID("bench")
		fakeClock = fixtures.GivenStreamWithEvents(b, ctx, es, streamID, 20, fakeClock)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, readErr := es.ReadAll(ctx, 0, 100)
		if readErr != nil {
			b.Fatalf("read all failed: %v", readErr)
		}
	}
}

func Benchmark_ReadStream_AfterSnapshotVersion(b *testing.B) {
	// setup
	wrapper, ctx := setupWrapper(b)
	es := wrapper.GetEventStore()
	fakeClock := time.Unix(0, 0).UTC()

	streamID := fixtures.UniqueStreamID("bench")
	_ = fixtures.GivenStreamWithEvents(b, ctx, es, streamID, 100, fakeClock)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// reading only the tail mimics a snapshot-accelerated aggregate load
		eventStream, readErr := es.Read(ctx, streamID, 91, 0)
		if readErr != nil {
			b.Fatalf("read failed: %v", readErr)
		}
		if len(eventStream) != 10 {
			b.Fatalf("unexpected event count: %d", len(eventStream))
		}
	}
}
