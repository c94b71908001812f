package bufstream

import (
	"math/rand"
	"testing"
	"time"
)

// GOMAXPROCS=4 go clean -testcache && go test -bench=BenchmarkPooledManager -benchtime=10s -benchmem .

// BenchmarkPooledManagerTakeReturn simulates a workload where every taken
// buffer is returned right away, so most requests hit the pool.
func BenchmarkPooledManagerTakeReturn(b *testing.B) {
	m, err := NewPooledManager(DefaultManagerConfig(64*MiB, 1*MiB))
	if err != nil {
		b.Fatal(err)
	}
	defer m.Clear()

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		// Each goroutine gets its own random number source to avoid lock contention.
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			buf := m.TakeBuffer(rng.Intn(64*KiB) + 1)
			if err := m.ReturnBuffer(buf); err != nil {
				panic(err)
			}
		}
	})
}

// BenchmarkPooledManagerSmallBuffers measures contention on a single
// small size class.
func BenchmarkPooledManagerSmallBuffers(b *testing.B) {
	m, err := NewPooledManager(DefaultManagerConfig(64*MiB, 1*MiB))
	if err != nil {
		b.Fatal(err)
	}
	defer m.Clear()

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			buf := m.TakeBuffer(100)
			if err := m.ReturnBuffer(buf); err != nil {
				panic(err)
			}
		}
	})
}

func BenchmarkGCManagerTake(b *testing.B) {
	m, _ := Create(0, 0)
	b.ReportAllocs()
	for b.Loop() {
		_ = m.TakeBuffer(4 * KiB)
	}
}
