package bufstream

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
)

const (
	KiB = 1024
	MiB = KiB * KiB

	// DefaultMinBufferSize is the size of the smallest size class.
	DefaultMinBufferSize = 128

	// DefaultLargeObjectThreshold is the buffer size from which pools switch to
	// the lock-guarded stack backing. It mirrors a large-object heap boundary and
	// can be tuned per platform.
	DefaultLargeObjectThreshold = 80 * KiB

	// DefaultMissesBeforeTuning is the number of saturated misses across all
	// size classes that triggers a quota tuning pass.
	DefaultMissesBeforeTuning = 8

	// DefaultInitialBuffersPerClass caps the initial allotment of every size class.
	DefaultInitialBuffersPerClass = 1
)

type ManagerConfig struct {
	MaxPoolBytes  int64 // Total memory budget for pooled buffers, in bytes.
	MaxBufferSize int   // Largest pooled buffer size; larger requests are unpooled.

	MinBufferSize        int // Size of the smallest size class.
	LargeObjectThreshold int // Size classes at or above use the lock-guarded stack.

	// MissesBeforeTuning is the number of misses on saturated pools, summed over
	// all size classes, after which quotas are re-balanced.
	MissesBeforeTuning int

	// InitialBuffersPerClass is the initial quota of each size class, further
	// limited by the remaining memory budget.
	InitialBuffersPerClass int

	Logger *slog.Logger // Defaults to slog.Default() when nil.
}

// DefaultManagerConfig returns a config for a pooled manager with the given
// memory budget and largest pooled buffer size.
func DefaultManagerConfig(maxPoolBytes int64, maxBufferSize int) ManagerConfig {
	return ManagerConfig{
		MaxPoolBytes:           maxPoolBytes,
		MaxBufferSize:          maxBufferSize,
		MinBufferSize:          DefaultMinBufferSize,
		LargeObjectThreshold:   DefaultLargeObjectThreshold,
		MissesBeforeTuning:     DefaultMissesBeforeTuning,
		InitialBuffersPerClass: DefaultInitialBuffersPerClass,
	}
}

func (c ManagerConfig) Validate() error {
	var errs []error
	if c.MaxPoolBytes <= 0 {
		errs = append(errs, errors.New("invalid config: MaxPoolBytes must be positive"))
	}
	if c.MaxBufferSize <= 0 || c.MaxBufferSize > math.MaxInt32 {
		errs = append(errs, fmt.Errorf("invalid config: MaxBufferSize must be between 1 and %d", math.MaxInt32))
	}
	if c.MinBufferSize <= 0 {
		errs = append(errs, errors.New("invalid config: MinBufferSize must be positive"))
	}
	if c.LargeObjectThreshold <= 0 {
		errs = append(errs, errors.New("invalid config: LargeObjectThreshold must be positive"))
	}
	if c.MissesBeforeTuning <= 0 {
		errs = append(errs, errors.New("invalid config: MissesBeforeTuning must be positive"))
	}
	if c.InitialBuffersPerClass < 0 {
		errs = append(errs, errors.New("invalid config: InitialBuffersPerClass cannot be negative"))
	}
	return errors.Join(errs...)
}
