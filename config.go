package proactor

import (
	"os"
	"strconv"
	"sync"

	"github.com/nexusruntime/proactor/internal/asyncify"
)

// Builder configures a Driver before construction: the asyncify pool's
// size, and how many completion entries Poll pulls per kernel call. Env
// overrides are read once via sync.Once and clamped to sane bounds.
type Builder struct {
	PoolThreads  int
	PoolQueueLen int
	PollBatch    int
}

// NewBuilder returns a Builder seeded from environment overrides
// (PROACTOR_POOL_THREADS, PROACTOR_POOL_QUEUE, PROACTOR_POLL_BATCH),
// falling back to DefaultBuilder's values for anything unset or invalid.
func NewBuilder() Builder {
	envOnce.Do(loadEnvDefaults)
	return Builder{
		PoolThreads:  envDefaults.poolThreads,
		PoolQueueLen: envDefaults.poolQueueLen,
		PollBatch:    envDefaults.pollBatch,
	}
}

// DefaultBuilder returns hardcoded defaults, ignoring environment
// overrides. Most callers should prefer NewBuilder.
func DefaultBuilder() Builder {
	return Builder{PoolThreads: 4, PoolQueueLen: 64, PollBatch: 128}
}

func (b Builder) poolConfig() asyncify.Config {
	cfg := asyncify.DefaultConfig()
	if b.PoolThreads > 0 {
		cfg.Threads = b.PoolThreads
	}
	if b.PoolQueueLen >= 0 {
		cfg.QueueLen = b.PoolQueueLen
	}
	return cfg
}

func (b Builder) pollBatch() int {
	if b.PollBatch > 0 {
		return b.PollBatch
	}
	return 128
}

var (
	envOnce     sync.Once
	envDefaults struct {
		poolThreads  int
		poolQueueLen int
		pollBatch    int
	}
)

func loadEnvDefaults() {
	envDefaults.poolThreads = envInt("PROACTOR_POOL_THREADS", 4, 1, 256)
	envDefaults.poolQueueLen = envInt("PROACTOR_POOL_QUEUE", 64, 0, 4096)
	envDefaults.pollBatch = envInt("PROACTOR_POLL_BATCH", 128, 1, 4096)
}

func envInt(name string, def, min, max int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	if n < min {
		n = min
	} else if n > max {
		n = max
	}
	return n
}
