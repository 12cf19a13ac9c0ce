package backend

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// EnvThreads overrides the parallelism degree when set to a positive integer.
const EnvThreads = "QTENSOR_NUM_THREADS"

// DefaultParallelThreshold is the block count from which Auto prefers the
// parallel strategy.
const DefaultParallelThreshold = 64

// Config sizes a Dispatcher.
type Config struct {
	// Threads is the worker count. Values below 2 disable the parallel
	// strategy.
	Threads int `yaml:"threads" json:"threads"`
	// Backend is the strategy used when a call asks for Auto. Auto here
	// means pick per tensor.
	Backend Kind `yaml:"backend" json:"backend"`
	// ParallelThreshold is the minimum number of blocks for Auto to choose
	// the parallel strategy.
	ParallelThreshold int `yaml:"parallel_threshold" json:"parallel_threshold"`
}

// ResolveThreads reads EnvThreads through lookup. Anything other than a
// positive integer falls back to the number of CPUs.
func ResolveThreads(lookup func(string) (string, bool)) int {
	if lookup != nil {
		if v, ok := lookup(EnvThreads); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				return n
			}
		}
	}
	return max(1, runtime.NumCPU())
}

var (
	defaultConfigOnce sync.Once
	defaultConfig     Config
)

// DefaultConfig returns the process-wide configuration, resolved from the
// environment on first use.
func DefaultConfig() Config {
	defaultConfigOnce.Do(func() {
		defaultConfig = Config{
			Threads:           ResolveThreads(os.LookupEnv),
			Backend:           Auto,
			ParallelThreshold: DefaultParallelThreshold,
		}
	})
	return defaultConfig
}
