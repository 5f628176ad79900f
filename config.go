package symex

import "time"

// SwitchLowering selects how OpSwitch is turned into a sequence of forks.
type SwitchLowering int

const (
	// SwitchLoweringPerSuccessor forks once per successor block, OR-ing
	// together every case value that targets it (the default).
	SwitchLoweringPerSuccessor SwitchLowering = iota
	// SwitchLoweringPerCase forks once per case value, never merging
	// cases that share a successor block.
	SwitchLoweringPerCase
)

// Config collects every resource cap and tunable the engine consults, as a
// plain struct with exported fields and defaults applied by NewConfig
// rather than reaching for a flags/viper-style config library.
type Config struct {
	// MaxForks caps the total number of true (state-cloning) forks across
	// the whole run; 0 means unlimited. Once reached, fork collapses to
	// a random single branch instead of cloning.
	MaxForks int

	// MaxDepth caps the number of forks along any single path; 0 means
	// unlimited.
	MaxDepth int

	// MaxInstructions caps the number of instructions any single state
	// may execute; 0 means unlimited.
	MaxInstructions int

	// MaxStackFrames caps call depth per state; 0 means unlimited.
	MaxStackFrames int

	// MaxMemory caps live ExecutionState memory usage in bytes as
	// reported by the caller via Executor.NotifyMemoryUsage; when at or
	// above this cap, fork collapses states instead of cloning (the
	// atMemoryLimit / MaxMemoryInhibit behavior).
	MaxMemory uint64

	// MaxSymArraySize is a size bound for symbolic arrays. It is stored
	// with the other limits; no code in this package reads it, so it has
	// no effect on expressions or memory operations.
	MaxSymArraySize uint64

	// ForkCollapsePercent, when non-zero, is the probability in percent
	// [0,100) with which Fork collapses a condition that is feasible both
	// ways to a single branch instead of forking, even when resource caps
	// have not been hit. The branch kept is picked uniformly at random;
	// the choice does not depend on the call site, on past forks, or on a
	// solver model.
	ForkCollapsePercent int

	// MaxResolutions caps the number of candidate objects
	// AddressSpace.Resolve will enumerate before declaring the
	// resolution incomplete; 0 means unlimited.
	MaxResolutions int

	// SolverTimeout is a per-call solver time budget. It is stored with
	// the other limits; no code in this package reads it, so solver calls
	// are bounded only by the context passed to Executor.Run.
	SolverTimeout time.Duration

	// SwitchLowering selects the Switch-to-fork strategy, exposed as a
	// policy rather than hardcoding one fixed behavior.
	SwitchLowering SwitchLowering

	// OnlyReplaySeeds, when true, never forks beyond what the loaded
	// seeds can satisfy: once every seed assigned to a state disagrees
	// with both branches of a fork, the state terminates instead of
	// continuing unseeded.
	OnlyReplaySeeds bool

	PointerWidth   uint
	IsLittleEndian bool
}

// NewConfig returns a Config with the same defaults KLEE ships with,
// adapted to this module's unit (nanosecond Duration rather than
// time::Span, byte counts rather than a separate "MB" knob).
func NewConfig() *Config {
	return &Config{
		MaxForks:            0, // 0 means unlimited, for every *Max* field here
		MaxDepth:            0,
		MaxInstructions:     0,
		MaxStackFrames:      0,
		MaxMemory:           0,
		MaxSymArraySize:     4096,
		ForkCollapsePercent: 0,
		MaxResolutions:      0,
		SolverTimeout:       30 * time.Second,
		SwitchLowering:      SwitchLoweringPerSuccessor,
		OnlyReplaySeeds:     false,
		PointerWidth:        Width64,
		IsLittleEndian:      true,
	}
}
