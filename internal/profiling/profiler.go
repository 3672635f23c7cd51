// Package profiling captures pprof artifacts for a single CLI invocation.
package profiling

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
)

// Options selects which profiles a session captures. Empty paths disable the
// corresponding profile.
type Options struct {
	// CPUPath receives a CPU profile covering the whole session.
	CPUPath string
	// HeapPath receives a heap profile taken when the session stops.
	HeapPath string
}

// Enabled reports whether any profile was requested.
func (o Options) Enabled() bool {
	return o.CPUPath != "" || o.HeapPath != ""
}

// Session is one profiling run bracketing a command. Start it before the work
// and Stop it after; Stop flushes every requested artifact.
type Session struct {
	opts    Options
	cpuFile *os.File
}

// Start begins a profiling session. CPU profiling starts immediately; the
// heap profile is deferred until Stop so it reflects the command's peak state.
func Start(opts Options) (*Session, error) {
	s := &Session{opts: opts}
	if opts.CPUPath != "" {
		f, err := os.Create(opts.CPUPath)
		if err != nil {
			return nil, fmt.Errorf("create cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("start cpu profile: %w", err)
		}
		s.cpuFile = f
	}
	return s, nil
}

// Stop finalizes the session, flushing the CPU profile and writing the heap
// profile if one was requested. Safe to call on a nil session.
func (s *Session) Stop() error {
	if s == nil {
		return nil
	}
	if s.cpuFile != nil {
		pprof.StopCPUProfile()
		if err := s.cpuFile.Close(); err != nil {
			return fmt.Errorf("close cpu profile: %w", err)
		}
		s.cpuFile = nil
	}
	if s.opts.HeapPath != "" {
		if err := writeHeap(s.opts.HeapPath); err != nil {
			return err
		}
	}
	return nil
}

// writeHeap snapshots live heap allocations. A GC pass first keeps dead
// objects out of the profile.
func writeHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create heap profile: %w", err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("write heap profile: %w", err)
	}
	return nil
}
