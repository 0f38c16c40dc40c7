// Package sysmetrics measures the CPU time and memory a piece of work used.
package sysmetrics

import (
	"runtime"
	"time"

	"golang.org/x/sys/unix"
)

// Usage is what the process spent between Start and Stop.
type Usage struct {
	Wall time.Duration
	User time.Duration
	Sys  time.Duration
	// MemoryInuse is HeapInuse plus StackInuse when Stop was called.
	MemoryInuse int64
	// PeakRSS is the largest resident set of the process so far.
	PeakRSS int64
}

// CPUPercent is user plus system time over wall time. Work spread over
// several cores exceeds 100.
func (u Usage) CPUPercent() float64 {
	if u.Wall <= 0 {
		return 0
	}
	return float64(u.User+u.Sys) / float64(u.Wall) * 100
}

// Sampler holds the starting point of a measurement.
type Sampler struct {
	wall time.Time
	user time.Duration
	sys  time.Duration
}

// Start begins a measurement.
func Start() Sampler {
	ru := rusage()
	return Sampler{
		wall: time.Now(),
		user: time.Duration(ru.Utime.Nano()),
		sys:  time.Duration(ru.Stime.Nano()),
	}
}

// Stop returns the usage since Start.
func (s Sampler) Stop() Usage {
	ru := rusage()
	return Usage{
		Wall:        time.Since(s.wall),
		User:        time.Duration(ru.Utime.Nano()) - s.user,
		Sys:         time.Duration(ru.Stime.Nano()) - s.sys,
		MemoryInuse: MemoryInuse(),
		PeakRSS:     maxRSS(ru),
	}
}

// MemoryInuse returns the memory actively in use by the Go runtime, in
// bytes. This is HeapInuse (live heap spans) plus StackInuse (goroutine
// stacks), excluding virtual address space reserved but not committed.
func MemoryInuse() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.HeapInuse + m.StackInuse)
}

func rusage() unix.Rusage {
	var ru unix.Rusage
	// Zero times on failure; the caller reports them as they are.
	_ = unix.Getrusage(unix.RUSAGE_SELF, &ru)
	return ru
}

// maxRSS converts ru_maxrss to bytes: Linux reports kilobytes, Darwin bytes.
func maxRSS(ru unix.Rusage) int64 {
	if runtime.GOOS == "darwin" {
		return int64(ru.Maxrss)
	}
	return int64(ru.Maxrss) * 1024
}
