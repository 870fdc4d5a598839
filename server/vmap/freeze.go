package vmap

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// FreezeDetector is the watchdog goroutine described in §4.6: it polls the
// tick driver's loop counter and an overall world-loop counter every
// pollInterval, and escalates by raising SIGABRT when neither has advanced
// for longer than maxStuckMS.
type FreezeDetector struct {
	log *slog.Logger

	pollInterval time.Duration
	maxStuck     time.Duration

	tickCounter  func() uint64
	worldCounter func() uint64

	lastTick       uint64
	lastWorld      uint64
	lastChangeTick time.Time
	lastChangeWorld time.Time

	stop chan struct{}
	done chan struct{}
}

// NewFreezeDetector constructs a detector polling tickCounter (the tick
// driver's LoopCounter) and worldCounter (an externally supplied counter for
// the world thread out of scope of this package) every pollInterval,
// escalating after maxStuck of no progress on either.
func NewFreezeDetector(pollInterval, maxStuck time.Duration, tickCounter, worldCounter func() uint64, log *slog.Logger) *FreezeDetector {
	if log == nil {
		log = slog.Default()
	}
	now := time.Now()
	return &FreezeDetector{
		log:             log,
		pollInterval:    pollInterval,
		maxStuck:        maxStuck,
		tickCounter:     tickCounter,
		worldCounter:    worldCounter,
		lastChangeTick:  now,
		lastChangeWorld: now,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Start launches the watchdog goroutine. Stop must be called to release it.
func (f *FreezeDetector) Start() {
	go f.run()
}

// Stop signals the watchdog goroutine to exit and waits for it.
func (f *FreezeDetector) Stop() {
	close(f.stop)
	<-f.done
}

func (f *FreezeDetector) run() {
	defer close(f.done)
	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			f.poll()
		}
	}
}

func (f *FreezeDetector) poll() {
	now := time.Now()

	if t := f.tickCounter(); t != f.lastTick {
		f.lastTick = t
		f.lastChangeTick = now
	}
	if f.worldCounter != nil {
		if w := f.worldCounter(); w != f.lastWorld {
			f.lastWorld = w
			f.lastChangeWorld = now
		}
	} else {
		f.lastChangeWorld = now
	}

	stuckSince := f.lastChangeTick
	if f.lastChangeWorld.After(stuckSince) {
		stuckSince = f.lastChangeWorld
	}

	if now.Sub(stuckSince) > f.maxStuck {
		f.log.Error("freeze detector: world loop appears hung, escalating", "stuck_for", now.Sub(stuckSince))
		f.escalate()
	}
}

// escalate raises SIGABRT against the current process, preserving a core
// dump the way the original C++ watchdog does. The signal handler CrashHandler
// installs via Start then runs the async-signal-safe side of §4.7.
func (f *FreezeDetector) escalate() {
	_ = unix.Kill(unix.Getpid(), unix.SIGABRT)
}

// FreezeHook returns a WorkerPool.FreezeHook consulting the same stuck
// timer used by the watchdog, for QueueWait's own timeout handling (§4.6
// "Additionally invokes the pool's freeze_hook()").
func (f *FreezeDetector) FreezeHook() FreezeHook {
	return func() bool {
		return time.Since(f.lastChangeTick) > f.maxStuck
	}
}

// fatalSignals is the platform fatal-signal set recognised by the crash
// handler (§4.7): SIGSEGV, SIGABRT, SIGFPE, SIGBUS.
var fatalSignals = []os.Signal{syscall.SIGSEGV, syscall.SIGABRT, syscall.SIGFPE, syscall.SIGBUS}

// CrashHandler is the signal-driven half of the crash-isolation pathway.
// os/signal.Notify delivers fatal signals onto a buffered channel from a
// dedicated runtime-managed goroutine, which recover drains on its own
// goroutine: looking up the worker's current map, logging, mutating the
// per-map break count, killing the worker or re-raising, all safely off
// the signal-delivery path itself.
type CrashHandler struct {
	log  *slog.Logger
	pool *WorkerPool
	stats *Statistics

	maxBreaks     uint32
	trySkipFirst  bool
	skipContinents bool

	ch   chan os.Signal
	stop chan struct{}
	done chan struct{}
}

// NewCrashHandler constructs the OS-signal half of the crash-isolation
// pathway. It does not install anything until Start is called.
func NewCrashHandler(pool *WorkerPool, stats *Statistics, maxBreaks uint32, trySkipFirst, skipContinents bool, log *slog.Logger) *CrashHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CrashHandler{
		log:            log,
		pool:           pool,
		stats:          stats,
		maxBreaks:      maxBreaks,
		trySkipFirst:   trySkipFirst,
		skipContinents: skipContinents,
		ch:             make(chan os.Signal, 1),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start installs the signal.Notify registration and launches the recovery
// goroutine that drains it.
func (h *CrashHandler) Start() {
	signal.Notify(h.ch, fatalSignals...)
	go h.recover()
}

// Stop removes the signal registration and waits for the recovery goroutine
// to exit.
func (h *CrashHandler) Stop() {
	signal.Stop(h.ch)
	close(h.stop)
	<-h.done
}

func (h *CrashHandler) recover() {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			return
		case sig := <-h.ch:
			h.handle(sig)
		}
	}
}

// handle implements §4.7 steps 2-6. Since this package runs worker loops as
// goroutines rather than OS threads, "current worker thread id" is resolved
// indirectly: the pool's worker entries are scanned and the first one with
// a current request is treated as the crash site. This is
// the Go-idiomatic approximation of the original's thread-local lookup —
// true per-OS-thread attribution is not observable from Go without cgo.
func (h *CrashHandler) handle(sig os.Signal) {
	id, m, ok := h.findCrashedWorker()
	if !ok {
		h.log.Error("crash handler: signal outside pool, re-raising", "signal", sig)
		h.reraise(sig)
		return
	}

	mapID := m.ID()
	stat := h.stats.get(mapID)
	h.log.Error("crash handler: map update crashed", "map", mapID.String(), "signal", sig, "break_count", stat.BreakCount)

	if m.Kind() == KindWorld && !h.skipContinents {
		h.reraise(sig)
		return
	}
	if stat.BreakCount > h.maxBreaks {
		h.reraise(sig)
		return
	}

	if !h.trySkipFirst || stat.BreakCount > 0 {
		m.SetBroken()
	}
	h.stats.incrementBreak(mapID)
	h.pool.KillWorker(id, true)
}

func (h *CrashHandler) findCrashedWorker() (WorkerID, Map, bool) {
	h.pool.entriesMu.RLock()
	defer h.pool.entriesMu.RUnlock()
	for id, e := range h.pool.entries {
		if e.CurrentRequest != nil {
			return id, e.CurrentRequest.Map, true
		}
	}
	return 0, nil, false
}

// reraise restores the signal's default disposition and re-sends it to the
// process, matching the original's "re-raise default handler, abort"
// behaviour for crashes the pool cannot attribute or cannot quarantine.
func (h *CrashHandler) reraise(sig os.Signal) {
	signal.Reset(sig)
	_ = unix.Kill(unix.Getpid(), signalNumber(sig))
}

func signalNumber(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return int(s)
	}
	return int(syscall.SIGABRT)
}
