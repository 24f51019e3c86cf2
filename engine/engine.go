package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/view-engine/errors"
)

// Process-wide engine state. Context creation is gated on Init so hosts fail
// fast on lifecycle misuse instead of leaking half-built contexts.
var (
	procMu      sync.Mutex
	initialized bool
	supportDir  string
	liveCtxs    atomic.Int64
	lazyDocLoad atomic.Bool
)

func init() {
	// Documents are exposed lazily unless the host opts out.
	lazyDocLoad.Store(true)
}

// Init prepares the engine for this process. It must be called exactly once
// before the first context is created; a second call without an intervening
// Deinit fails. The executable path anchors the directory where engine
// support data is resolved.
func Init(executablePath string) error {
	procMu.Lock()
	defer procMu.Unlock()

	if initialized {
		return errors.InvalidState(errors.PhaseInit, "engine already initialized")
	}
	if executablePath == "" {
		return errors.InvalidInput(errors.PhaseInit, "empty executable path")
	}

	abs, err := filepath.Abs(executablePath)
	if err != nil {
		return errors.Wrap(errors.PhaseInit, errors.KindInvalidInput, err, "resolve executable path")
	}
	if _, err := os.Stat(abs); err != nil {
		return errors.Wrap(errors.PhaseInit, errors.KindInvalidInput, err, "stat executable path")
	}

	supportDir = filepath.Dir(abs)
	initialized = true
	Logger().Info("engine initialized", zap.String("support_dir", supportDir))
	return nil
}

// Deinit releases process-wide engine state. It fails while any context is
// still alive. After a successful Deinit the engine may be initialized again.
func Deinit() error {
	procMu.Lock()
	defer procMu.Unlock()

	if !initialized {
		return errors.NotInitialized(errors.PhaseTeardown, "engine")
	}
	if n := liveCtxs.Load(); n != 0 {
		return errors.InvalidState(errors.PhaseTeardown,
			fmt.Sprintf("%d context(s) still alive", n))
	}

	initialized = false
	supportDir = ""
	Logger().Info("engine deinitialized")
	return nil
}

// SetOptimizeDocLoad selects the document-exposure strategy for contexts
// created after the call: "true" parses documents lazily on first property
// access, "false" parses them before map functions run. Existing contexts
// keep the strategy they were created with.
func SetOptimizeDocLoad(value string) error {
	switch value {
	case "true":
		lazyDocLoad.Store(true)
	case "false":
		lazyDocLoad.Store(false)
	default:
		return errors.InvalidInput(errors.PhaseInit,
			fmt.Sprintf("optimize_doc_load must be \"true\" or \"false\", got %q", value))
	}
	debugf("optimize_doc_load set to %s", value)
	return nil
}

// SupportDir returns the directory where engine support data is resolved.
// Empty until Init succeeds.
func SupportDir() string {
	procMu.Lock()
	defer procMu.Unlock()
	return supportDir
}

// LiveContexts returns the number of contexts created and not yet closed.
func LiveContexts() int64 {
	return liveCtxs.Load()
}

func ensureInitialized(phase errors.Phase) error {
	procMu.Lock()
	defer procMu.Unlock()
	if !initialized {
		return errors.NotInitialized(phase, "engine")
	}
	return nil
}
