// Package evalstate holds the controller-side state shared between
// the evaluation runner and the worker-protocol reader, and
// implements the Shortcut Build Callback: the store-layer hook that
// bridges a missing build output back to the controller for a remote
// build.
//
// Grounded on the teacher's lib/authorization.Index guarded-map
// pattern (RWMutex-protected maps with atomic insert-if-absent),
// generalized here with a sync.Cond so readers can block on a key
// appearing rather than polling.
package evalstate

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/brainrake/hercules-ci-agent/lib/workerprotocol"
)

// Completion is the recorded outcome of one build attempt.
type Completion struct {
	Attempt uuid.UUID
	Status  workerprotocol.BuildStatus
}

// ConcurrentBuildDenied means a Shortcut Build Callback for drvPath
// was already in flight when a second one was attempted — a
// substitution that should have succeeded locally did not, and the
// store layer invoked the callback twice for the same path.
type ConcurrentBuildDenied struct {
	DrvPath string
}

func (e *ConcurrentBuildDenied) Error() string {
	return fmt.Sprintf("evalstate: concurrent shortcut build callback denied for %s", e.DrvPath)
}

// BuildException means substitution for drvPath failed after the
// callback's bounded retries, or a reported successful rebuild still
// left the path unavailable.
type BuildException struct {
	DrvPath string
	Detail  string
}

func (e *BuildException) Error() string {
	return fmt.Sprintf("evalstate: build exception for %s: %s", e.DrvPath, e.Detail)
}

// State holds the shared maps consulted by the evaluation runner, the
// worker-protocol reader, and concurrent Shortcut Build Callback
// invocations. Zero value is not usable; construct with [New].
type State struct {
	mu        sync.Mutex
	completed sync.Cond // signaled whenever drvsCompleted changes

	drvsCompleted  map[string]Completion
	drvsInProgress map[string]struct{}

	// Shortcut is the single-consumer, many-producer queue of events
	// the callback emits toward the worker protocol writer. A nil
	// value is the end-of-stream sentinel.
	Shortcut chan workerprotocol.Event
}

// New constructs an empty State. shortcutBufferSize sizes the
// Shortcut channel; 0 makes it synchronous.
func New(shortcutBufferSize int) *State {
	s := &State{
		drvsCompleted:  make(map[string]Completion),
		drvsInProgress: make(map[string]struct{}),
		Shortcut:       make(chan workerprotocol.Event, shortcutBufferSize),
	}
	s.completed.L = &s.mu
	return s
}

// acquireInProgress inserts drvPath into drvsInProgress if absent,
// returning whether the insertion happened. Atomic with respect to
// concurrent callbacks (the tie-break rule in spec.md §4.8).
func (s *State) acquireInProgress(drvPath string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.drvsInProgress[drvPath]; exists {
		return false
	}
	s.drvsInProgress[drvPath] = struct{}{}
	return true
}

func (s *State) releaseInProgress(drvPath string) {
	s.mu.Lock()
	delete(s.drvsInProgress, drvPath)
	s.mu.Unlock()
}

// RecordCompletion records a build's outcome and wakes any callback
// blocked in awaitCompletion for drvPath. Called exclusively by the
// worker-protocol reader (single writer).
func (s *State) RecordCompletion(drvPath string, attempt uuid.UUID, status workerprotocol.BuildStatus) {
	s.mu.Lock()
	s.drvsCompleted[drvPath] = Completion{Attempt: attempt, Status: status}
	s.mu.Unlock()
	s.completed.Broadcast()
}

// awaitCompletion blocks until drvsCompleted[drvPath] is present with
// an attempt other than exclude (if exclude is non-nil), then returns
// it.
func (s *State) awaitCompletion(drvPath string, exclude *uuid.UUID) Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		result, ok := s.drvsCompleted[drvPath]
		if ok && (exclude == nil || result.Attempt != *exclude) {
			return result
		}
		s.completed.Wait()
	}
}

func translateFailure(drvPath string, status workerprotocol.BuildStatus) error {
	switch status {
	case workerprotocol.BuildStatusFailure, workerprotocol.BuildStatusDependencyFailure:
		return &BuildException{DrvPath: drvPath, Detail: fmt.Sprintf("remote build reported %s", status)}
	default:
		return nil
	}
}

// emit sends evt to the shortcut channel, blocking if it's full.
func (s *State) emit(evt workerprotocol.Event) {
	s.Shortcut <- evt
}

// CloseShortcut enqueues the end-of-stream sentinel. Call once, after
// no more callbacks will run.
func (s *State) CloseShortcut() {
	s.Shortcut <- nil
}

// ShortcutBuildCallback implements the algorithm in spec.md §4.8: it
// acquires the drvsInProgress marker for drvPath, emits a Build event,
// attempts substitution via ensurePath, and on failure awaits a
// completion report before retrying — up to two retries — translating
// a reported build failure into *BuildException and a third
// substitution failure into *BuildException naming the unexpected
// unavailability of a reportedly-successful rebuild.
//
// clearCaches is called between the first and second substitution
// attempts, matching "clear the substituter and path-info caches"
// in spec.md §4.8 step 4.
func (s *State) ShortcutBuildCallback(drvPath, outputName string, ensurePath func() error, clearCaches func()) error {
	if !s.acquireInProgress(drvPath) {
		return &ConcurrentBuildDenied{DrvPath: drvPath}
	}
	defer s.releaseInProgress(drvPath)

	s.emit(workerprotocol.BuildEvent{DrvPath: drvPath, OutputName: outputName, PreviousAttempt: nil})

	if err := ensurePath(); err == nil {
		return nil
	}

	completion0 := s.awaitCompletion(drvPath, nil)
	if err := translateFailure(drvPath, completion0.Status); err != nil {
		return err
	}
	clearCaches()

	if err := ensurePath(); err == nil {
		return nil
	}

	attempt0 := completion0.Attempt
	s.emit(workerprotocol.BuildEvent{DrvPath: drvPath, OutputName: outputName, PreviousAttempt: &attempt0})

	completion1 := s.awaitCompletion(drvPath, &attempt0)
	if err := translateFailure(drvPath, completion1.Status); err != nil {
		return err
	}

	if err := ensurePath(); err == nil {
		return nil
	}

	return &BuildException{
		DrvPath: drvPath,
		Detail:  "substitution failed despite a reported successful rebuild",
	}
}
