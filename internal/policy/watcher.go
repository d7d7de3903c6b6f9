package policy

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/conduitrun/conduit/pkg/runtime"
)

// Resolver holds the live policy and serves Check calls while a background
// watcher swaps the underlying value on file changes. Reads never block on
// a reload in progress; Check always sees either the old or the new policy,
// never a partially parsed one.
type Resolver struct {
	mu      sync.RWMutex
	current Policy
	path    string
	load    func(string) (Policy, error)
	logger  *slog.Logger

	watcher *fsnotify.Watcher
	closed  atomic.Bool
	done    chan struct{}
}

// NewResolver loads the policy at path and starts watching it for changes.
// If path is empty, the restrictive default policy is served and no watcher
// is started.
func NewResolver(path string, logger *slog.Logger) (*Resolver, error) {
	return NewResolverWithLoader(path, Load, logger)
}

// NewResolverWithLoader is like NewResolver but lets the caller supply the
// function used to (re-)derive a Policy from the watched file. This is how
// a single host TOML file that embeds [allow]/[deny] sections alongside
// unrelated configuration can still be watched and hot-reloaded: the caller
// passes a loader that parses the whole file and projects out its Policy.
func NewResolverWithLoader(path string, load func(string) (Policy, error), logger *slog.Logger) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Resolver{logger: logger, path: path, load: load, done: make(chan struct{})}

	if path == "" {
		r.current = Restrictive()
		return r, nil
	}

	p, err := load(path)
	if err != nil {
		return nil, err
	}
	r.current = p

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}
	r.watcher = watcher

	go r.watch()

	return r, nil
}

// Check evaluates a request against the currently loaded policy.
func (r *Resolver) Check(request runtime.CapabilityRequest) Decision {
	return r.Current().Check(request)
}

func (r *Resolver) watch() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			r.reload()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("policy watcher error", "error", err)
		case <-r.done:
			return
		}
	}
}

func (r *Resolver) reload() {
	p, err := r.load(r.path)
	if err != nil {
		r.logger.Error("policy reload failed, keeping previous policy", "path", r.path, "error", err)
		return
	}
	r.mu.Lock()
	r.current = p
	r.mu.Unlock()
	r.logger.Info("policy reloaded", "path", r.path)
}

// Current returns the policy currently in effect.
func (r *Resolver) Current() Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Close stops the background watcher.
func (r *Resolver) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.done)
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}
