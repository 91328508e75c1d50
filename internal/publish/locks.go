package publish

import "sync"

// refLocks serializes publishes per hosting ref within the process. A later
// run's publish supersedes an earlier one; the lock orders them, it never
// rejects. Out-of-process writers are handled by the compare-and-swap push.
var refLocks = struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}{locks: make(map[string]*sync.Mutex)}

// lockRef acquires the mutex for key (URL + ref) and returns its unlock func.
func lockRef(key string) func() {
	refLocks.mu.Lock()
	l, ok := refLocks.locks[key]
	if !ok {
		l = &sync.Mutex{}
		refLocks.locks[key] = l
	}
	refLocks.mu.Unlock()

	l.Lock()
	return l.Unlock
}
