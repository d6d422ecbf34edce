package cart

import "sync"

// keyedQueue runs critical sections for the same key one at a time, in the
// order acquire was called. Different keys do not wait for each other.
type keyedQueue[K comparable] struct {
	mu    sync.Mutex
	tails map[K]*ticket
}

type ticket struct {
	done chan struct{}
}

func newKeyedQueue[K comparable]() *keyedQueue[K] {
	return &keyedQueue[K]{tails: make(map[K]*ticket)}
}

// acquire blocks until every earlier holder of key has released it.
func (q *keyedQueue[K]) acquire(key K) (release func()) {
	wait, release := q.enqueue(key)
	<-wait
	return release
}

// enqueue takes a place in line for key. The section may start once wait
// is closed.
func (q *keyedQueue[K]) enqueue(key K) (wait <-chan struct{}, release func()) {
	t := &ticket{done: make(chan struct{})}

	q.mu.Lock()
	prev := q.tails[key]
	q.tails[key] = t
	q.mu.Unlock()

	if prev != nil {
		wait = prev.done
	} else {
		wait = closedChan
	}

	var once sync.Once
	return wait, func() {
		once.Do(func() {
			q.mu.Lock()
			if q.tails[key] == t {
				delete(q.tails, key)
			}
			q.mu.Unlock()
			close(t.done)
		})
	}
}

func (q *keyedQueue[K]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()
