package discord

import "sync"

// inbox runs jobs one at a time per key, in the order they were pushed.
// Different keys run concurrently.
type inbox struct {
	mu     sync.Mutex
	queues map[string][]func()
	wg     sync.WaitGroup
}

func newInbox() *inbox {
	return &inbox{queues: make(map[string][]func())}
}

// push queues job behind earlier jobs for key. It never blocks.
func (q *inbox) push(key string, job func()) {
	q.mu.Lock()
	if jobs, busy := q.queues[key]; busy {
		q.queues[key] = append(jobs, job)
		q.mu.Unlock()
		return
	}
	q.queues[key] = []func(){}
	q.wg.Add(1)
	q.mu.Unlock()

	go q.drain(key, job)
}

func (q *inbox) drain(key string, job func()) {
	defer q.wg.Done()
	for {
		job()

		q.mu.Lock()
		jobs := q.queues[key]
		if len(jobs) == 0 {
			delete(q.queues, key)
			q.mu.Unlock()
			return
		}
		job = jobs[0]
		q.queues[key] = jobs[1:]
		q.mu.Unlock()
	}
}

// wait blocks until every queued job has run.
func (q *inbox) wait() {
	q.wg.Wait()
}
