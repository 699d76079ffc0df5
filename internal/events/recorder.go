package events

import "sync"

// Recorder is an in-memory Publisher, handy in tests.
type Recorder struct {
	mu       sync.Mutex
	Subjects []string
	Payloads []any
}

func (r *Recorder) Publish(subject string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Subjects = append(r.Subjects, subject)
	r.Payloads = append(r.Payloads, data)
	return nil
}

func (r *Recorder) Close() {}

// Count returns how many events were published under subject.
func (r *Recorder) Count(subject string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.Subjects {
		if s == subject {
			n++
		}
	}
	return n
}
