// Package status holds the message and busy indicator shown to the user.
package status

import "sync"

// Snapshot is a consistent read of the status.
type Snapshot struct {
	Message string
	Busy    bool
}

// Status tracks the latest message and how many operations are in flight.
// Busy is true while at least one operation runs, so one call site
// finishing never hides the spinner of another.
type Status struct {
	mu       sync.Mutex
	message  string
	inflight int
	onChange func(Snapshot)
}

func New() *Status {
	return &Status{}
}

// OnChange registers fn to observe every change. Only one observer is
// kept; the rendering layer is the only consumer.
func (s *Status) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Begin clears the message and marks one operation in flight. The returned
// func ends it and must be called exactly once; extra calls are ignored.
func (s *Status) Begin() (end func()) {
	s.update(func() {
		s.message = ""
		s.inflight++
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.update(func() { s.inflight-- })
		})
	}
}

// SetMessage overwrites the message.
func (s *Status) SetMessage(msg string) {
	s.update(func() { s.message = msg })
}

func (s *Status) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Status) Message() string { return s.Snapshot().Message }

func (s *Status) Busy() bool { return s.Snapshot().Busy }

func (s *Status) update(fn func()) {
	s.mu.Lock()
	fn()
	snap, notify := s.snapshot(), s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify(snap)
	}
}

func (s *Status) snapshot() Snapshot {
	return Snapshot{Message: s.message, Busy: s.inflight > 0}
}
