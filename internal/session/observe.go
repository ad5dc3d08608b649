package session

type EventKind int

const (
	// EventChanged follows a local mutation.
	EventChanged EventKind = iota
	// EventSaved follows a commit that wrote changes.
	EventSaved
	// EventRemoteChanged follows a merge of external changes.
	EventRemoteChanged
	// EventBatchDeleted follows a batch delete; IDs holds the deleted identities.
	EventBatchDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventChanged:
		return "changed"
	case EventSaved:
		return "saved"
	case EventRemoteChanged:
		return "remote-changed"
	case EventBatchDeleted:
		return "batch-deleted"
	}
	return "unknown"
}

type Event struct {
	Kind EventKind
	IDs  []string
}

type observer struct {
	id int
	fn func(Event)
}

// Subscribe registers fn for session events and returns a function that
// removes it. fn runs synchronously on the goroutine that caused the event
// and must not call Save or Close.
func (s *Session) Subscribe(fn func(Event)) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers = append(s.observers, observer{id: id, fn: fn})
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) notify(ev Event) {
	s.obsMu.Lock()
	fns := make([]func(Event), len(s.observers))
	for i, o := range s.observers {
		fns[i] = o.fn
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
