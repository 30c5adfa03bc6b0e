package locale

import (
	"fmt"
	"sync"
)

// Switch holds the current Preference and tells subscribers when it
// changes. Subscribers only ever see the latest value; a slow reader skips
// intermediate ones.
type Switch struct {
	mu      sync.Mutex
	current Preference
	subs    map[<-chan Preference]chan Preference
	closed  bool
}

// NewSwitch starts with initial
func NewSwitch(initial Preference) *Switch {
	return &Switch{current: initial, subs: make(map[<-chan Preference]chan Preference)}
}

// Current returns the active preference
func (s *Switch) Current() Preference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set changes the language. Unknown languages are rejected; setting the
// current language again notifies nobody.
func (s *Switch) Set(lang Language) error {
	if _, ok := Parse(string(lang)); !ok {
		return fmt.Errorf("unsupported language %q", lang)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("locale switch closed")
	}
	if s.current.Language == lang {
		return nil
	}
	s.current = Preference{Language: lang}
	for _, ch := range s.subs {
		publish(ch, s.current)
	}
	return nil
}

// Toggle flips between the two languages and returns the new preference
func (s *Switch) Toggle() (Preference, error) {
	next := s.Current().Other()
	if err := s.Set(next); err != nil {
		return Preference{}, err
	}
	return s.Current(), nil
}

// publish replaces any unread value with p
func publish(ch chan Preference, p Preference) {
	select {
	case <-ch:
	default:
	}
	ch <- p
}

// Subscribe returns a channel that receives each new preference
func (s *Switch) Subscribe() <-chan Preference {
	ch := make(chan Preference, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.subs[ch] = ch
	return ch
}

// Unsubscribe stops delivery to ch and closes it
func (s *Switch) Unsubscribe(ch <-chan Preference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(c)
	}
}

// Close unsubscribes everyone
func (s *Switch) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for key, c := range s.subs {
		delete(s.subs, key)
		close(c)
	}
}
