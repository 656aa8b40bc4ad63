package session

import (
	"sync"

	domainauth "github.com/tradeboard/gateway/internal/domain/auth"
)

// Signals carries out-of-band session events from the refresh and API paths to observers.
// Observers run synchronously on the goroutine that raised the event and must not block.
type Signals struct {
	mu           sync.Mutex
	next         int
	expired      map[int]func()
	refreshed    map[int]func()
	subscription map[int]func(domainauth.SubscriptionNotice)
}

// NewSignals constructs a Signals with no observers.
func NewSignals() *Signals {
	return &Signals{
		expired:      map[int]func(){},
		refreshed:    map[int]func(){},
		subscription: map[int]func(domainauth.SubscriptionNotice){},
	}
}

// OnSessionExpired registers fn and returns a func that removes it.
func (s *Signals) OnSessionExpired(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.expired[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.expired, id)
		s.mu.Unlock()
	}
}

// OnRefreshed registers fn to run after a refresh stores a new token.
func (s *Signals) OnRefreshed(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.refreshed[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.refreshed, id)
		s.mu.Unlock()
	}
}

// OnSubscriptionRequired registers fn and returns a func that removes it.
func (s *Signals) OnSubscriptionRequired(fn func(domainauth.SubscriptionNotice)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subscription[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subscription, id)
		s.mu.Unlock()
	}
}

// SessionExpired notifies every session-expired observer.
func (s *Signals) SessionExpired() {
	s.fire(s.expired)
}

// Refreshed notifies every refreshed observer.
func (s *Signals) Refreshed() {
	s.fire(s.refreshed)
}

func (s *Signals) fire(observers map[int]func()) {
	s.mu.Lock()
	fns := make([]func(), 0, len(observers))
	for _, fn := range observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// SubscriptionRequired notifies every subscription observer with n.
func (s *Signals) SubscriptionRequired(n domainauth.SubscriptionNotice) {
	s.mu.Lock()
	fns := make([]func(domainauth.SubscriptionNotice), 0, len(s.subscription))
	for _, fn := range s.subscription {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(n)
	}
}
