package bot

import (
	"sync"

	"github.com/platanos-shop/storefront/internal/service"
)

// Step is what the customer bot expects the next text message to be.
type Step int

const (
	StepIdle Step = iota
	StepAskQuantity
	StepAskName
	StepAskAddress
	StepRequestName
	StepRequestSize
	StepRequestNotes
)

func (s Step) String() string {
	switch s {
	case StepAskQuantity:
		return "ask_quantity"
	case StepAskName:
		return "ask_name"
	case StepAskAddress:
		return "ask_address"
	case StepRequestName:
		return "request_name"
	case StepRequestSize:
		return "request_size"
	case StepRequestNotes:
		return "request_notes"
	default:
		return "idle"
	}
}

// Session is the per-customer conversation state. It lives in memory only
// and is lost on restart; carts and profiles are persisted elsewhere.
type Session struct {
	Step Step

	// Selection awaiting a quantity.
	ProductID int64
	VariantID int64

	// ResumeCheckout is set when profile prompts were started by a checkout
	// attempt, so the checkout is retried once the profile is complete.
	ResumeCheckout bool

	// LastQuery is the last search that found nothing.
	LastQuery string
	Request   service.NewRequest
}

// Sessions is a concurrency-safe map of sessions keyed by Telegram user id.
type Sessions struct {
	mu sync.Mutex
	m  map[int64]Session
}

func NewSessions() *Sessions {
	return &Sessions{m: make(map[int64]Session)}
}

// Get returns a copy of the session, or the zero Session.
func (s *Sessions) Get(userID int64) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[userID]
}

func (s *Sessions) Set(userID int64, sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = sess
}

// Reset returns the user to StepIdle, keeping nothing.
func (s *Sessions) Reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}
