package engine

import (
	"context"
	"sync/atomic"
)

// Switch holds the active generator and lets it be replaced at runtime.
// A nil generator means text generation is disabled.
type Switch struct {
	cur atomic.Pointer[holder]
}

type holder struct{ gen Generator }

// NewSwitch returns a Switch initially serving gen (which may be nil).
func NewSwitch(gen Generator) *Switch {
	s := &Switch{}
	s.Set(gen)
	return s
}

// Set replaces the active generator. In-flight calls finish on the old one.
func (s *Switch) Set(gen Generator) {
	s.cur.Store(&holder{gen: gen})
}

// Current returns the active generator, or nil when disabled.
func (s *Switch) Current() Generator {
	h := s.cur.Load()
	if h == nil {
		return nil
	}
	return h.gen
}

func (s *Switch) Generate(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	gen := s.Current()
	if gen == nil {
		return "", ErrNotConfigured
	}
	return gen.Generate(ctx, prompt, expectJSON)
}
