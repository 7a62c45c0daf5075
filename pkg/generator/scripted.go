package generator

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/blockchat/pkg/conversation"
)

var ErrScriptExhausted = errors.New("script exhausted")

// Step is one canned generator reaction. Exactly one of Raw, Envelope or
// Error is used, in that order of precedence.
type Step struct {
	// Raw is returned verbatim, so malformed output can be scripted too.
	Raw string `yaml:"raw,omitempty"`
	// Envelope is re-encoded as JSON.
	Envelope map[string]interface{} `yaml:"envelope,omitempty"`
	// Error makes the step fail with ErrUnavailable.
	Error string `yaml:"error,omitempty"`
	// Delay is waited before answering, e.g. "2s". It honours the context deadline.
	Delay string `yaml:"delay,omitempty"`
}

// Script is the YAML document read by LoadScript.
type Script struct {
	Steps []Step `yaml:"steps"`
	// Loop restarts at the first step when all steps were used.
	Loop bool `yaml:"loop,omitempty"`
}

// Scripted replays a Script, one step per call.
type Scripted struct {
	mu     sync.Mutex
	script Script
	next   int
	calls  [][]conversation.Message
}

var _ Generator = (*Scripted)(nil)

func NewScripted(script Script) *Scripted {
	return &Scripted{script: script}
}

// NewScriptedRaw is a shortcut for a script of raw outputs.
func NewScriptedRaw(outputs ...string) *Scripted {
	steps := make([]Step, 0, len(outputs))
	for _, o := range outputs {
		steps = append(steps, Step{Raw: o})
	}
	return NewScripted(Script{Steps: steps})
}

func LoadScript(path string) (*Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read generator script")
	}
	var s Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, errors.Wrapf(err, "parse generator script %s", path)
	}
	if len(s.Steps) == 0 {
		return nil, errors.Errorf("generator script %s has no steps", path)
	}
	for i, st := range s.Steps {
		if st.Delay != "" {
			if _, err := time.ParseDuration(st.Delay); err != nil {
				return nil, errors.Wrapf(err, "step %d delay", i)
			}
		}
	}
	return &s, nil
}

func (s *Scripted) Generate(ctx context.Context, history []conversation.Message) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]conversation.Message(nil), history...))
	if s.next >= len(s.script.Steps) {
		if !s.script.Loop || len(s.script.Steps) == 0 {
			s.mu.Unlock()
			return "", errors.Wrap(ErrUnavailable, ErrScriptExhausted.Error())
		}
		s.next = 0
	}
	step := s.script.Steps[s.next]
	s.next++
	s.mu.Unlock()

	if step.Delay != "" {
		d, err := time.ParseDuration(step.Delay)
		if err != nil {
			return "", errors.Wrap(err, "step delay")
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", errors.Wrap(ErrUnavailable, ctx.Err().Error())
		}
	}

	switch {
	case step.Raw != "":
		return step.Raw, nil
	case step.Envelope != nil:
		b, err := json.Marshal(step.Envelope)
		if err != nil {
			return "", errors.Wrap(err, "encode scripted envelope")
		}
		return string(b), nil
	case step.Error != "":
		return "", errors.Wrap(ErrUnavailable, step.Error)
	default:
		return "", nil
	}
}

// Calls returns the histories the generator was called with.
func (s *Scripted) Calls() [][]conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]conversation.Message(nil), s.calls...)
}
