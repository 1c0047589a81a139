package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// StepType discriminates the step variants of a flow graph.
type StepType string

const (
	// StepSendMessage emits one outbound message and continues immediately.
	StepSendMessage StepType = "send_message"
	// StepAskQuestion emits a message and halts until the next inbound event.
	StepAskQuestion StepType = "ask_question"
	// StepAPICall issues an outbound HTTP request and continues immediately.
	StepAPICall StepType = "api_call"
)

// InvalidResponsePolicy decides what happens when a question's attempt
// budget is exhausted.
type InvalidResponsePolicy string

const (
	// PolicyEndFlow deactivates the session.
	PolicyEndFlow InvalidResponsePolicy = "end_flow"
	// PolicySkipStep advances past the question without capturing a value.
	PolicySkipStep InvalidResponsePolicy = "skip_step"
	// PolicyFallback resumes the walk at the question's NextIDOnFailure.
	PolicyFallback InvalidResponsePolicy = "fallback"
)

// Step is one unit of flow behavior. Type selects the variant; the
// variant-specific fields below it apply only to that variant.
type Step struct {
	ID              string   `json:"id" yaml:"id" mapstructure:"id"`
	Type            StepType `json:"type" yaml:"type" mapstructure:"type"`
	StorageVariable string   `json:"storageVariable,omitempty" yaml:"storageVariable,omitempty" mapstructure:"storageVariable"`
	NextID          string   `json:"nextId,omitempty" yaml:"nextId,omitempty" mapstructure:"nextId"`

	// send_message / ask_question
	Message *MessageConfig `json:"messageConfig,omitempty" yaml:"messageConfig,omitempty" mapstructure:"messageConfig"`

	// ask_question
	MaxAttempts           int                   `json:"maxAttempts,omitempty" yaml:"maxAttempts,omitempty" mapstructure:"maxAttempts"`
	Validations           *ValidationConfig     `json:"validations,omitempty" yaml:"validations,omitempty" mapstructure:"validations"`
	OnInvalidResponse     InvalidResponsePolicy `json:"onInvalidResponse,omitempty" yaml:"onInvalidResponse,omitempty" mapstructure:"onInvalidResponse"`
	InvalidInputErrorText string                `json:"invalidInputErrorText,omitempty" yaml:"invalidInputErrorText,omitempty" mapstructure:"invalidInputErrorText"`
	NextIDOnFailure       string                `json:"nextIdOnFailure,omitempty" yaml:"nextIdOnFailure,omitempty" mapstructure:"nextIdOnFailure"`

	// api_call
	Method  string            `json:"method,omitempty" yaml:"method,omitempty" mapstructure:"method"`
	URL     string            `json:"url,omitempty" yaml:"url,omitempty" mapstructure:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" mapstructure:"headers"`
	Body    *CallBody         `json:"body,omitempty" yaml:"body,omitempty" mapstructure:"body"`
}

// ValidationConfig constrains a free-text answer. Zero values mean
// "no constraint". Any single violation rejects the whole input.
type ValidationConfig struct {
	Min   int    `json:"min,omitempty" yaml:"min,omitempty" mapstructure:"min"`
	Max   int    `json:"max,omitempty" yaml:"max,omitempty" mapstructure:"max"`
	Regex string `json:"regex,omitempty" yaml:"regex,omitempty" mapstructure:"regex"`
}

// CallBody is the templated payload of an api_call step.
type CallBody struct {
	ContentType string `json:"contentType,omitempty" yaml:"contentType,omitempty" mapstructure:"contentType"`
	Payload     string `json:"payload,omitempty" yaml:"payload,omitempty" mapstructure:"payload"`
}

// Blocking reports whether the step suspends the graph walk pending the
// next inbound event. Only questions block.
func (s Step) Blocking() bool {
	return s.Type == StepAskQuestion
}

// DecodeSteps converts loosely-typed step records, as they arrive from the
// management API or a YAML seed file, into typed steps. It checks that each
// record carries its variant's configuration but does not resolve graph
// links; that is Compile's job.
func DecodeSteps(raw []map[string]any) ([]Step, error) {
	steps := make([]Step, 0, len(raw))
	for i, record := range raw {
		var step Step
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &step,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(record); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		if err := step.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (s Step) validate() error {
	if s.ID == "" {
		return fmt.Errorf("step is missing an id")
	}
	switch s.Type {
	case StepSendMessage:
		if s.Message == nil {
			return fmt.Errorf("send_message step %q has no messageConfig", s.ID)
		}
		return s.Message.validate(s.ID)
	case StepAskQuestion:
		if s.Message == nil {
			return fmt.Errorf("ask_question step %q has no messageConfig", s.ID)
		}
		if s.Message.Type != MessageText && s.Message.Type != MessageInteractive {
			return fmt.Errorf("ask_question step %q cannot ask with message type %q", s.ID, s.Message.Type)
		}
		return s.Message.validate(s.ID)
	case StepAPICall:
		if s.URL == "" {
			return fmt.Errorf("api_call step %q has no url", s.ID)
		}
		if s.Method == "" {
			return fmt.Errorf("api_call step %q has no method", s.ID)
		}
	default:
		return fmt.Errorf("step %q has unknown type %q", s.ID, s.Type)
	}
	return nil
}
