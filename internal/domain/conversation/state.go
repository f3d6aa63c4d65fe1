package conversation

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aislide/aislide-bot/internal/domain/task"
)

type StateKind string

const (
	KindIdle                   StateKind = "idle"
	KindCollectingPitchAnswers StateKind = "collecting_pitch_answers"
	KindConfirmingCreation     StateKind = "confirming_creation"
	KindAwaitingDepositAmount  StateKind = "awaiting_deposit_amount"
	KindAwaitingReceipt        StateKind = "awaiting_receipt"
)

// State is one conversation state. Each variant carries only its own fields.
type State interface {
	Kind() StateKind
}

type Idle struct{}

// CollectingPitchAnswers waits for the answer to Questions[QuestionIndex].
type CollectingPitchAnswers struct {
	QuestionIndex int      `json:"question_index"`
	Answers       []string `json:"answers"`
}

// ConfirmingCreation holds a quote the user has not accepted yet. Answers is
// empty until the pitch questionnaire is finished.
type ConfirmingCreation struct {
	ServiceType task.Kind       `json:"service_type"`
	QuotedPrice decimal.Decimal `json:"quoted_price"`
	Answers     []string        `json:"answers,omitempty"`
}

type AwaitingDepositAmount struct{}

type AwaitingReceipt struct {
	Amount decimal.Decimal `json:"amount"`
}

func (Idle) Kind() StateKind                   { return KindIdle }
func (CollectingPitchAnswers) Kind() StateKind { return KindCollectingPitchAnswers }
func (ConfirmingCreation) Kind() StateKind     { return KindConfirmingCreation }
func (AwaitingDepositAmount) Kind() StateKind  { return KindAwaitingDepositAmount }
func (AwaitingReceipt) Kind() StateKind        { return KindAwaitingReceipt }

// HasAnswers reports whether the questionnaire is already done.
func (s ConfirmingCreation) HasAnswers() bool {
	return len(s.Answers) > 0
}

type envelope struct {
	Kind StateKind       `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// EncodeState serializes a state as {"kind": ..., "data": ...}.
func EncodeState(s State) ([]byte, error) {
	if s == nil {
		s = Idle{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode %s state: %w", s.Kind(), err)
	}
	return json.Marshal(envelope{Kind: s.Kind(), Data: data})
}

// DecodeState is the inverse of EncodeState.
func DecodeState(b []byte) (State, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}

	var s State
	switch env.Kind {
	case KindIdle:
		return Idle{}, nil
	case KindAwaitingDepositAmount:
		return AwaitingDepositAmount{}, nil
	case KindCollectingPitchAnswers:
		var v CollectingPitchAnswers
		if err := unmarshalData(env.Data, &v); err != nil {
			return nil, err
		}
		s = v
	case KindConfirmingCreation:
		var v ConfirmingCreation
		if err := unmarshalData(env.Data, &v); err != nil {
			return nil, err
		}
		s = v
	case KindAwaitingReceipt:
		var v AwaitingReceipt
		if err := unmarshalData(env.Data, &v); err != nil {
			return nil, err
		}
		s = v
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrCorruptState, env.Kind)
	}
	return s, nil
}

func unmarshalData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrCorruptState)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return nil
}
