// Package protocol is the vocabulary shared by coordinator and workers. Only
// (noiseIndex, reward) pairs and occasional parameter snapshots travel on the
// wire.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"evostrat/internal/model"
)

type Type string

const (
	TypeInitialize        Type = "initialize"
	TypeEpisode           Type = "episode"
	TypeBlock             Type = "block"
	TypeRequestParameters Type = "request-parameters"
	TypeParameters        Type = "parameters"
)

var (
	ErrUnknownMessage = errors.New("unknown message type")
	ErrInvalidEpisode = errors.New("invalid episode")
)

// Message is the envelope every frame is wrapped in.
type Message struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Initialize struct {
	Blocks          []model.Block         `json:"blocks"`
	Parameters      model.ParameterVector `json:"parameters"`
	Hyperparameters model.Hyperparameters `json:"hyperparameters"`
}

type Parameters struct {
	Parameters model.ParameterVector `json:"parameters"`
}

func Encode(t Type, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", t, err)
	}
	return Message{Type: t, Payload: raw}, nil
}

func NewInitialize(init Initialize) (Message, error) {
	if init.Blocks == nil {
		init.Blocks = []model.Block{}
	}
	return Encode(TypeInitialize, init)
}

func NewEpisode(ep model.Episode) (Message, error) {
	if err := ValidateEpisode(ep); err != nil {
		return Message{}, err
	}
	return Encode(TypeEpisode, ep)
}

func NewBlock(block model.Block) (Message, error) {
	return Encode(TypeBlock, block)
}

func NewRequestParameters() Message {
	return Message{Type: TypeRequestParameters}
}

func NewParameters(params model.ParameterVector) (Message, error) {
	return Encode(TypeParameters, Parameters{Parameters: params})
}

func (m Message) Initialize() (Initialize, error) {
	var out Initialize
	if err := m.decode(TypeInitialize, &out); err != nil {
		return Initialize{}, err
	}
	return out, nil
}

func (m Message) Episode() (model.Episode, error) {
	var out model.Episode
	if err := m.decode(TypeEpisode, &out); err != nil {
		return model.Episode{}, err
	}
	if err := ValidateEpisode(out); err != nil {
		return model.Episode{}, err
	}
	return out, nil
}

func (m Message) Block() (model.Block, error) {
	var out model.Block
	if err := m.decode(TypeBlock, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m Message) Parameters() (model.ParameterVector, error) {
	var out Parameters
	if err := m.decode(TypeParameters, &out); err != nil {
		return nil, err
	}
	return out.Parameters, nil
}

func (m Message) decode(want Type, dst any) error {
	if m.Type != want {
		return fmt.Errorf("expected %s message, got %s", want, m.Type)
	}
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", want)
	}
	if err := json.Unmarshal(m.Payload, dst); err != nil {
		return fmt.Errorf("decode %s: %w", want, err)
	}
	return nil
}

// Known reports whether t is part of the vocabulary.
func Known(t Type) bool {
	switch t {
	case TypeInitialize, TypeEpisode, TypeBlock, TypeRequestParameters, TypeParameters:
		return true
	default:
		return false
	}
}

func ValidateEpisode(ep model.Episode) error {
	if ep.NoiseIndex < 0 {
		return fmt.Errorf("%w: negative noise index %d", ErrInvalidEpisode, ep.NoiseIndex)
	}
	if math.IsNaN(ep.Reward) || math.IsInf(ep.Reward, 0) {
		return fmt.Errorf("%w: non-finite reward %v", ErrInvalidEpisode, ep.Reward)
	}
	return nil
}

// CheckKnown wraps ErrUnknownMessage for types outside the vocabulary.
func CheckKnown(m Message) error {
	if !Known(m.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
	}
	return nil
}
