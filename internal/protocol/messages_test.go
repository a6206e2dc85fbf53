package protocol

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"evostrat/internal/model"
)

func TestEpisodeWireFormat(t *testing.T) {
	msg, err := NewEpisode(model.Episode{NoiseIndex: 12, Reward: 3.5})
	if err != nil {
		t.Fatalf("new episode: %v", err)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"type":"episode","payload":{"noiseIndex":12,"reward":3.5}}`
	if string(raw) != want {
		t.Fatalf("unexpected wire format:\n got %s\nwant %s", raw, want)
	}
}

func TestInitializeCarriesHistoryAndNullParameters(t *testing.T) {
	msg, err := NewInitialize(Initialize{Hyperparameters: model.Hyperparameters{Sigma: 0.1, Alpha: 0.01}})
	if err != nil {
		t.Fatalf("new initialize: %v", err)
	}
	if string(msg.Payload) != `{"blocks":[],"parameters":null,"hyperparameters":{"sigma":0.1,"alpha":0.01}}` {
		t.Fatalf("unexpected initialize payload: %s", msg.Payload)
	}
	init, err := msg.Initialize()
	if err != nil {
		t.Fatalf("decode initialize: %v", err)
	}
	if init.Parameters != nil || len(init.Blocks) != 0 || init.Hyperparameters.Sigma != 0.1 {
		t.Fatalf("unexpected initialize: %+v", init)
	}
}

func TestBlockPreservesOrderAndExactFloats(t *testing.T) {
	block := model.Block{{NoiseIndex: 3, Reward: 0.1 + 0.2}, {NoiseIndex: 1, Reward: math.Pi}, {NoiseIndex: 2, Reward: -1e-300}}
	msg, err := NewBlock(block)
	if err != nil {
		t.Fatalf("new block: %v", err)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Message
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, err := back.Block()
	if err != nil {
		t.Fatalf("decode block: %v", err)
	}
	for i := range block {
		if got[i] != block[i] {
			t.Fatalf("episode %d changed on the wire: %+v vs %+v", i, got[i], block[i])
		}
	}
}

func TestDecodeRejectsWrongType(t *testing.T) {
	msg := NewRequestParameters()
	if _, err := msg.Block(); err == nil {
		t.Fatal("expected type mismatch error")
	}
	if err := CheckKnown(Message{Type: "gossip"}); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
	if err := CheckKnown(msg); err != nil {
		t.Fatalf("request-parameters should be known: %v", err)
	}
}

func TestValidateEpisode(t *testing.T) {
	if _, err := NewEpisode(model.Episode{NoiseIndex: 1, Reward: math.NaN()}); !errors.Is(err, ErrInvalidEpisode) {
		t.Fatalf("expected ErrInvalidEpisode for NaN, got %v", err)
	}
	if _, err := NewEpisode(model.Episode{NoiseIndex: -1, Reward: 1}); !errors.Is(err, ErrInvalidEpisode) {
		t.Fatalf("expected ErrInvalidEpisode for negative index, got %v", err)
	}
	msg := Message{Type: TypeEpisode, Payload: json.RawMessage(`{"noiseIndex":-4,"reward":1}`)}
	if _, err := msg.Episode(); !errors.Is(err, ErrInvalidEpisode) {
		t.Fatalf("expected decoded negative index to be rejected, got %v", err)
	}
}

func TestParametersRoundTrip(t *testing.T) {
	msg, err := NewParameters(model.ParameterVector{1.5, -2})
	if err != nil {
		t.Fatalf("new parameters: %v", err)
	}
	params, err := msg.Parameters()
	if err != nil {
		t.Fatalf("decode parameters: %v", err)
	}
	if len(params) != 2 || params[0] != 1.5 || params[1] != -2 {
		t.Fatalf("unexpected parameters: %v", params)
	}
}
