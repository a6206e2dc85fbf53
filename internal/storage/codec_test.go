package storage

import (
	"errors"
	"testing"

	"evostrat/internal/model"
)

func TestEncodeCheckpointStampsVersion(t *testing.T) {
	data, err := EncodeCheckpoint(model.Checkpoint{Key: "k", Parameters: model.ParameterVector{1}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	checkpoint, err := DecodeCheckpoint(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if checkpoint.Key != "k" || checkpoint.CodecVersion != CurrentCodecVersion {
		t.Fatalf("unexpected checkpoint: %+v", checkpoint)
	}
}

func TestDecodeCheckpointVersionMismatch(t *testing.T) {
	_, err := DecodeCheckpoint([]byte(`{"schema_version":2,"codec_version":1,"key":"k","parameters":[1]}`))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestDecodeCheckpointInvalidJSON(t *testing.T) {
	if _, err := DecodeCheckpoint([]byte(`{`)); err == nil {
		t.Fatal("expected decode error")
	}
}
