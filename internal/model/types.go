package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// ParameterVector is the flat parameter layout of the model being optimized.
type ParameterVector []float64

// Clone returns an independent copy. A nil vector stays nil.
func (p ParameterVector) Clone() ParameterVector {
	if p == nil {
		return nil
	}
	return append(ParameterVector(nil), p...)
}

// Episode is one reported evaluation: the noise handle that produced the
// trial parameters and the reward they scored.
type Episode struct {
	NoiseIndex int64   `json:"noiseIndex"`
	Reward     float64 `json:"reward"`
}

// Block is an ordered batch of episodes. Once committed it is never mutated.
type Block []Episode

func (b Block) Rewards() []float64 {
	out := make([]float64, len(b))
	for i, ep := range b {
		out[i] = ep.Reward
	}
	return out
}

func (b Block) MeanReward() float64 {
	if len(b) == 0 {
		return 0
	}
	total := 0.0
	for _, ep := range b {
		total += ep.Reward
	}
	return total / float64(len(b))
}

func (b Block) Clone() Block {
	return append(Block(nil), b...)
}

type Hyperparameters struct {
	Sigma float64 `json:"sigma"`
	Alpha float64 `json:"alpha"`
}

// Checkpoint is the parameter snapshot the coordinator persists after a
// commit so a later run can warm start from it.
type Checkpoint struct {
	VersionedRecord
	Key            string          `json:"key"`
	Parameters     ParameterVector `json:"parameters"`
	BlockCount     int             `json:"block_count"`
	SmoothedReward float64         `json:"smoothed_reward"`
	WorkerID       string          `json:"worker_id,omitempty"`
}
