// Package stub provides a deterministic native inference engine. It scores
// images from a digest of the preprocessed tensor, so the same input always
// produces the same output. Useful for development and end-to-end tests
// where the exported model graph is not available.
package stub

import (
	"encoding/binary"
	"hash/fnv"
	"log/slog"
	"math"

	"github.com/xxjiinn/medical-inference-platform/internal/adapter/predictor"
	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

type Predictor struct {
	device string
}

// New constructs the stub engine. Device is informational only.
func New(device string) *Predictor { return &Predictor{device: device} }

// Load is instantaneous for the stub; there are no weights to fetch.
func (p *Predictor) Load(ctx domain.Context) error {
	slog.Info("stub predictor ready", slog.String("device", p.device))
	return nil
}

func (p *Predictor) Preprocess(data []byte) (domain.Tensor, error) {
	return predictor.Preprocess(data)
}

// PredictBatch derives one sigmoid-squashed score per pathology from a hash
// of the tensor bytes. It honors ctx between items so a deadline set by the
// caller still applies.
func (p *Predictor) PredictBatch(ctx domain.Context, inputs []domain.Tensor) ([]map[string]float64, error) {
	outputs := make([]map[string]float64, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outputs = append(outputs, scoreTensor(in))
	}
	return outputs, nil
}

func scoreTensor(in domain.Tensor) map[string]float64 {
	h := fnv.New64a()
	var buf [4]byte
	for _, v := range in.Data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
		_, _ = h.Write(buf[:])
	}
	seed := h.Sum64()

	scores := make(map[string]float64, len(domain.Pathologies))
	for i, label := range domain.Pathologies {
		// Mix the seed per label with a splitmix64 round.
		x := seed + uint64(i+1)*0x9e3779b97f4a7c15
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
		// Map to (0,1) through a sigmoid for plausible logit-like spread.
		logit := (float64(x%2000) - 1000) / 250
		scores[label] = 1 / (1 + math.Exp(-logit))
	}
	return scores
}
