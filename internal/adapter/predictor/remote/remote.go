// Package remote implements an inference engine backed by an exported-graph
// model server speaking JSON over HTTP. The server holds the weights; this
// client ships preprocessed tensors and reads back per-label scores.
package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/xxjiinn/medical-inference-platform/internal/adapter/predictor"
	"github.com/xxjiinn/medical-inference-platform/internal/domain"
)

type Predictor struct {
	baseURL string
	device  string
	hc      *http.Client
}

// New constructs a remote engine targeting baseURL. The HTTP client carries
// no timeout of its own; PredictBatch deadlines arrive via context.
func New(baseURL, device string) *Predictor {
	return &Predictor{baseURL: baseURL, device: device, hc: &http.Client{}}
}

type predictRequest struct {
	Device string       `json:"device,omitempty"`
	Inputs []tensorWire `json:"inputs"`
}

type tensorWire struct {
	Data   []float32 `json:"data"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
}

type predictResponse struct {
	Outputs []map[string]float64 `json:"outputs"`
	Error   string               `json:"error,omitempty"`
}

// Load probes the server's health endpoint with a short retry loop so a
// worker starting alongside the model server does not crash on the race.
func (p *Predictor) Load(ctx domain.Context) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/healthz", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := p.hc.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("model server health: status %d", resp.StatusCode)
		}
		return nil
	}
	expo := backoff.NewExponentialBackOff()
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return fmt.Errorf("op=predictor.load: %w: %w", domain.ErrUnavailable, err)
	}
	slog.Info("remote predictor ready", slog.String("url", p.baseURL), slog.String("device", p.device))
	return nil
}

func (p *Predictor) Preprocess(data []byte) (domain.Tensor, error) {
	return predictor.Preprocess(data)
}

// PredictBatch posts the whole batch in one request. A deadline exceeded on
// the context surfaces as ErrInferenceTimeout so the retry policy treats it
// as a failed attempt rather than a transport outage.
func (p *Predictor) PredictBatch(ctx domain.Context, inputs []domain.Tensor) ([]map[string]float64, error) {
	wire := predictRequest{Device: p.device, Inputs: make([]tensorWire, 0, len(inputs))}
	for _, t := range inputs {
		wire.Inputs = append(wire.Inputs, tensorWire{Data: t.Data, Width: t.Width, Height: t.Height})
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("op=predictor.predict: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("op=predictor.predict: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("op=predictor.predict: %w: %w", domain.ErrInferenceTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("op=predictor.predict: %w: %w", domain.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("op=predictor.predict: read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("op=predictor.predict: status %d: %w", resp.StatusCode, domain.ErrInference)
	}
	var out predictResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("op=predictor.predict: unmarshal: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("op=predictor.predict: %s: %w", out.Error, domain.ErrInference)
	}
	if len(out.Outputs) != len(inputs) {
		return nil, fmt.Errorf("op=predictor.predict: got %d outputs for %d inputs: %w", len(out.Outputs), len(inputs), domain.ErrInference)
	}
	return out.Outputs, nil
}
