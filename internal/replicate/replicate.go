// Package replicate adapts the Replicate SDK to the prediction shape the
// generation handler polls on
package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	replicatego "github.com/replicate/replicate-go"
)

const DefaultEndpoint = "https://api.replicate.com/v1"

// Provider side statuses
const (
	StatusStarting   = string(replicatego.Starting)
	StatusProcessing = string(replicatego.Processing)
	StatusSucceeded  = string(replicatego.Succeeded)
	StatusFailed     = string(replicatego.Failed)
	StatusCanceled   = string(replicatego.Canceled)
)

var ErrRequestFailed = errors.New("replicate request failed")

type CreatePredictionRequest struct {
	Version string
	// Input is sent as the prediction's JSON input object
	Input any
}

type Prediction struct {
	ID      string
	Version string
	Status  string
	// Output is left undecoded beyond generic JSON; its shape depends on the model
	Output    any
	Error     any
	CreatedAt time.Time
}

// Terminal reports whether the prediction will not change status again
func (p *Prediction) Terminal() bool {
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

func (p *Prediction) Succeeded() bool {
	return p.Status == StatusSucceeded
}

// ErrorDetail renders the provider error field for logs and user messages
func (p *Prediction) ErrorDetail() string {
	switch v := p.Error.(type) {
	case nil:
		if p.Status == StatusCanceled {
			return "prediction canceled"
		}
		return "unknown error"
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

type Client struct {
	sdk *replicatego.Client
}

func NewClient(apiToken, endpoint string) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	tr := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: 5 * time.Second,
		}).Dial,
		TLSHandshakeTimeout: 5 * time.Second,
		DisableKeepAlives:   false,
	}
	sdk, err := replicatego.NewClient(
		replicatego.WithToken(apiToken),
		replicatego.WithBaseURL(endpoint),
		replicatego.WithHTTPClient(&http.Client{Transport: tr, Timeout: 1 * time.Minute}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create replicate client: %w", err)
	}
	return &Client{sdk: sdk}, nil
}

func (c *Client) CreatePrediction(ctx context.Context, req CreatePredictionRequest) (*Prediction, error) {
	input, err := toPredictionInput(req.Input)
	if err != nil {
		return nil, err
	}
	p, err := c.sdk.CreatePrediction(ctx, req.Version, input, nil, false)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create prediction: %w", err), ErrRequestFailed)
	}
	return fromSDK(p)
}

func (c *Client) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	p, err := c.sdk.GetPrediction(ctx, id)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to get prediction %s: %w", id, err), ErrRequestFailed)
	}
	return fromSDK(p)
}

// toPredictionInput turns a tagged struct into the SDK's input map using its
// json field names
func toPredictionInput(input any) (replicatego.PredictionInput, error) {
	if m, ok := input.(replicatego.PredictionInput); ok {
		return m, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prediction input: %w", err)
	}
	var m replicatego.PredictionInput
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("prediction input is not a JSON object: %w", err)
	}
	return m, nil
}

func fromSDK(p *replicatego.Prediction) (*Prediction, error) {
	if p == nil || p.ID == "" {
		return nil, errors.Join(errors.New("replicate response missing prediction id"), ErrRequestFailed)
	}
	out := &Prediction{
		ID:      p.ID,
		Version: p.Version,
		Status:  string(p.Status),
		Output:  p.Output,
		Error:   p.Error,
	}
	if created, err := time.Parse(time.RFC3339Nano, p.CreatedAt); err == nil {
		out.CreatedAt = created
	}
	return out, nil
}
