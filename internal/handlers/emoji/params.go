package emoji

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const PromptPlaceholder = "{prompt}"

// ModelInput is the input block sent with every prediction. Field order
// matches what the model has always been called with.
type ModelInput struct {
	Width             int     `json:"width" yaml:"width"`
	Height            int     `json:"height" yaml:"height"`
	Prompt            string  `json:"prompt" yaml:"-"`
	Refine            string  `json:"refine" yaml:"refine"`
	Scheduler         string  `json:"scheduler" yaml:"scheduler"`
	LoraScale         float64 `json:"lora_scale" yaml:"lora_scale"`
	NumOutputs        int     `json:"num_outputs" yaml:"num_outputs"`
	GuidanceScale     float64 `json:"guidance_scale" yaml:"guidance_scale"`
	ApplyWatermark    bool    `json:"apply_watermark" yaml:"apply_watermark"`
	HighNoiseFrac     float64 `json:"high_noise_frac" yaml:"high_noise_frac"`
	NegativePrompt    string  `json:"negative_prompt" yaml:"negative_prompt"`
	PromptStrength    float64 `json:"prompt_strength" yaml:"prompt_strength"`
	NumInferenceSteps int     `json:"num_inference_steps" yaml:"num_inference_steps"`
}

type GenerationParams struct {
	Version        string     `yaml:"version"`
	PromptTemplate string     `yaml:"prompt_template"`
	Input          ModelInput `yaml:"input"`
}

func DefaultParams() GenerationParams {
	return GenerationParams{
		Version:        "dee76b5afde21b0f01ed7925f0665b7e879c50ee718c5f78a9d38e04d523cc5e",
		PromptTemplate: "A TOK emoji of " + PromptPlaceholder,
		Input: ModelInput{
			Width:             1024,
			Height:            1024,
			Refine:            "no_refiner",
			Scheduler:         "K_EULER",
			LoraScale:         0.6,
			NumOutputs:        1,
			GuidanceScale:     7.5,
			ApplyWatermark:    false,
			HighNoiseFrac:     0.8,
			NegativePrompt:    "",
			PromptStrength:    0.8,
			NumInferenceSteps: 50,
		},
	}
}

// LoadParams reads overrides for the default parameter block from a YAML
// file. Keys missing from the file keep their defaults.
func LoadParams(path string) (GenerationParams, error) {
	params := DefaultParams()
	if path == "" {
		return params, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return params, fmt.Errorf("failed to read generation params %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &params); err != nil {
		return params, fmt.Errorf("failed to parse generation params %s: %w", path, err)
	}
	if err := params.Validate(); err != nil {
		return params, err
	}
	return params, nil
}

func (p GenerationParams) Validate() error {
	var errs []error
	if p.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}
	if !strings.Contains(p.PromptTemplate, PromptPlaceholder) {
		errs = append(errs, fmt.Errorf("prompt_template must contain %s", PromptPlaceholder))
	}
	if p.Input.Width <= 0 || p.Input.Height <= 0 {
		errs = append(errs, errors.New("width and height must be positive"))
	}
	if p.Input.NumOutputs < 1 {
		errs = append(errs, errors.New("num_outputs must be at least 1"))
	}
	if p.Input.NumInferenceSteps < 1 {
		errs = append(errs, errors.New("num_inference_steps must be at least 1"))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{errors.New("invalid generation params")}, errs...)...)
	}
	return nil
}

// InputFor returns the model input with the user's prompt wrapped in the template
func (p GenerationParams) InputFor(prompt string) ModelInput {
	input := p.Input
	input.Prompt = strings.ReplaceAll(p.PromptTemplate, PromptPlaceholder, prompt)
	return input
}
