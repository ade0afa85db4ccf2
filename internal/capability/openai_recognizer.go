package capability

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIRecognizerName         = "openai-vision"
	openAIRecognizerDefaultModel = openai.ChatModelGPT4oMini

	// Vision reads have no confidence channel; treat a non-empty answer
	// from the model as a fixed high-confidence read.
	openAIRecognizerConfidence = 0.9
)

// OpenAIRecognizerConfig holds configuration for the vision-LLM recognizer.
type OpenAIRecognizerConfig struct {
	APIKey     string
	Model      string
	RateLimit  float64       // Requests per second
	MaxRetries int           // Retry attempts for SDK transport
	RetryDelay time.Duration // Base retry delay for worker backoff
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIRecognizer implements Recognizer by asking a vision-capable
// chat model to transcribe a region crop. Used as a fallback for crops
// the dedicated OCR service cannot read.
type OpenAIRecognizer struct {
	model      string
	rateLimit  float64
	maxRetries int
	retryDelay time.Duration
	client     openai.Client
}

// NewOpenAIRecognizer creates a new vision-LLM recognizer.
func NewOpenAIRecognizer(cfg OpenAIRecognizerConfig) *OpenAIRecognizer {
	if cfg.Model == "" {
		cfg.Model = openAIRecognizerDefaultModel
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 3.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIRecognizer{
		model:      cfg.Model,
		rateLimit:  cfg.RateLimit,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     openai.NewClient(opts...),
	}
}

// Name returns the recognizer identifier.
func (r *OpenAIRecognizer) Name() string {
	return OpenAIRecognizerName
}

// RequestsPerSecond returns the configured rate limit.
func (r *OpenAIRecognizer) RequestsPerSecond() float64 {
	return r.rateLimit
}

// MaxRetries returns the maximum retry attempts.
func (r *OpenAIRecognizer) MaxRetries() int {
	return r.maxRetries
}

// RetryDelayBase returns the base delay for exponential backoff.
func (r *OpenAIRecognizer) RetryDelayBase() time.Duration {
	return r.retryDelay
}

// RecognizeText transcribes a region crop with a vision chat model.
func (r *OpenAIRecognizer) RecognizeText(ctx context.Context, crop []byte, hint string) (*Recognition, error) {
	start := time.Now()

	prompt := "Transcribe the text in this image exactly as written. " +
		"Reply with the text only, no commentary."
	if hint != "" {
		prompt += fmt.Sprintf(" The image is a %q field from a clinical document.", hint)
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(crop)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
	}

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &RecognitionError{Provider: r.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &RecognitionError{
			Provider: r.Name(),
			Err:      fmt.Errorf("no choices in completion response"),
		}
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	confidence := openAIRecognizerConfidence
	if text == "" {
		confidence = 0
	}

	return &Recognition{
		Text:       text,
		Confidence: confidence,
		Duration:   time.Since(start),
	}, nil
}

// Verify interface
var _ Recognizer = (*OpenAIRecognizer)(nil)
