// Package vision verifies uploaded identity documents through a
// vision-capable chat completion model.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

// SupportedFormats are the MIME types the verifier accepts
var SupportedFormats = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

const analysisPrompt = `Analyze this document and check if it's a valid ID/document with clear information. Check for: 1) Document type 2) Clarity of text 3) Presence of required fields like name, ID number, date 4) Any issues that might cause rejection.

Begin your reply with the single word VALID or INVALID, then give your analysis.`

// Verdict is the verifier's decision on one document
type Verdict struct {
	IsValid   bool   `json:"is_valid"`
	Analysis  string `json:"analysis"`
	NextSteps string `json:"next_steps"` // "proceed_to_payment" or "request_new_document"
}

// Service calls an OpenAI-compatible vision model to verify documents.
// Without an API key it returns simulated verdicts so the funnel works offline.
type Service struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// NewService creates a vision verification service
func NewService(baseURL, apiKey, model string, client *http.Client) *Service {
	if client == nil {
		client = http.DefaultClient
	}
	return &Service{
		httpClient: client,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
	}
}

// Simulated reports whether verdicts are simulated (no API key configured)
func (s *Service) Simulated() bool {
	return s.apiKey == ""
}

// VerifyDocument analyzes a document and decides whether it passes
// verification. Unsupported formats are rejected without an API call.
func (s *Service) VerifyDocument(ctx context.Context, data []byte, mimeType string) (*Verdict, error) {
	if !SupportedFormats[mimeType] {
		return &Verdict{
			IsValid:   false,
			Analysis:  "Unsupported file format. Please upload an image (PNG, JPEG, GIF, WEBP) or a PDF document.",
			NextSteps: "request_new_document",
		}, nil
	}

	if s.Simulated() {
		log.Printf("[VISION] No API key configured, returning simulated verdict (%d bytes, %s)", len(data), mimeType)
		return &Verdict{
			IsValid:   true,
			Analysis:  "Document appears to be valid (simulated).",
			NextSteps: "proceed_to_payment",
		}, nil
	}

	log.Printf("[VISION] Analyzing document (%d bytes, %s)", len(data), mimeType)

	base64Data := base64.StdEncoding.EncodeToString(data)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64Data)

	analysis, err := s.callVisionAPI(ctx, dataURL)
	if err != nil {
		return nil, err
	}

	return parseVerdict(analysis), nil
}

// callVisionAPI makes the chat completion call with the document embedded as
// an image URL part.
func (s *Service) callVisionAPI(ctx context.Context, dataURL string) (string, error) {
	messages := []map[string]interface{}{
		{
			"role": "user",
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": analysisPrompt,
				},
				{
					"type": "image_url",
					"image_url": map[string]interface{}{
						"url":    dataURL,
						"detail": "auto",
					},
				},
			},
		},
	}

	requestBody := map[string]interface{}{
		"model":      s.model,
		"messages":   messages,
		"max_tokens": 300,
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := s.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(requestJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("[VISION] API error: %d - %s", resp.StatusCode, string(body))
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("no response from vision model")
	}

	return apiResp.Choices[0].Message.Content, nil
}

// parseVerdict reads the leading VALID/INVALID marker. A reply without the
// marker counts as invalid: the safe failure mode is asking for a re-upload.
func parseVerdict(analysis string) *Verdict {
	trimmed := strings.TrimSpace(analysis)
	upper := strings.ToUpper(trimmed)

	isValid := strings.HasPrefix(upper, "VALID")
	// Strip the marker so the visitor sees clean prose
	for _, marker := range []string{"VALID", "INVALID"} {
		if strings.HasPrefix(upper, marker) {
			trimmed = strings.TrimLeft(trimmed[len(marker):], " .:,-\n")
			break
		}
	}

	nextSteps := "request_new_document"
	if isValid {
		nextSteps = "proceed_to_payment"
	}

	return &Verdict{
		IsValid:   isValid,
		Analysis:  trimmed,
		NextSteps: nextSteps,
	}
}
