package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"

	"registerkaro/internal/agents"
	"registerkaro/internal/models"
)

// GenericFailureReply is what the visitor sees when the completion API fails.
// The failure itself is logged server-side; the connection survives.
const GenericFailureReply = "I'm having trouble processing your request. Please try again."

// uploadRequested is the canned line used when the model invokes the upload
// tool without any accompanying text.
const uploadRequested = "Great! To proceed with your company registration, please upload your identity and address proof documents using the form below."

var (
	urlPattern = regexp.MustCompile(`https?://\S+`)

	// Fallback phrases that signal the model asked for a document in free
	// text instead of through the tool call.
	uploadKeywords = []string{
		"upload your document", "send your document", "need your document",
		"upload your id", "upload id", "upload proof", "address proof",
		"identity proof", "upload your address", "document verification",
	}
)

// RouteResult is the outcome of routing one visitor message
type RouteResult struct {
	Reply                 string
	RequestDocumentUpload bool   // emit show_document_upload
	PaymentLink           string // emit payment_link when non-empty
}

// ChatService is the conversation router: it selects the instruction set for
// the session's funnel position, composes the prompt, calls the completion
// API, and turns the response into transcript entries plus side-channel events.
type ChatService struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	model        string
	contextTurns int
}

// NewChatService creates a chat service over an OpenAI-compatible endpoint
func NewChatService(baseURL, apiKey, model string, contextTurns int, client *http.Client) *ChatService {
	if client == nil {
		client = http.DefaultClient
	}
	if contextTurns <= 0 {
		contextTurns = 5
	}
	return &ChatService{
		httpClient:   client,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       apiKey,
		model:        model,
		contextTurns: contextTurns,
	}
}

// Route processes one inbound message for a session. The user turn is always
// appended to the transcript; the assistant turn is appended only on success,
// so a failed completion never leaves duplicate or phantom assistant entries.
func (s *ChatService) Route(ctx context.Context, record *models.SessionRecord, incoming string) (*RouteResult, error) {
	var (
		agent   *agents.Agent
		prompt  string
		session string
	)

	record.WithLock(func(r *models.SessionRecord) {
		r.AppendTurn("user", incoming)
		r.ResetFollowUps()
		agent = agents.Select(r.DocumentPending(), r.PaymentPending())
		prompt = s.composePrompt(r, incoming)
		session = r.SessionID
	})

	log.Printf("🤖 [ROUTER] Session %s routed to %s agent", session, agent.Name)

	reply, toolCalls, err := s.complete(ctx, agent, prompt)
	if err != nil {
		return nil, fmt.Errorf("completion API call failed: %w", err)
	}

	result := &RouteResult{Reply: reply}

	// Structured tool invocation is the primary trigger channel
	for _, name := range toolCalls {
		if name == agents.ToolRequestDocumentUpload {
			result.RequestDocumentUpload = true
		}
	}

	// Fallback: phrase sniffing on the free-text reply (legacy behavior, kept
	// for models that narrate instead of calling the tool)
	lower := strings.ToLower(reply)
	if !result.RequestDocumentUpload {
		for _, kw := range uploadKeywords {
			if strings.Contains(lower, kw) {
				result.RequestDocumentUpload = true
				break
			}
		}
	}

	if strings.Contains(lower, "payment link") {
		if link := extractPaymentLink(reply); link != "" {
			result.PaymentLink = link
		}
	}

	if result.Reply == "" && result.RequestDocumentUpload {
		result.Reply = uploadRequested
	}

	record.WithLock(func(r *models.SessionRecord) {
		r.AppendTurn("assistant", result.Reply)
		if result.RequestDocumentUpload {
			if err := r.SetDocumentStatus(models.DocumentPendingUpload); err != nil {
				// Already uploaded or verified; keep the reply, drop the event
				log.Printf("⚠️  [ROUTER] %v", err)
				result.RequestDocumentUpload = false
			}
		}
		if result.PaymentLink != "" {
			if err := r.SetPaymentStatus(models.PaymentLinkIssued); err != nil {
				log.Printf("⚠️  [ROUTER] %v", err)
				result.PaymentLink = ""
			} else {
				r.PaymentLink = result.PaymentLink
			}
		}
	})

	return result, nil
}

// FollowUpMessage picks the inactivity follow-up text for the session's
// current funnel position. contextHint comes from the client's "inactive"
// message and can force the urgent payment wording.
func (s *ChatService) FollowUpMessage(record *models.SessionRecord, contextHint string) string {
	msg := "Just checking in - are you still there? I'm here to help with your company registration. Remember, our special offer is valid only for today!"

	record.WithLock(func(r *models.SessionRecord) {
		if r.DocumentPending() {
			msg = "I noticed you haven't uploaded your document yet. This is an important step to secure your company registration. Can I help with any questions about the document requirements?"
		} else if r.PaymentPending() {
			msg = "I noticed you haven't completed the payment yet. This special discount offer is only valid for a limited time. Would you like me to guide you through the payment process? It's very simple and secure."
		}
	})

	if contextHint == "payment_pending" {
		msg = "Your payment is pending, and your registration slot is at risk! Our special promotion price is only valid for the next few minutes. Is there any payment issue I can help you resolve right now?"
	}

	return msg
}

// composePrompt embeds the recent transcript plus profile and status flags.
// Caller holds the record lock.
func (s *ChatService) composePrompt(r *models.SessionRecord, incoming string) string {
	var b strings.Builder

	b.WriteString("Context:\n")
	for _, turn := range r.LastTurns(s.contextTurns) {
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}

	if r.Profile != (models.Profile{}) {
		if info, err := json.Marshal(r.Profile); err == nil {
			b.WriteString("Visitor info: ")
			b.Write(info)
			b.WriteString("\n")
		}
	}
	fmt.Fprintf(&b, "Document status: %s\n", r.DocumentStatus)
	fmt.Fprintf(&b, "Payment status: %s\n", r.PaymentStatus)

	b.WriteString("\nUser's latest message: ")
	b.WriteString(incoming)
	return b.String()
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type toolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type toolDefinition struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type chatCompletionRequest struct {
	Model       string           `json:"model"`
	Messages    []chatMessage    `json:"messages"`
	Tools       []toolDefinition `json:"tools,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name string `json:"name"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// complete performs one non-streaming chat completion call
func (s *ChatService) complete(ctx context.Context, agent *agents.Agent, prompt string) (string, []string, error) {
	reqBody := chatCompletionRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: agent.Instructions},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
	}

	for _, name := range agent.Tools {
		if name == agents.ToolRequestDocumentUpload {
			reqBody.Tools = append(reqBody.Tools, toolDefinition{
				Type: "function",
				Function: toolFunction{
					Name:        agents.ToolRequestDocumentUpload,
					Description: "Ask the visitor to upload identity and address proof documents. Invoke when it is time to collect verification documents; it opens the upload form in the chat.",
					Parameters: map[string]interface{}{
						"type":       "object",
						"properties": map[string]interface{}{},
					},
				},
			})
		}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var apiResp chatCompletionResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", nil, fmt.Errorf("no choices in completion response")
	}

	msg := apiResp.Choices[0].Message
	toolCalls := make([]string, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		toolCalls = append(toolCalls, tc.Function.Name)
	}

	return msg.Content, toolCalls, nil
}

// extractPaymentLink pulls the first URL out of a reply, trimming trailing
// punctuation the model tends to attach.
func extractPaymentLink(text string) string {
	match := urlPattern.FindString(text)
	if match == "" {
		return ""
	}
	return strings.TrimRight(match, `.,)]"'`)
}
