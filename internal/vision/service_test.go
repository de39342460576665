package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name         string
		analysis     string
		wantValid    bool
		wantSteps    string
		wantAnalysis string
	}{
		{
			"valid with colon",
			"VALID: This is a clear Aadhaar card with name and number visible.",
			true,
			"proceed_to_payment",
			"This is a clear Aadhaar card with name and number visible.",
		},
		{
			"invalid with reason",
			"INVALID - The image is too blurry to read the ID number.",
			false,
			"request_new_document",
			"The image is too blurry to read the ID number.",
		},
		{
			"lowercase marker",
			"valid. Document checks out.",
			true,
			"proceed_to_payment",
			"Document checks out.",
		},
		{
			"no marker is invalid",
			"The document looks like an ID card.",
			false,
			"request_new_document",
			"The document looks like an ID card.",
		},
		{
			"surrounding whitespace",
			"  VALID\nAll required fields present.",
			true,
			"proceed_to_payment",
			"All required fields present.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := parseVerdict(tt.analysis)
			if verdict.IsValid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v", verdict.IsValid, tt.wantValid)
			}
			if verdict.NextSteps != tt.wantSteps {
				t.Errorf("NextSteps = %s, want %s", verdict.NextSteps, tt.wantSteps)
			}
			if verdict.Analysis != tt.wantAnalysis {
				t.Errorf("Analysis = %q, want %q", verdict.Analysis, tt.wantAnalysis)
			}
		})
	}
}

func TestVerifyDocument_UnsupportedFormat(t *testing.T) {
	service := NewService("http://localhost", "key", "gpt-4o", nil)

	verdict, err := service.VerifyDocument(context.Background(), []byte("data"), "application/zip")
	if err != nil {
		t.Fatalf("VerifyDocument() = %v", err)
	}
	if verdict.IsValid {
		t.Error("IsValid = true for unsupported format, want false")
	}
	if verdict.NextSteps != "request_new_document" {
		t.Errorf("NextSteps = %s, want request_new_document", verdict.NextSteps)
	}
}

func TestVerifyDocument_Simulated(t *testing.T) {
	service := NewService("http://localhost", "", "gpt-4o", nil)

	if !service.Simulated() {
		t.Fatal("Simulated() = false without API key, want true")
	}

	verdict, err := service.VerifyDocument(context.Background(), []byte("data"), "image/png")
	if err != nil {
		t.Fatalf("VerifyDocument() = %v", err)
	}
	if !verdict.IsValid {
		t.Error("IsValid = false in simulated mode, want true")
	}
	if verdict.NextSteps != "proceed_to_payment" {
		t.Errorf("NextSteps = %s, want proceed_to_payment", verdict.NextSteps)
	}
}

func TestVerifyDocument_CallsVisionModel(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]interface{}{"content": "VALID: Clear PAN card."}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	service := NewService(server.URL, "key", "gpt-4o", server.Client())

	verdict, err := service.VerifyDocument(context.Background(), []byte("fake-image-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("VerifyDocument() = %v", err)
	}
	if !verdict.IsValid {
		t.Error("IsValid = false, want true")
	}
	if verdict.Analysis != "Clear PAN card." {
		t.Errorf("Analysis = %q, want %q", verdict.Analysis, "Clear PAN card.")
	}

	if gotBody["model"] != "gpt-4o" {
		t.Errorf("request model = %v, want gpt-4o", gotBody["model"])
	}
	raw, _ := json.Marshal(gotBody)
	if !strings.Contains(string(raw), "data:image/jpeg;base64,") {
		t.Error("request does not embed the document as a base64 data URL")
	}
}

func TestVerifyDocument_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	service := NewService(server.URL, "key", "gpt-4o", server.Client())

	if _, err := service.VerifyDocument(context.Background(), []byte("x"), "image/png"); err == nil {
		t.Fatal("VerifyDocument() = nil, want error")
	}
}
