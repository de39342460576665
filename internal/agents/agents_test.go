package agents

import "testing"

func TestSelect(t *testing.T) {
	tests := []struct {
		name            string
		documentPending bool
		paymentPending  bool
		want            *Agent
	}{
		{"fresh visitor gets sales", false, false, Sales},
		{"outstanding document", true, false, DocumentVerification},
		{"unpaid link", false, true, Payment},
		{"document outranks payment", true, true, DocumentVerification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Select(tt.documentPending, tt.paymentPending); got != tt.want {
				t.Errorf("Select(%v, %v) = %s, want %s", tt.documentPending, tt.paymentPending, got.Name, tt.want.Name)
			}
		})
	}
}

func TestSalesAgentCanRequestUpload(t *testing.T) {
	found := false
	for _, tool := range Sales.Tools {
		if tool == ToolRequestDocumentUpload {
			found = true
		}
	}
	if !found {
		t.Errorf("Sales.Tools = %v, want to include %s", Sales.Tools, ToolRequestDocumentUpload)
	}
}
