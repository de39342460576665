package services

import (
	"context"
	"regexp"
	"testing"

	"registerkaro/internal/models"
)

func TestNewPaymentService(t *testing.T) {
	service := NewPaymentService("", "test", nil)
	if service == nil {
		t.Fatal("Expected non-nil payment service")
	}
}

func TestSelectPackage(t *testing.T) {
	tests := []struct {
		name        string
		companyType string
		wantKey     string
		wantAmount  int64
	}{
		{"private limited", "private_limited", "private_limited", 5000},
		{"llp", "llp", "llp", 6000},
		{"opc", "opc", "opc", 4500},
		{"one person spelled out", "One Person Company", "opc", 4500},
		{"unknown defaults to pvt ltd", "sole proprietorship", "private_limited", 5000},
		{"empty defaults to pvt ltd", "", "private_limited", 5000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := SelectPackage(tt.companyType)
			if pkg.Key != tt.wantKey {
				t.Errorf("Key = %s, want %s", pkg.Key, tt.wantKey)
			}
			if pkg.Amount != tt.wantAmount {
				t.Errorf("Amount = %d, want %d", pkg.Amount, tt.wantAmount)
			}
			if pkg.Currency != "INR" {
				t.Errorf("Currency = %s, want INR", pkg.Currency)
			}
		})
	}
}

func TestPaymentService_SimulatedLinkShape(t *testing.T) {
	service := NewPaymentService("", "test", nil)

	link, err := service.CreatePaymentLink(context.Background(), models.Profile{CompanyType: "llp"})
	if err != nil {
		t.Fatalf("CreatePaymentLink() = %v", err)
	}

	if ok, _ := regexp.MatchString(`^pay_[0-9a-f]{16}$`, link.PaymentID); !ok {
		t.Errorf("PaymentID = %q, want pay_<16 hex chars>", link.PaymentID)
	}
	wantLink := "https://rzp.io/l/RegisterKaro-" + link.PaymentID
	if link.Link != wantLink {
		t.Errorf("Link = %q, want %q", link.Link, wantLink)
	}
	if link.Amount != 6000 || link.Currency != "INR" {
		t.Errorf("package = %d %s, want 6000 INR", link.Amount, link.Currency)
	}
}

func TestPaymentService_SimulatedLinksAreUnique(t *testing.T) {
	service := NewPaymentService("", "test", nil)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		link, err := service.CreatePaymentLink(context.Background(), models.Profile{})
		if err != nil {
			t.Fatalf("CreatePaymentLink() = %v", err)
		}
		if seen[link.PaymentID] {
			t.Fatalf("duplicate payment ID %s", link.PaymentID)
		}
		seen[link.PaymentID] = true
	}
}

func TestPaymentService_CheckPaymentStatusSimulated(t *testing.T) {
	service := NewPaymentService("", "test", nil)

	tests := []struct {
		name          string
		paymentID     string
		wantStatus    string
		wantCompleted bool
	}{
		{"pending payment", "pay_0011223344556677", "created", false},
		{"completed payment", "pay_0011223344556677_done", "paid", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := service.CheckPaymentStatus(context.Background(), tt.paymentID)
			if err != nil {
				t.Fatalf("CheckPaymentStatus() = %v", err)
			}
			if result.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", result.Status, tt.wantStatus)
			}
			if result.Completed != tt.wantCompleted {
				t.Errorf("Completed = %v, want %v", result.Completed, tt.wantCompleted)
			}
			if result.PaymentID != tt.paymentID {
				t.Errorf("PaymentID = %s, want %s", result.PaymentID, tt.paymentID)
			}
		})
	}
}
