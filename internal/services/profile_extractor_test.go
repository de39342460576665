package services

import (
	"testing"

	"registerkaro/internal/models"
)

func TestExtractProfile(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    models.Profile
	}{
		{
			"name via my name is",
			"Hello, my name is Rahul Sharma",
			models.Profile{Name: "Rahul Sharma"},
		},
		{
			"name via i am",
			"Hi, I am Priya and I need help",
			models.Profile{Name: "Priya"},
		},
		{
			"email",
			"reach me at rahul.sharma@example.com please",
			models.Profile{Email: "rahul.sharma@example.com"},
		},
		{
			"phone with country code",
			"call me on +919876543210",
			models.Profile{Phone: "+919876543210"},
		},
		{
			"bare indian mobile",
			"my number is 9876543210",
			models.Profile{Phone: "9876543210"},
		},
		{
			"private limited",
			"I want to register a Private Limited company",
			models.Profile{CompanyType: "private_limited"},
		},
		{
			"pvt ltd shorthand",
			"thinking of a pvt ltd",
			models.Profile{CompanyType: "private_limited"},
		},
		{
			"llp",
			"what does an LLP cost?",
			models.Profile{CompanyType: "llp"},
		},
		{
			"opc",
			"is a One Person Company right for me?",
			models.Profile{CompanyType: "opc"},
		},
		{
			"everything at once",
			"I am Anita, email anita@startup.in, phone 9123456780, looking at an OPC",
			models.Profile{Name: "Anita", Email: "anita@startup.in", Phone: "9123456780", CompanyType: "opc"},
		},
		{
			"nothing extractable",
			"hello there",
			models.Profile{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := models.NewSessionRecord("s1")
			ExtractProfile(record, tt.message)

			var got models.Profile
			record.WithLock(func(r *models.SessionRecord) {
				got = r.Profile
			})
			if got != tt.want {
				t.Errorf("Profile = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtractProfile_FirstCaptureWins(t *testing.T) {
	record := models.NewSessionRecord("s1")

	ExtractProfile(record, "my name is Rahul")
	ExtractProfile(record, "my name is Someone Else")

	record.WithLock(func(r *models.SessionRecord) {
		if r.Profile.Name != "Rahul" {
			t.Errorf("Name = %q, want Rahul (first capture wins)", r.Profile.Name)
		}
	})
}
