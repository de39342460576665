package services

import (
	"log"
	"regexp"
	"strings"

	"registerkaro/internal/models"
)

// Opportunistic extraction of visitor details from free-form chat. Heuristic
// by design: a miss costs nothing, the completion API asks again.
var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)my name is\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`),
		regexp.MustCompile(`(?i)i am\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`),
		regexp.MustCompile(`(?i)this is\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`),
	}

	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

	// Indian mobile numbers, with or without country code
	phonePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\+91[0-9]{10}`),
		regexp.MustCompile(`[6-9][0-9]{9}`),
	}

	companyTypeKeywords = []struct {
		keyword string
		value   string
	}{
		{"llp", "llp"},
		{"limited liability", "llp"},
		{"opc", "opc"},
		{"one person", "opc"},
		{"private limited", "private_limited"},
		{"pvt ltd", "private_limited"},
		{"pvt. ltd", "private_limited"},
	}
)

// ExtractProfile scans an inbound message for name, email, phone and company
// type, and merges anything found into the record's profile. Existing fields
// are never overwritten; first capture wins.
func ExtractProfile(record *models.SessionRecord, message string) {
	record.WithLock(func(r *models.SessionRecord) {
		lower := strings.ToLower(message)

		if r.Profile.Name == "" {
			for _, p := range namePatterns {
				if m := p.FindStringSubmatch(message); m != nil {
					r.Profile.Name = m[1]
					log.Printf("👤 [PROFILE] Extracted name for session %s: %s", r.SessionID, m[1])
					break
				}
			}
		}

		if r.Profile.Email == "" && strings.Contains(message, "@") {
			if m := emailPattern.FindString(message); m != "" {
				r.Profile.Email = m
				log.Printf("👤 [PROFILE] Extracted email for session %s: %s", r.SessionID, m)
			}
		}

		if r.Profile.Phone == "" && strings.ContainsAny(message, "0123456789") {
			for _, p := range phonePatterns {
				if m := p.FindString(message); m != "" {
					r.Profile.Phone = m
					log.Printf("👤 [PROFILE] Extracted phone for session %s: %s", r.SessionID, m)
					break
				}
			}
		}

		if r.Profile.CompanyType == "" {
			for _, ct := range companyTypeKeywords {
				if strings.Contains(lower, ct.keyword) {
					r.Profile.CompanyType = ct.value
					log.Printf("👤 [PROFILE] Extracted company type for session %s: %s", r.SessionID, ct.value)
					break
				}
			}
		}
	})
}
