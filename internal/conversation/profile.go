package conversation

import (
	"fmt"
	"strings"
	"time"
)

// BusinessProfile shapes the assistant's persona for a business type.
type BusinessProfile struct {
	Name     string
	Tone     string
	Services string
}

var defaultProfile = BusinessProfile{
	Name:     "booking assistant",
	Tone:     "friendly and professional",
	Services: "appointments and reservations",
}

// profiles keys are lowercase business types.
var profiles = map[string]BusinessProfile{
	"restaurant": {
		Name:     "restaurant host",
		Tone:     "warm and welcoming",
		Services: "table reservations for lunch and dinner",
	},
	"salon": {
		Name:     "salon receptionist",
		Tone:     "friendly and upbeat",
		Services: "haircuts, coloring, and styling appointments",
	},
	"spa": {
		Name:     "spa concierge",
		Tone:     "calm and attentive",
		Services: "massages, facials, and wellness treatments",
	},
	"clinic": {
		Name:     "clinic receptionist",
		Tone:     "professional and reassuring",
		Services: "medical consultations and checkups",
	},
	"dental": {
		Name:     "dental office receptionist",
		Tone:     "professional and reassuring",
		Services: "cleanings, checkups, and dental procedures",
	},
	"fitness": {
		Name:     "fitness studio assistant",
		Tone:     "energetic and encouraging",
		Services: "classes and personal training sessions",
	},
	"barbershop": {
		Name:     "barbershop assistant",
		Tone:     "casual and friendly",
		Services: "haircuts, shaves, and beard trims",
	},
}

// LookupProfile resolves a business type to a profile: exact match first,
// then substring match in either direction, then the generic default.
func LookupProfile(businessType string) BusinessProfile {
	key := strings.ToLower(strings.TrimSpace(businessType))
	if key == "" {
		return defaultProfile
	}
	if p, ok := profiles[key]; ok {
		return p
	}
	for name, p := range profiles {
		if strings.Contains(key, name) || strings.Contains(name, key) {
			return p
		}
	}
	return defaultProfile
}

// systemPrompt renders the persona and behavior rules for a business type.
// Date context is appended per turn, not here, so the result is cacheable.
func systemPrompt(businessType string) string {
	p := LookupProfile(businessType)
	return fmt.Sprintf(`You are a %s for this business. Your tone is %s. You help customers book %s.

Rules:
- Always check availability with the check_availability tool before offering times.
- When the customer is unsure, use suggest_times to offer a few options.
- Only call confirm_booking after the customer has clearly agreed to a specific date and time.
- Dates are YYYY-MM-DD and times are 24-hour HH:mm when calling tools.
- Keep replies short, concrete, and in the customer's language.
- Never invent availability or booking confirmations; rely on tool results.`,
		p.Name, p.Tone, p.Services)
}

// dateContext grounds relative date words for the model: today, tomorrow,
// the day after, and the date of each of the next seven weekday names.
func dateContext(now time.Time) string {
	now = now.UTC()
	var b strings.Builder
	b.WriteString("Date context:\n")
	fmt.Fprintf(&b, "- Today is %s, %s.\n", now.Weekday(), now.Format("2006-01-02"))
	fmt.Fprintf(&b, "- Tomorrow is %s, %s.\n", now.AddDate(0, 0, 1).Weekday(), now.AddDate(0, 0, 1).Format("2006-01-02"))
	fmt.Fprintf(&b, "- The day after tomorrow is %s, %s.\n", now.AddDate(0, 0, 2).Weekday(), now.AddDate(0, 0, 2).Format("2006-01-02"))
	for i := 1; i <= 7; i++ {
		d := now.AddDate(0, 0, i)
		fmt.Fprintf(&b, "- Next %s is %s.\n", d.Weekday(), d.Format("2006-01-02"))
	}
	return b.String()
}
