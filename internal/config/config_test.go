package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.LLMProvider != "bedrock" {
		t.Errorf("LLMProvider = %q, want bedrock", cfg.LLMProvider)
	}
	if cfg.BusinessOpen != "09:00" || cfg.BusinessClose != "18:00" {
		t.Errorf("business hours = %s-%s, want 09:00-18:00", cfg.BusinessOpen, cfg.BusinessClose)
	}
	if cfg.SlotDuration != time.Hour {
		t.Errorf("SlotDuration = %v, want 1h", cfg.SlotDuration)
	}
	if cfg.MaxToolRounds != 5 {
		t.Errorf("MaxToolRounds = %d, want 5", cfg.MaxToolRounds)
	}
	if cfg.ClarifyThreshold != 0.7 {
		t.Errorf("ClarifyThreshold = %v, want 0.7", cfg.ClarifyThreshold)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("SLOT_DURATION", "30m")
	t.Setenv("AVAILABILITY_NOISE", "true")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.IsDevelopment() {
		t.Error("IsDevelopment() = true for production env")
	}
	if cfg.LLMProvider != "gemini" {
		t.Errorf("LLMProvider = %q, want gemini (lowercased)", cfg.LLMProvider)
	}
	if cfg.SlotDuration != 30*time.Minute {
		t.Errorf("SlotDuration = %v, want 30m", cfg.SlotDuration)
	}
	if !cfg.AvailabilityNoise {
		t.Error("AvailabilityNoise = false, want true")
	}
}
