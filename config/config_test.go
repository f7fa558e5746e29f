package config

import "testing"

func TestZeroConfigSanitizes(t *testing.T) {
	cfg := NewZeroConfig()
	if err := cfg.Sanitize(); err != nil {
		t.Fatalf("default config should sanitize cleanly: %v", err)
	}
}

func TestSanitizeRejectsTooManyChannels(t *testing.T) {
	cfg := NewZeroConfig()
	cfg.ChannelCount = 3
	if err := cfg.Sanitize(); err == nil {
		t.Fatal("expected error for channel count > 2")
	}
}

func TestSanitizeRejectsZeroAnalysisRate(t *testing.T) {
	cfg := NewZeroConfig()
	cfg.AnalysisHz = 0
	if err := cfg.Sanitize(); err == nil {
		t.Fatal("expected error for zero analysis rate")
	}
}
