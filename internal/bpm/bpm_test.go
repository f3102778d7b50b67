package bpm

import (
	"math"
	"testing"
)

func TestPlaybackRate(t *testing.T) {
	tests := []struct {
		name   string
		target float64
		native float64
		want   float64
	}{
		{"speed up", 128, 120, 128.0 / 120.0},
		{"slow down", 120, 128, 0.9375},
		{"same tempo", 124, 124, 1},
		{"native unset", 120, 0, 1},
		{"native negative", 120, -5, 1},
		{"target unset", 0, 120, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlaybackRate(tt.target, tt.native)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("PlaybackRate(%v, %v) = %v, want %v", tt.target, tt.native, got, tt.want)
			}
		})
	}
}

func TestPlaybackRate_Known(t *testing.T) {
	got := PlaybackRate(128, 120)
	if got < 1.0666 || got > 1.0667 {
		t.Errorf("PlaybackRate(128, 120) = %v, want ~1.0666", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  float64
		want float64
	}{
		{128, 128},
		{127.96, 128},
		{127.94, 127.9},
		{99.25, 99.3},
		{99.75, 99.8},
		{0.15, 0.1},
		{1.05, 1.1},
		{0, 0},
	}

	for _, tt := range tests {
		if got := Normalize(tt.raw); got != tt.want {
			t.Errorf("Normalize(%v) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{128, "128.0"},
		{121.449, "121.4"},
		{0.15, "0.1"},
		{120.25, "120.3"},
		{-1.25, "-1.3"},
	}

	for _, tt := range tests {
		if got := Format(tt.v); got != tt.want {
			t.Errorf("Format(%v) = %q, want %q", tt.v, got, tt.want)
		}
		// A persisted tempo must print the same as the raw value.
		if got := Format(Normalize(tt.v)); got != tt.want {
			t.Errorf("Format(Normalize(%v)) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestDiffers(t *testing.T) {
	tests := []struct {
		name     string
		adjusted float64
		native   float64
		want     bool
	}{
		{"identical", 120, 120, false},
		{"same after rounding", 120.04, 120.01, false},
		{"adjusted", 125, 120, true},
		{"one tenth apart", 120.1, 120, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Differs(tt.adjusted, tt.native); got != tt.want {
				t.Errorf("Differs(%v, %v) = %v, want %v", tt.adjusted, tt.native, got, tt.want)
			}
		})
	}
}
