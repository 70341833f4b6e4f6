package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clinio/clinio/internal/config"
	"github.com/clinio/clinio/internal/domain/billing"
	"github.com/clinio/clinio/internal/platform/auth"
	"github.com/clinio/clinio/internal/platform/telemetry"
)

func TestSchedulingSettingsFromConfig(t *testing.T) {
	cfg := &config.Config{
		ClinicTimezone:          "UTC",
		ClinicOpening:           "08:00",
		ClinicClosing:           "20:30",
		SlotIntervalMinutes:     30,
		RescheduleMinNoticeDays: 1,
	}

	s := schedulingSettings(cfg)

	if s.OpeningMinutes != 8*60 {
		t.Errorf("OpeningMinutes = %d, want %d", s.OpeningMinutes, 8*60)
	}
	if s.ClosingMinutes != 20*60+30 {
		t.Errorf("ClosingMinutes = %d, want %d", s.ClosingMinutes, 20*60+30)
	}
	if s.SlotInterval != 30*time.Minute {
		t.Errorf("SlotInterval = %v, want 30m", s.SlotInterval)
	}
	if s.MinNoticeDays != 1 {
		t.Errorf("MinNoticeDays = %d, want 1", s.MinNoticeDays)
	}
	if s.Location != time.UTC {
		t.Errorf("Location = %v, want UTC", s.Location)
	}
}

func TestSchedulingSettingsTimezone(t *testing.T) {
	if _, err := time.LoadLocation("Europe/Berlin"); err != nil {
		t.Skip("tzdata not available")
	}

	cfg := &config.Config{
		ClinicTimezone:      "Europe/Berlin",
		ClinicOpening:       "09:00",
		ClinicClosing:       "18:00",
		SlotIntervalMinutes: 30,
	}

	s := schedulingSettings(cfg)
	if got := s.Location.String(); got != "Europe/Berlin" {
		t.Errorf("Location = %q, want Europe/Berlin", got)
	}
}

func TestRevenueRatesFromConfig(t *testing.T) {
	cfg := &config.Config{
		PlatformFeeRate: 0.03,
		AdminShare:      0.40,
		TherapistShare:  0.40,
	}

	got := revenueRates(cfg)
	want := billing.Rates{Platform: 0.03, AdminShare: 0.40, TherapistShare: 0.40}
	if got != want {
		t.Errorf("rates = %+v, want %+v", got, want)
	}
}

func TestNewLoggerFormatFollowsEnv(t *testing.T) {
	var prod bytes.Buffer
	prodLogger := newLogger(&config.Config{Env: "production"}, &prod)
	prodLogger.Info().Msg("boot")
	var entry map[string]any
	if err := json.Unmarshal(prod.Bytes(), &entry); err != nil {
		t.Fatalf("production log line is not JSON: %v\n%s", err, prod.String())
	}
	if entry["message"] != "boot" {
		t.Errorf("message = %v, want boot", entry["message"])
	}

	var dev bytes.Buffer
	devLogger := newLogger(&config.Config{Env: "development"}, &dev)
	devLogger.Info().Msg("boot")
	if json.Valid(bytes.TrimSpace(dev.Bytes())) {
		t.Errorf("development log line should be console-formatted, got JSON: %s", dev.String())
	}
	if !strings.Contains(dev.String(), "boot") {
		t.Errorf("development log line missing message: %s", dev.String())
	}
}

func TestTokenCmdMintsVerifiableToken(t *testing.T) {
	cmd := tokenCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--subject", "svc-report", "--role", "therapist", "--secret", "sekrit", "--ttl", "1h"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("token command failed: %v", err)
	}

	raw := strings.TrimSpace(out.String())
	claims := &auth.Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte("sekrit"), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("minted token does not verify: %v", err)
	}
	if claims.Subject != "svc-report" {
		t.Errorf("subject = %q, want svc-report", claims.Subject)
	}
	if claims.Role != auth.RoleTherapist {
		t.Errorf("role = %q, want therapist", claims.Role)
	}
}

func TestTokenCmdValidation(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"missing subject", []string{"--role", "admin", "--secret", "x"}},
		{"unknown role", []string{"--subject", "a", "--role", "ceo", "--secret", "x"}},
		{"missing secret", []string{"--subject", "a", "--role", "admin"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("AUTH_TOKEN_SECRET", "")

			cmd := tokenCmd()
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			cmd.SetArgs(tc.args)

			if err := cmd.Execute(); err == nil {
				t.Fatalf("expected error for args %v", tc.args)
			}
		})
	}
}

func TestRefreshPoolGauges(t *testing.T) {
	metrics := telemetry.NewProvider(telemetry.Config{ServiceName: "test"})

	done := make(chan struct{})
	go func() {
		refreshPoolGauges(metrics, time.Millisecond, func() (int32, int32) { return 3, 2 })
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for metrics.GetGauge("db.pool.active_connections") != 3 || metrics.GetGauge("db.pool.idle_connections") != 2 {
		select {
		case <-deadline:
			t.Fatalf("gauges never updated: active=%d idle=%d",
				metrics.GetGauge("db.pool.active_connections"),
				metrics.GetGauge("db.pool.idle_connections"))
		case <-time.After(5 * time.Millisecond):
		}
	}

	_ = metrics.Shutdown(context.Background())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not stop after provider shutdown")
	}
}
