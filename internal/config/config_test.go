package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.NotEmpty(t, cfg.Catalog.Profiles)
	assert.Equal(t, 72*time.Hour, cfg.Booking.OfferTTLDuration())
	assert.Equal(t, 5*time.Minute, cfg.Booking.SweepIntervalDuration())
	assert.Contains(t, cfg.RolePermissions("candidate"), "seat.accept")
	assert.Equal(t, []string{"*"}, cfg.RolePermissions("admin"))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown driver", "database: {driver: mysql}"},
		{"postgres without dsn", "database: {driver: postgres}"},
		{"empty catalog id", "catalog: {profiles: [{id: ''}]}"},
		{"duplicate catalog id", "catalog: {languages: [{id: fr}, {id: fr}]}"},
		{"bad ttl", "booking: {offer_ttl: soon}"},
		{"negative sweep", "booking: {sweep_interval: -1m}"},
		{"webhook without url", "notifications: {webhooks: [{events: [seat.offered]}]}"},
		{"telegram without chat", "notifications: {telegram: {token: abc}}"},
		{"roles without admin", "rbac: {roles: {client: {permissions: [seat.offer]}}}"},
		{"empty permission", "rbac: {roles: {admin: {permissions: ['']}}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSweepIntervalFallback(t *testing.T) {
	var b BookingConfig
	assert.Equal(t, time.Minute, b.SweepIntervalDuration())
	assert.Zero(t, b.OfferTTLDuration())
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Catalog.Seniorities)

	_, err = Load(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("booking: {offer_ttl: 1h}\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Booking.OfferTTLDuration())
	assert.Empty(t, cfg.Catalog.Profiles)
}
