package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccessCodeConfig(t *testing.T) {
	tests := []struct {
		name     string
		cost     string
		wantCost int
		wantErr  bool
	}{
		{name: "default cost", cost: "", wantCost: 12},
		{name: "valid cost", cost: "10", wantCost: 10},
		{name: "cost too low", cost: "9", wantErr: true},
		{name: "cost too high", cost: "15", wantErr: true},
		{name: "not a number", cost: "twelve", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ACCESS_CODE_BCRYPT_COST", tt.cost)
			t.Setenv("ACCESS_CODE_PEPPER", "")

			cfg, err := NewAccessCodeConfig()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCost, cfg.BcryptCost)
		})
	}
}

func TestAccessCodeConfig_HashAndVerify(t *testing.T) {
	cfg := &AccessCodeConfig{BcryptCost: 10, Pepper: "pepper"}

	hash, err := cfg.HashAccessCode("K7QX2M9P")
	require.NoError(t, err)
	assert.NotEqual(t, "K7QX2M9P", hash)

	assert.True(t, cfg.VerifyAccessCode("K7QX2M9P", hash))
	assert.False(t, cfg.VerifyAccessCode("K7QX2M9Q", hash))
	assert.False(t, cfg.VerifyAccessCode("", hash))
	assert.False(t, cfg.VerifyAccessCode("K7QX2M9P", ""))

	other := &AccessCodeConfig{BcryptCost: 10}
	assert.False(t, other.VerifyAccessCode("K7QX2M9P", hash), "pepper is part of the hash")
}
