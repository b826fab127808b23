package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_Success(t *testing.T) {
	hash, err := HashPassword("Sup3rSecretPass")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "Sup3rSecretPass", hash)
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}

func TestComparePassword(t *testing.T) {
	hash, err := HashPassword("Sup3rSecretPass")
	require.NoError(t, err)

	assert.NoError(t, ComparePassword(hash, "Sup3rSecretPass"))
	assert.Error(t, ComparePassword(hash, "WrongPassword1"))
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Sup3rSecretPass", false},
		{"too short", "Ab1", true},
		{"no uppercase", "sup3rsecretpass", true},
		{"no lowercase", "SUP3RSECRETPASS", true},
		{"no digit", "SuperSecretPass", true},
		{"common password", "password123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
