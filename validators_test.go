package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "jane@example.com", NormalizeEmail("  Jane@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestValidateStringEquals(t *testing.T) {
	rule := ValidateStringEquals("secret")

	assert.NoError(t, rule("secret"))
	assert.Error(t, rule("other"))
	assert.Error(t, rule(42))
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		phone   string
		region  string
		want    string
		wantErr bool
	}{
		{"empty passthrough", "", "US", "", false},
		{"international prefix", "+44 7911 123456", "US", "+447911123456", false},
		{"regional uk", "07911 123456", "GB", "+447911123456", false},
		{"default region", "+447911123456", "", "+447911123456", false},
		{"garbage", "not a phone", "US", "", true},
		{"too short", "12", "US", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizePhone(tc.phone, tc.region)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDisposableEmailClassifier(t *testing.T) {
	classifier := NewDisposableEmailClassifier("Corp-Spam.example")

	tests := []struct {
		email string
		want  bool
	}{
		{"jane@mailinator.com", true},
		{"jane@MAILINATOR.com", true},
		{"jane@corp-spam.example", true},
		{"jane@example.com", false},
		{"no-at-sign", false},
		{"trailing@", false},
		{"", false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, classifier.IsDisposable(tc.email), tc.email)
	}
}
