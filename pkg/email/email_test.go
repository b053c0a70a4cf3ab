package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValid(t *testing.T) {
	valid := []string{"jane@example.com", "j.doe+signup@mail.example.co.uk"}
	invalid := []string{"", "jane", "jane@", "@example.com", "jane@example", "Jane <jane@example.com>", "ja ne@example.com", "jane@example."}

	for _, addr := range valid {
		assert.True(t, IsValid(addr), addr)
	}
	for _, addr := range invalid {
		assert.False(t, IsValid(addr), addr)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "jane@example.com", Normalize("  Jane@Example.COM "))
}
