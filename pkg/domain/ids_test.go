package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "onboarding/pkg/domain-errors"
)

// TestParseIdentityID covers the trust-boundary parsing rules used by the
// recovery endpoints.
func TestParseIdentityID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty string", "", true},
		{"malformed", "not-a-uuid", true},
		{"nil UUID", uuid.Nil.String(), true},
		{"SQL injection attempt", "'; DROP TABLE identities;--", true},
		{"null byte", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"oversized", strings.Repeat("a", 1000), true},
		{"uppercase valid", "550E8400-E29B-41D4-A716-446655440000", false},
		{"lowercase valid", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIdentityID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestAllIDTypes_ConsistentParsing(t *testing.T) {
	valid := uuid.New().String()

	_, errIdentity := ParseIdentityID(valid)
	_, errProfile := ParseProfileID(valid)
	_, errMetadata := ParseMetadataID(valid)
	_, errOrg := ParseOrganizationID(valid)
	_, errMembership := ParseMembershipID(valid)
	require.NoError(t, errIdentity)
	require.NoError(t, errProfile)
	require.NoError(t, errMetadata)
	require.NoError(t, errOrg)
	require.NoError(t, errMembership)

	for _, input := range []string{"", "invalid", uuid.Nil.String()} {
		_, errIdentity := ParseIdentityID(input)
		_, errProfile := ParseProfileID(input)
		_, errMetadata := ParseMetadataID(input)
		_, errOrg := ParseOrganizationID(input)
		_, errMembership := ParseMembershipID(input)
		assert.Error(t, errIdentity, input)
		assert.Error(t, errProfile, input)
		assert.Error(t, errMetadata, input)
		assert.Error(t, errOrg, input)
		assert.Error(t, errMembership, input)
	}
}

func TestIDRoundTrip(t *testing.T) {
	id := NewIdentityID()
	parsed, err := ParseIdentityID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.False(t, parsed.IsNil())
	assert.True(t, IdentityID{}.IsNil())
}

func TestIDsMarshalAsStrings(t *testing.T) {
	id := NewOrganizationID()
	b, err := json.Marshal(struct {
		ID OrganizationID `json:"id"`
	}{id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+id.String()+`"}`, string(b))

	var decoded struct {
		ID OrganizationID `json:"id"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, id, decoded.ID)
}
