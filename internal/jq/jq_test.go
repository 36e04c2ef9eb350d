package jq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
)

func TestApply(t *testing.T) {
	name := "Ada"
	users := []models.User{
		{ID: "u1", DisplayName: &name},
		{ID: "u2"},
	}

	testCases := []struct {
		name      string
		query     string
		expected  string
		expectErr bool
	}{
		{name: "field", query: ".[0].displayName", expected: "\"Ada\"\n"},
		{name: "stream", query: ".[].id", expected: "\"u1\"\n\"u2\"\n"},
		{name: "length", query: "length", expected: "2\n"},
		{name: "empty query", query: "", expectErr: true},
		{name: "syntax error", query: ".[", expectErr: true},
		{name: "runtime error", query: ".[0].id + 1", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Apply(users, tc.query)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, string(result))
		})
	}
}
