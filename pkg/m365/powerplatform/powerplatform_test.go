package powerplatform

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentUsesName(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "/providers/Microsoft.BusinessAppPlatform/scopes/admin/environments/Default-1234",
		"name": "Default-1234",
		"location": "unitedstates",
		"properties": {"displayName": "Contoso (default)", "environmentSku": "Default", "isDefault": true}
	}`)

	env, err := Environment(raw)
	require.NoError(t, err)
	assert.Equal(t, "Default-1234", env.ID)
	assert.True(t, env.IsDefault)
	require.NotNil(t, env.Location)
	assert.Equal(t, "unitedstates", *env.Location)
}

func TestEnvironmentFallsBackToIDSegment(t *testing.T) {
	env, err := Environment(json.RawMessage(`{"id": "/environments/env-9"}`))
	require.NoError(t, err)
	assert.Equal(t, "env-9", env.ID)
	assert.Nil(t, env.DisplayName)

	_, err = Environment(json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestApp(t *testing.T) {
	raw := json.RawMessage(`{
		"name": "app-1",
		"properties": {
			"displayName": "Expenses",
			"appType": "ClassicCanvasApp",
			"owner": {"id": "u1", "displayName": "Ada", "email": "ada@contoso.com"},
			"createdTime": "2023-02-03T04:05:06.1234567Z",
			"lastModifiedTime": ""
		}
	}`)

	app, err := App("env-1", raw)
	require.NoError(t, err)
	assert.Equal(t, "app-1", app.ID)
	assert.Equal(t, "env-1", app.EnvironmentID)
	require.NotNil(t, app.OwnerEmail)
	assert.Equal(t, "ada@contoso.com", *app.OwnerEmail)
	require.NotNil(t, app.CreatedTime)
	assert.Equal(t, 2023, app.CreatedTime.Year())
	assert.Nil(t, app.LastModifiedTime)
}

func TestFlow(t *testing.T) {
	raw := json.RawMessage(`{
		"name": "flow-1",
		"properties": {
			"displayName": "Notify",
			"state": "Started",
			"creator": {"objectId": "u2"},
			"createdTime": "2024-01-01T00:00:00Z"
		}
	}`)

	flow, err := Flow("env-1", raw)
	require.NoError(t, err)
	assert.Equal(t, "flow-1", flow.ID)
	require.NotNil(t, flow.CreatorID)
	assert.Equal(t, "u2", *flow.CreatorID)
	require.NotNil(t, flow.CreatedTime)
	assert.True(t, flow.CreatedTime.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestEndpointURLs(t *testing.T) {
	e := DefaultEndpoints()
	assert.Contains(t, e.AppsURL("env-1"), "/environments/env-1/v2/apps")
	assert.Contains(t, e.FlowsURL("env-1"), "/environments/env-1/v2/flows")
}
