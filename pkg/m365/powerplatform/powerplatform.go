// Package powerplatform maps the Power Platform admin APIs (environments,
// Power Apps, Power Automate flows) onto inventory records.
package powerplatform

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
)

// Endpoints are the admin API URLs. Apps and Flows take the environment
// name through a single %s verb.
type Endpoints struct {
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	Environments string `mapstructure:"environments" yaml:"environments"`
	Apps         string `mapstructure:"apps" yaml:"apps"`
	Flows        string `mapstructure:"flows" yaml:"flows"`
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		BaseURL:      "https://api.bap.microsoft.com",
		Environments: "https://api.bap.microsoft.com/providers/Microsoft.BusinessAppPlatform/scopes/admin/environments?api-version=2020-10-01",
		Apps:         "https://api.powerapps.com/providers/Microsoft.PowerApps/scopes/admin/environments/%s/v2/apps?api-version=2016-11-01",
		Flows:        "https://api.flow.microsoft.com/providers/Microsoft.ProcessSimple/scopes/admin/environments/%s/v2/flows?api-version=2016-11-01",
	}
}

func (e Endpoints) AppsURL(environment string) string {
	return fmt.Sprintf(e.Apps, environment)
}

func (e Endpoints) FlowsURL(environment string) string {
	return fmt.Sprintf(e.Flows, environment)
}

type principal struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type rawEnvironment struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Location   string `json:"location"`
	Properties struct {
		DisplayName    string `json:"displayName"`
		EnvironmentSku string `json:"environmentSku"`
		IsDefault      bool   `json:"isDefault"`
	} `json:"properties"`
}

// Environment decodes one environment. The returned id is the environment
// name, which is what the apps and flows endpoints expect.
func Environment(raw json.RawMessage) (models.PowerPlatformEnvironment, error) {
	var env rawEnvironment
	if err := json.Unmarshal(raw, &env); err != nil {
		return models.PowerPlatformEnvironment{}, fmt.Errorf("failed to decode environment: %w", err)
	}
	id := env.Name
	if id == "" {
		id = lastSegment(env.ID)
	}
	if id == "" {
		return models.PowerPlatformEnvironment{}, fmt.Errorf("environment has no name")
	}
	return models.PowerPlatformEnvironment{
		ID:             id,
		DisplayName:    optional(env.Properties.DisplayName),
		Location:       optional(env.Location),
		EnvironmentSku: optional(env.Properties.EnvironmentSku),
		IsDefault:      env.Properties.IsDefault,
	}, nil
}

type rawApp struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Properties struct {
		DisplayName      string    `json:"displayName"`
		AppType          string    `json:"appType"`
		Owner            principal `json:"owner"`
		CreatedBy        principal `json:"createdBy"`
		CreatedTime      string    `json:"createdTime"`
		LastModifiedTime string    `json:"lastModifiedTime"`
	} `json:"properties"`
}

// App decodes one Power App belonging to environment.
func App(environment string, raw json.RawMessage) (models.PowerApp, error) {
	var app rawApp
	if err := json.Unmarshal(raw, &app); err != nil {
		return models.PowerApp{}, fmt.Errorf("failed to decode app: %w", err)
	}
	id := app.Name
	if id == "" {
		id = lastSegment(app.ID)
	}
	if id == "" {
		return models.PowerApp{}, fmt.Errorf("app has no name")
	}
	owner := app.Properties.Owner
	if owner.ID == "" && owner.DisplayName == "" {
		owner = app.Properties.CreatedBy
	}
	return models.PowerApp{
		ID:               id,
		EnvironmentID:    environment,
		DisplayName:      optional(app.Properties.DisplayName),
		AppType:          optional(app.Properties.AppType),
		OwnerName:        optional(owner.DisplayName),
		OwnerEmail:       optional(owner.Email),
		CreatedTime:      timestamp(app.Properties.CreatedTime),
		LastModifiedTime: timestamp(app.Properties.LastModifiedTime),
	}, nil
}

type flowCreator struct {
	ObjectID string `json:"objectId"`
	UserID   string `json:"userId"`
}

type rawFlow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Properties struct {
		DisplayName      string      `json:"displayName"`
		State            string      `json:"state"`
		Creator          flowCreator `json:"creator"`
		CreatedTime      string      `json:"createdTime"`
		LastModifiedTime string      `json:"lastModifiedTime"`
	} `json:"properties"`
}

// Flow decodes one cloud flow belonging to environment.
func Flow(environment string, raw json.RawMessage) (models.PowerAutomateFlow, error) {
	var flow rawFlow
	if err := json.Unmarshal(raw, &flow); err != nil {
		return models.PowerAutomateFlow{}, fmt.Errorf("failed to decode flow: %w", err)
	}
	id := flow.Name
	if id == "" {
		id = lastSegment(flow.ID)
	}
	if id == "" {
		return models.PowerAutomateFlow{}, fmt.Errorf("flow has no name")
	}
	creator := flow.Properties.Creator.ObjectID
	if creator == "" {
		creator = flow.Properties.Creator.UserID
	}
	return models.PowerAutomateFlow{
		ID:               id,
		EnvironmentID:    environment,
		DisplayName:      optional(flow.Properties.DisplayName),
		State:            optional(flow.Properties.State),
		CreatorID:        optional(creator),
		CreatedTime:      timestamp(flow.Properties.CreatedTime),
		LastModifiedTime: timestamp(flow.Properties.LastModifiedTime),
	}, nil
}

func lastSegment(id string) string {
	id = strings.TrimRight(id, "/")
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	ts = ts.UTC()
	return &ts
}
