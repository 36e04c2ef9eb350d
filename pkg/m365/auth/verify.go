package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
)

// TenantInfo is what a successful credential check reports.
type TenantInfo struct {
	TenantID      string `json:"tenantId"`
	DisplayName   string `json:"displayName"`
	DefaultDomain string `json:"defaultDomain,omitempty"`
}

// VerifyTenant authenticates with cred and reads the organization record.
func VerifyTenant(ctx context.Context, cred azcore.TokenCredential) (TenantInfo, error) {
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, []string{"https://graph.microsoft.com/.default"})
	if err != nil {
		return TenantInfo{}, fmt.Errorf("failed to create Graph client: %w", err)
	}

	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	org, err := client.Organization().Get(testCtx, nil)
	if err != nil {
		return TenantInfo{}, fmt.Errorf("failed to authenticate to Graph API: %w", err)
	}

	var info TenantInfo
	if org.GetValue() != nil && len(org.GetValue()) > 0 {
		o := org.GetValue()[0]
		if o.GetId() != nil {
			info.TenantID = *o.GetId()
		}
		if o.GetDisplayName() != nil {
			info.DisplayName = *o.GetDisplayName()
		}
		for _, d := range o.GetVerifiedDomains() {
			if d.GetIsDefault() != nil && *d.GetIsDefault() && d.GetName() != nil {
				info.DefaultDomain = *d.GetName()
			}
		}
	}
	return info, nil
}
