package models

import (
	"errors"
	"fmt"
	"strings"
)

// ResourceType names one inventoried category. It doubles as the ScanJob key
// and the checkpoint key.
type ResourceType string

const (
	ResourceUsers             ResourceType = "users"
	ResourceGroups            ResourceType = "groups"
	ResourceTeams             ResourceType = "teams"
	ResourceSharePoint        ResourceType = "sharepoint"
	ResourceOneDrive          ResourceType = "onedrive"
	ResourceLicenses          ResourceType = "licenses"
	ResourceDomains           ResourceType = "domains"
	ResourceSharePointUsage   ResourceType = "sharepointUsage"
	ResourceExchangeMailboxes ResourceType = "exchangeMailboxes"
	ResourcePowerApps         ResourceType = "powerapps"
	ResourcePowerAutomate     ResourceType = "powerautomate"
)

var ErrUnsupportedType = errors.New("unsupported resource type")

// AllResourceTypes lists every type in display order.
func AllResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceUsers,
		ResourceGroups,
		ResourceTeams,
		ResourceSharePoint,
		ResourceOneDrive,
		ResourceLicenses,
		ResourceDomains,
		ResourceSharePointUsage,
		ResourceExchangeMailboxes,
		ResourcePowerApps,
		ResourcePowerAutomate,
	}
}

// ParseResourceType matches s case-insensitively against the known types.
func ParseResourceType(s string) (ResourceType, error) {
	s = strings.TrimSpace(s)
	for _, rt := range AllResourceTypes() {
		if strings.EqualFold(string(rt), s) {
			return rt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, s)
}

func (r ResourceType) String() string {
	return string(r)
}
