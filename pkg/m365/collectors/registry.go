package collectors

import (
	"fmt"
	"log/slog"

	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
)

// Registry is the closed dispatch table from resource type to collector.
type Registry struct {
	collectors map[models.ResourceType]Collector
}

// NewRegistry registers one collector per known resource type.
func NewRegistry(deps Deps) *Registry {
	d := &deps
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	r := &Registry{collectors: map[models.ResourceType]Collector{}}
	r.Register(
		&UserCollector{base{d, models.ResourceUsers}},
		&GroupCollector{base{d, models.ResourceGroups}},
		&TeamCollector{base{d, models.ResourceTeams}},
		&SharePointCollector{base{d, models.ResourceSharePoint}},
		&OneDriveCollector{base{d, models.ResourceOneDrive}},
		&LicenseCollector{base{d, models.ResourceLicenses}},
		&DomainCollector{base{d, models.ResourceDomains}},
		&SharePointUsageCollector{base{d, models.ResourceSharePointUsage}},
		&MailboxCollector{base{d, models.ResourceExchangeMailboxes}},
		&PowerAppsCollector{base{d, models.ResourcePowerApps}},
		&PowerAutomateCollector{base{d, models.ResourcePowerAutomate}},
	)
	return r
}

// Register adds or replaces collectors by name.
func (r *Registry) Register(collectors ...Collector) {
	for _, c := range collectors {
		r.collectors[c.Name()] = c
	}
}

// Get returns the collector for rt or ErrUnsupportedType.
func (r *Registry) Get(rt models.ResourceType) (Collector, error) {
	c, ok := r.collectors[rt]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedType, rt)
	}
	return c, nil
}

// Types lists registered types in display order.
func (r *Registry) Types() []models.ResourceType {
	var out []models.ResourceType
	for _, rt := range models.AllResourceTypes() {
		if _, ok := r.collectors[rt]; ok {
			out = append(out, rt)
		}
	}
	return out
}
