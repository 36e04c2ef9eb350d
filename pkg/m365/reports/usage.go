package reports

import (
	"io"

	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
)

const (
	MailboxUsagePath = "/reports/getMailboxUsageDetail(period='D7')"
	SiteUsagePath    = "/reports/getSharePointSiteUsageDetail(period='D180')"
)

// ParseMailboxUsage maps the mailbox usage detail report. Rows are keyed by
// user principal name; rows without one are skipped.
func ParseMailboxUsage(r io.Reader) ([]models.ExchangeMailbox, error) {
	t, err := Parse(r)
	if err != nil {
		return nil, err
	}

	out := make([]models.ExchangeMailbox, 0, t.Len())
	for _, row := range t.Rows() {
		upn := row.Value("User Principal Name", "UserPrincipalName", "UPN")
		if upn == "" {
			continue
		}
		out = append(out, models.ExchangeMailbox{
			ID:                            upn,
			UserPrincipalName:             row.String("User Principal Name", "UserPrincipalName", "UPN"),
			DisplayName:                   row.String("Display Name"),
			IsDeleted:                     row.Bool("Is Deleted"),
			DeletedDate:                   row.Date("Deleted Date"),
			CreatedDate:                   row.Date("Created Date"),
			LastActivityDate:              row.Date("Last Activity Date"),
			ItemCount:                     row.Int64("Item Count"),
			StorageUsedBytes:              row.Int64("Storage Used (Byte)", "Storage Used (Bytes)", "Storage Used"),
			IssueWarningQuotaBytes:        row.Int64("Issue Warning Quota (Byte)", "Issue Warning Quota (Bytes)"),
			ProhibitSendQuotaBytes:        row.Int64("Prohibit Send Quota (Byte)", "Prohibit Send Quota (Bytes)"),
			ProhibitSendReceiveQuotaBytes: row.Int64("Prohibit Send/Receive Quota (Byte)", "Prohibit Send Receive Quota (Byte)", "Prohibit Send/Receive Quota (Bytes)"),
			DeletedItemCount:              row.Int64("Deleted Item Count"),
			DeletedItemSizeBytes:          row.Int64("Deleted Item Size (Byte)", "Deleted Item Size (Bytes)"),
			HasArchive:                    row.Bool("Has Archive"),
			RecipientType:                 row.String("Recipient Type"),
			ReportPeriod:                  row.String("Report Period"),
			ReportRefreshDate:             row.Date("Report Refresh Date"),
		})
	}
	return out, nil
}

// ParseSiteUsage maps the SharePoint site usage detail report. Rows are keyed
// by site id; rows without one are skipped.
func ParseSiteUsage(r io.Reader) ([]models.SharePointSiteUsage, error) {
	t, err := Parse(r)
	if err != nil {
		return nil, err
	}

	out := make([]models.SharePointSiteUsage, 0, t.Len())
	for _, row := range t.Rows() {
		id := row.Value("Site Id", "SiteId")
		if id == "" {
			continue
		}
		out = append(out, models.SharePointSiteUsage{
			ID:                    id,
			SiteID:                row.String("Site Id", "SiteId"),
			SiteURL:               row.String("Site URL", "Site Url"),
			SiteName:              row.String("Site Name"),
			OwnerDisplayName:      row.String("Owner Display Name"),
			OwnerPrincipalName:    row.String("Owner Principal Name"),
			IsDeleted:             row.Bool("Is Deleted"),
			LastActivityDate:      row.Date("Last Activity Date"),
			FileCount:             row.Int64("File Count"),
			ActiveFileCount:       row.Int64("Active File Count"),
			PageViewCount:         row.Int64("Page View Count"),
			VisitedPageCount:      row.Int64("Visited Page Count"),
			StorageUsedBytes:      row.Int64("Storage Used (Byte)", "Storage Used (Bytes)", "Storage Used"),
			StorageAllocatedBytes: row.Int64("Storage Allocated (Byte)", "Storage Allocated (Bytes)", "Storage Allocated"),
			RootWebTemplate:       row.String("Root Web Template"),
			ReportPeriod:          row.String("Report Period"),
			ReportRefreshDate:     row.Date("Report Refresh Date"),
		})
	}
	return out, nil
}
