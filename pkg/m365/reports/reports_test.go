package reports_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/tenantscan/pkg/m365/reports"
)

const siteUsageCSV = "\ufeffReport Refresh Date,Site Id,Site URL,Owner Display Name,Is Deleted,Last Activity Date,File Count,Active File Count,Page View Count,Visited Page Count,Storage Used (Byte),Storage Allocated (Byte),Root Web Template,Owner Principal Name,Report Period\n" +
	"2024-05-01,site-1,https://contoso.sharepoint.com/sites/a,Ada,False,2024-04-30,12,3,40,7,9223372036854775000,27487790694400,Group,ada@contoso.com,180\n" +
	"2024-05-01,,https://contoso.sharepoint.com/sites/orphan,,False,,,,,,,,,,180\n" +
	"2024-05-01,site-2,,,True,not-a-date,,,,,,,,,180\n"

func TestParseSiteUsagePreservesLargeByteCounts(t *testing.T) {
	rows, err := reports.ParseSiteUsage(strings.NewReader(siteUsageCSV))
	require.NoError(t, err)
	require.Len(t, rows, 2, "rows without a site id are skipped")

	first := rows[0]
	assert.Equal(t, "site-1", first.ID)
	require.NotNil(t, first.StorageUsedBytes)
	assert.Equal(t, int64(9223372036854775000), *first.StorageUsedBytes)
	require.NotNil(t, first.StorageAllocatedBytes)
	assert.Equal(t, int64(27487790694400), *first.StorageAllocatedBytes)
	require.NotNil(t, first.FileCount)
	assert.Equal(t, int64(12), *first.FileCount)
	require.NotNil(t, first.IsDeleted)
	assert.False(t, *first.IsDeleted)
	require.NotNil(t, first.LastActivityDate)
	assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), *first.LastActivityDate)
	require.NotNil(t, first.ReportRefreshDate)

	second := rows[1]
	assert.Equal(t, "site-2", second.ID)
	assert.Nil(t, second.SiteURL)
	assert.Nil(t, second.LastActivityDate, "unparseable dates become null")
	assert.Nil(t, second.StorageUsedBytes)
	require.NotNil(t, second.IsDeleted)
	assert.True(t, *second.IsDeleted)
}

func TestParseMailboxUsageToleratesHeaderSpelling(t *testing.T) {
	csv := "report refresh date , USER PRINCIPAL NAME,Display Name,Is Deleted,Deleted Date,Created Date,Last Activity Date,Item Count,StorageUsed (Byte),Issue Warning Quota (Byte),Prohibit Send Quota (Byte),Prohibit Send/Receive Quota (Byte),Deleted Item Count,Deleted Item Size (Byte),Has Archive,Recipient Type,Report Period\n" +
		"2024-05-01,ada@contoso.com,Ada,False,,2020-01-15,2024-04-29,1500,5368709120,105226698752,106300440576,107374182400,12,2048,True,User,7\n" +
		"2024-05-01,,Nobody,False,,,,,,,,,,,,,7\n"

	rows, err := reports.ParseMailboxUsage(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	mb := rows[0]
	assert.Equal(t, "ada@contoso.com", mb.ID)
	require.NotNil(t, mb.UserPrincipalName)
	assert.Equal(t, "ada@contoso.com", *mb.UserPrincipalName)
	require.NotNil(t, mb.StorageUsedBytes)
	assert.Equal(t, int64(5368709120), *mb.StorageUsedBytes)
	require.NotNil(t, mb.ProhibitSendReceiveQuotaBytes)
	assert.Equal(t, int64(107374182400), *mb.ProhibitSendReceiveQuotaBytes)
	require.NotNil(t, mb.HasArchive)
	assert.True(t, *mb.HasArchive)
	assert.Nil(t, mb.DeletedDate)
	require.NotNil(t, mb.CreatedDate)
	assert.Equal(t, 2020, mb.CreatedDate.Year())
	require.NotNil(t, mb.ReportRefreshDate)
	require.NotNil(t, mb.ReportPeriod)
	assert.Equal(t, "7", *mb.ReportPeriod)
}

func TestParseEmptyReport(t *testing.T) {
	rows, err := reports.ParseMailboxUsage(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)

	table, err := reports.Parse(strings.NewReader("Site Id,Site URL\n\n"))
	require.NoError(t, err)
	assert.Zero(t, table.Len())
}

func TestRowLookupIsCaseAndSpaceInsensitive(t *testing.T) {
	table, err := reports.Parse(strings.NewReader("Storage Used (Byte)\n42\n"))
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	row := table.Rows()[0]
	assert.Equal(t, "42", row.Value("storageused(byte)"))
	assert.Equal(t, "42", row.Value("missing", "STORAGE USED (BYTE)"))
	assert.Nil(t, row.Int64("missing"))
}
