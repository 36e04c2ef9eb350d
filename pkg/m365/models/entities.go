package models

import "time"

// User represents an Entra ID user
type User struct {
	ID                string  `gorm:"primaryKey;type:text" json:"id"`
	DisplayName       *string `json:"displayName"`
	UserPrincipalName *string `json:"userPrincipalName"`
	AccountEnabled    *bool   `json:"accountEnabled"`
	Department        *string `json:"department"`
	JobTitle          *string `json:"jobTitle"`
}

// M365Group represents a Unified (Microsoft 365) group that is not team-provisioned
type M365Group struct {
	ID           string  `gorm:"primaryKey;type:text" json:"id"`
	DisplayName  *string `json:"displayName"`
	Description  *string `json:"description"`
	MailNickname *string `json:"mailNickname"`
	Visibility   *string `json:"visibility"`
	MemberCount  int     `json:"memberCount"`
	OwnerCount   int     `json:"ownerCount"`
}

func (M365Group) TableName() string {
	return "m365_groups"
}

// SecurityGroup represents a security or distribution group
type SecurityGroup struct {
	ID                  string  `gorm:"primaryKey;type:text" json:"id"`
	DisplayName         *string `json:"displayName"`
	Description         *string `json:"description"`
	MailNickname        *string `json:"mailNickname"`
	MailEnabled         bool    `json:"mailEnabled"`
	SecurityEnabled     bool    `json:"securityEnabled"`
	IsDistributionGroup bool    `json:"isDistributionGroup"`
}

// Team represents a team-provisioned group
type Team struct {
	ID          string  `gorm:"primaryKey;type:text" json:"id"`
	DisplayName *string `json:"displayName"`
	Description *string `json:"description"`
	Visibility  *string `json:"visibility"`
	MemberCount int     `json:"memberCount"`
	OwnerCount  int     `json:"ownerCount"`
}

type MembershipRole string

const (
	RoleOwner  MembershipRole = "owner"
	RoleMember MembershipRole = "member"
)

// ParentType distinguishes the owner of a membership row.
type ParentType string

const (
	ParentM365Group ParentType = "m365group"
	ParentTeam      ParentType = "team"
)

// Membership links a group or team to a user. UserID always resolves to users.id.
type Membership struct {
	ParentType ParentType     `gorm:"primaryKey;type:text" json:"parentType"`
	ParentID   string         `gorm:"primaryKey;type:text" json:"parentId"`
	UserID     string         `gorm:"primaryKey;type:text;index" json:"userId"`
	Role       MembershipRole `gorm:"primaryKey;type:text" json:"role"`
}

// SharePointSite represents a site returned by the sites search
type SharePointSite struct {
	ID                string  `gorm:"primaryKey;type:text" json:"id"`
	Name              *string `json:"name"`
	URL               *string `json:"url"`
	StorageUsedBytes  *int64  `json:"storageUsedBytes"`
	StorageLimitBytes *int64  `json:"storageLimitBytes"`
	FilesCount        *int64  `json:"filesCount"`
	ExternalSharing   *string `json:"externalSharing"`
}

// OneDrive represents a user's personal drive
type OneDrive struct {
	ID        string  `gorm:"primaryKey;type:text" json:"id"`
	OwnerID   string  `gorm:"type:text;index" json:"ownerId"`
	OwnerName *string `json:"ownerName"`
	SiteName  *string `json:"siteName"`
	SiteURL   *string `json:"siteUrl"`
	SizeBytes *int64  `json:"sizeBytes"`
}

// License represents a subscribed SKU. AvailableSeats is nil whenever either
// input is unknown; OverAllocated marks a negative AvailableSeats.
type License struct {
	ID             string  `gorm:"primaryKey;type:text" json:"id"`
	SkuPartNumber  *string `json:"skuPartNumber"`
	DisplayName    *string `json:"displayName"`
	Status         *string `json:"status"`
	TotalSeats     *int64  `json:"totalSeats"`
	ConsumedSeats  *int64  `json:"consumedSeats"`
	AvailableSeats *int64  `json:"availableSeats"`
	OverAllocated  bool    `json:"overAllocated"`
	PrepaidUnits   *int64  `json:"prepaidUnits"`
	WarningUnits   *int64  `json:"warningUnits"`
	SuspendedUnits *int64  `json:"suspendedUnits"`
	LockedOutUnits *int64  `json:"lockedOutUnits"`
	AssignedUnits  *int64  `json:"assignedUnits"`
}

// Domain represents a tenant domain
type Domain struct {
	ID                 string  `gorm:"primaryKey;type:text" json:"id"`
	Status             string  `json:"status"`
	IsDefault          bool    `json:"isDefault"`
	AuthenticationType *string `json:"authenticationType"`
}

// ExchangeMailbox is one row of the mailbox usage detail report
type ExchangeMailbox struct {
	ID                            string     `gorm:"primaryKey;type:text" json:"id"`
	UserPrincipalName             *string    `json:"userPrincipalName"`
	DisplayName                   *string    `json:"displayName"`
	IsDeleted                     *bool      `json:"isDeleted"`
	DeletedDate                   *time.Time `json:"deletedDate"`
	CreatedDate                   *time.Time `json:"createdDate"`
	LastActivityDate              *time.Time `json:"lastActivityDate"`
	ItemCount                     *int64     `json:"itemCount"`
	StorageUsedBytes              *int64     `json:"storageUsedBytes"`
	IssueWarningQuotaBytes        *int64     `json:"issueWarningQuotaBytes"`
	ProhibitSendQuotaBytes        *int64     `json:"prohibitSendQuotaBytes"`
	ProhibitSendReceiveQuotaBytes *int64     `json:"prohibitSendReceiveQuotaBytes"`
	DeletedItemCount              *int64     `json:"deletedItemCount"`
	DeletedItemSizeBytes          *int64     `json:"deletedItemSizeBytes"`
	HasArchive                    *bool      `json:"hasArchive"`
	RecipientType                 *string    `json:"recipientType"`
	ReportPeriod                  *string    `json:"reportPeriod"`
	ReportRefreshDate             *time.Time `json:"reportRefreshDate"`
}

// SharePointSiteUsage is one row of the site usage detail report
type SharePointSiteUsage struct {
	ID                    string     `gorm:"primaryKey;type:text" json:"id"`
	SiteID                *string    `json:"siteId"`
	SiteURL               *string    `json:"siteUrl"`
	SiteName              *string    `json:"siteName"`
	OwnerDisplayName      *string    `json:"ownerDisplayName"`
	OwnerPrincipalName    *string    `json:"ownerPrincipalName"`
	IsDeleted             *bool      `json:"isDeleted"`
	LastActivityDate      *time.Time `json:"lastActivityDate"`
	FileCount             *int64     `json:"fileCount"`
	ActiveFileCount       *int64     `json:"activeFileCount"`
	PageViewCount         *int64     `json:"pageViewCount"`
	VisitedPageCount      *int64     `json:"visitedPageCount"`
	StorageUsedBytes      *int64     `json:"storageUsedBytes"`
	StorageAllocatedBytes *int64     `json:"storageAllocatedBytes"`
	RootWebTemplate       *string    `json:"rootWebTemplate"`
	ReportPeriod          *string    `json:"reportPeriod"`
	ReportRefreshDate     *time.Time `json:"reportRefreshDate"`
}

func (SharePointSiteUsage) TableName() string {
	return "sharepoint_site_usages"
}

// PowerPlatformEnvironment represents an admin-scoped environment
type PowerPlatformEnvironment struct {
	ID             string  `gorm:"primaryKey;type:text" json:"id"`
	DisplayName    *string `json:"displayName"`
	Location       *string `json:"location"`
	EnvironmentSku *string `json:"environmentSku"`
	IsDefault      bool    `json:"isDefault"`
}

// PowerApp represents a canvas or model-driven app
type PowerApp struct {
	ID               string     `gorm:"primaryKey;type:text" json:"id"`
	EnvironmentID    string     `gorm:"type:text;index" json:"environmentId"`
	DisplayName      *string    `json:"displayName"`
	AppType          *string    `json:"appType"`
	OwnerName        *string    `json:"ownerName"`
	OwnerEmail       *string    `json:"ownerEmail"`
	CreatedTime      *time.Time `json:"createdTime"`
	LastModifiedTime *time.Time `json:"lastModifiedTime"`
}

// PowerAutomateFlow represents a cloud flow
type PowerAutomateFlow struct {
	ID               string     `gorm:"primaryKey;type:text" json:"id"`
	EnvironmentID    string     `gorm:"type:text;index" json:"environmentId"`
	DisplayName      *string    `json:"displayName"`
	State            *string    `json:"state"`
	CreatorID        *string    `json:"creatorId"`
	CreatedTime      *time.Time `json:"createdTime"`
	LastModifiedTime *time.Time `json:"lastModifiedTime"`
}
