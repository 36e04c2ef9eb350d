package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praetorian-inc/tenantscan/pkg/m365/models"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(storage.Config{
		Driver: storage.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "inventory.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestJobCreatedLazily(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job, err := s.Job(ctx, models.ResourceDomains)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStateIdle, job.State)
	assert.Nil(t, job.StartedAt)

	jobs, err := s.Jobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, len(models.AllResourceTypes()))
}

func TestTryStartRejectsRunningJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ok, err := s.TryStart(ctx, models.ResourceUsers, start)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryStart(ctx, models.ResourceUsers, start.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	job, err := s.Job(ctx, models.ResourceUsers)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStateRunning, job.State)
	require.NotNil(t, job.StartedAt)
	assert.True(t, job.StartedAt.Equal(start))

	require.NoError(t, s.Complete(ctx, models.ResourceUsers, start.Add(time.Hour)))
	ok, err = s.TryStart(ctx, models.ResourceUsers, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	job, err = s.Job(ctx, models.ResourceUsers)
	require.NoError(t, err)
	assert.Nil(t, job.CompletedAt)
	assert.Nil(t, job.Error)
}

func TestFailKeepsCheckpoint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	_, err := s.TryStart(ctx, models.ResourceDomains, now)
	require.NoError(t, err)
	require.NoError(t, s.SaveCheckpoint(ctx, models.ResourceDomains, strPtr("/domains?$skiptoken=p2")))
	require.NoError(t, s.Fail(ctx, models.ResourceDomains, now, "boom"))

	job, err := s.Job(ctx, models.ResourceDomains)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStateFailed, job.State)
	require.NotNil(t, job.Error)
	assert.Equal(t, "boom", *job.Error)

	cursor, err := s.LoadCheckpoint(ctx, models.ResourceDomains)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, "/domains?$skiptoken=p2", *cursor)
}

func TestCheckpointLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cursor, err := s.LoadCheckpoint(ctx, models.ResourceUsers)
	require.NoError(t, err)
	assert.Nil(t, cursor)

	require.NoError(t, s.SaveCheckpoint(ctx, models.ResourceUsers, strPtr("/users?$skiptoken=abc")))
	cursor, err = s.LoadCheckpoint(ctx, models.ResourceUsers)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, "/users?$skiptoken=abc", *cursor)

	require.NoError(t, s.SaveCheckpoint(ctx, models.ResourceUsers, nil))
	cursor, err = s.LoadCheckpoint(ctx, models.ResourceUsers)
	require.NoError(t, err)
	assert.Nil(t, cursor)

	require.NoError(t, s.SaveCheckpoint(ctx, models.ResourceUsers, strPtr("/users?$skiptoken=def")))
	require.NoError(t, s.ClearCheckpoint(ctx, models.ResourceUsers))
	cursor, err = s.LoadCheckpoint(ctx, models.ResourceUsers)
	require.NoError(t, err)
	assert.Nil(t, cursor)

	n, err := s.Count(ctx, &models.ScanJob{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "clearing must keep the job row")
}

func TestRecoverInterrupted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.TryStart(ctx, models.ResourceTeams, time.Now())
	require.NoError(t, err)
	_, err = s.Job(ctx, models.ResourceUsers)
	require.NoError(t, err)

	recovered, err := s.RecoverInterrupted(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []models.ResourceType{models.ResourceTeams}, recovered)

	job, err := s.Job(ctx, models.ResourceTeams)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStateFailed, job.State)
	require.NotNil(t, job.Error)
	assert.Equal(t, storage.InterruptedMessage, *job.Error)

	users, err := s.Job(ctx, models.ResourceUsers)
	require.NoError(t, err)
	assert.Equal(t, models.ScanStateIdle, users.State)
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	page := []models.Domain{
		{ID: "contoso.com", Status: "Verified", IsDefault: true},
		{ID: "contoso.onmicrosoft.com", Status: "Verified"},
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, s.WriteTx(ctx, func(tx *storage.Tx) error {
			return storage.Upsert(tx, page)
		}))
	}

	n, err := s.Count(ctx, &models.Domain{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	page[1].Status = "Unverified"
	require.NoError(t, s.WriteTx(ctx, func(tx *storage.Tx) error {
		return storage.Upsert(tx, page[1:])
	}))
	domains, err := storage.List[models.Domain](ctx, s)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "Unverified", domains[1].Status)
}

func TestEnsureUsersKeepsExistingRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteTx(ctx, func(tx *storage.Tx) error {
		return storage.Upsert(tx, []models.User{{ID: "u1", DisplayName: strPtr("Ada"), Department: strPtr("R&D")}})
	}))
	require.NoError(t, s.WriteTx(ctx, func(tx *storage.Tx) error {
		return tx.EnsureUsers([]models.User{
			{ID: "u1", DisplayName: strPtr("stub")},
			{ID: "u2", DisplayName: strPtr("Grace")},
		})
	}))

	users, err := storage.List[models.User](ctx, s)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Ada", *users[0].DisplayName)
	assert.Equal(t, "R&D", *users[0].Department)
	assert.Equal(t, "Grace", *users[1].DisplayName)
}

func TestReplaceMemberships(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	write := func(rows []models.Membership) {
		require.NoError(t, s.WriteTx(ctx, func(tx *storage.Tx) error {
			return tx.ReplaceMemberships(models.ParentTeam, "t1", rows)
		}))
	}
	write([]models.Membership{
		{ParentType: models.ParentTeam, ParentID: "t1", UserID: "u1", Role: models.RoleOwner},
		{ParentType: models.ParentTeam, ParentID: "t1", UserID: "u1", Role: models.RoleMember},
		{ParentType: models.ParentTeam, ParentID: "t1", UserID: "u2", Role: models.RoleMember},
	})
	write([]models.Membership{
		{ParentType: models.ParentTeam, ParentID: "t1", UserID: "u3", Role: models.RoleMember},
	})

	rows, err := s.MembershipsOf(ctx, models.ParentTeam)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "u3", rows[0].UserID)
}

func TestDeleteUnreferencedUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteTx(ctx, func(tx *storage.Tx) error {
		if err := storage.Upsert(tx, []models.User{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}}); err != nil {
			return err
		}
		return tx.ReplaceMemberships(models.ParentM365Group, "g1", []models.Membership{
			{ParentType: models.ParentM365Group, ParentID: "g1", UserID: "u2", Role: models.RoleMember},
		})
	}))
	require.NoError(t, s.WriteTx(ctx, func(tx *storage.Tx) error {
		return tx.DeleteUnreferencedUsers()
	}))

	users, err := storage.List[models.User](ctx, s)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u2", users[0].ID)
}

func TestTransactionRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.WriteTx(ctx, func(tx *storage.Tx) error {
		if err := storage.Upsert(tx, []models.Domain{{ID: "a.com", Status: "Verified"}}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	n, err := s.Count(ctx, &models.Domain{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInventoryShapes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	out, err := s.Inventory(ctx, models.ResourceGroups)
	require.NoError(t, err)
	groups, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, groups, "m365Groups")
	assert.Contains(t, groups, "securityGroups")

	_, err = s.Inventory(ctx, models.ResourceType("printers"))
	assert.ErrorIs(t, err, models.ErrUnsupportedType)
}
