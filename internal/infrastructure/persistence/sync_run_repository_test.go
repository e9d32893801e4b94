package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/claimsync/internal/domain/returns"
)

func TestGormSyncRunRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormSyncRunRepository(setupReturnsTestDB(t))

	from := testNow.Add(-72 * time.Hour)
	run := returns.NewSyncRun("acc-1", returns.SyncModeBoth, returns.TriggerAPI, from, testNow, testNow)
	require.NoError(t, repo.Create(ctx, run))

	t.Run("running row is readable", func(t *testing.T) {
		got, err := repo.FindByID(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, returns.RunStatusRunning, got.Status)
		assert.Equal(t, returns.TriggerAPI, got.Trigger)
		assert.False(t, got.IsFinished())
	})

	t.Run("update closes the run", func(t *testing.T) {
		run.TotalProcessed = 10
		run.TotalCreated = 7
		run.TotalUpdated = 2
		run.TotalSkipped = 1
		run.Complete(testNow.Add(3 * time.Second))
		require.NoError(t, repo.Update(ctx, run))

		got, err := repo.FindByID(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, returns.RunStatusPartial, got.Status)
		assert.Equal(t, 10, got.TotalProcessed)
		assert.Equal(t, 1, got.TotalSkipped)
		assert.Equal(t, int64(3000), got.DurationMs)
		require.NotNil(t, got.FinishedAt)
		assert.True(t, from.Equal(got.DateFrom))
	})

	t.Run("failure details are kept", func(t *testing.T) {
		failed := returns.NewSyncRun("acc-1", returns.SyncModeClaims, returns.TriggerScheduler, from, testNow, testNow.Add(time.Minute))
		require.NoError(t, repo.Create(ctx, failed))
		failed.Fail(testNow.Add(2*time.Minute), returns.CodeReconnectRequired, errors.New("token revoked"))
		require.NoError(t, repo.Update(ctx, failed))

		got, err := repo.FindByID(ctx, failed.ID)
		require.NoError(t, err)
		assert.Equal(t, returns.RunStatusFailed, got.Status)
		require.NotNil(t, got.ErrorCode)
		assert.Equal(t, returns.CodeReconnectRequired, *got.ErrorCode)
		assert.Equal(t, "token revoked", *got.ErrorMessage)
	})

	t.Run("recent runs are newest first", func(t *testing.T) {
		other := returns.NewSyncRun("acc-2", returns.SyncModeReturns, returns.TriggerAPI, from, testNow, testNow.Add(time.Hour))
		require.NoError(t, repo.Create(ctx, other))

		runs, err := repo.FindRecent(ctx, "acc-1", 0)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, returns.SyncModeClaims, runs[0].Mode)

		all, err := repo.FindRecent(ctx, "", 1)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "acc-2", all[0].AccountID)
	})

	t.Run("missing run", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.True(t, returns.IsNotFound(err))

		ghost := returns.NewSyncRun("acc-1", returns.SyncModeBoth, returns.TriggerAPI, from, testNow, testNow)
		assert.True(t, returns.IsNotFound(repo.Update(ctx, ghost)))
	})
}

func TestGormShipmentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormShipmentRepository(setupReturnsTestDB(t))

	window := returns.TimeWindow{From: testNow.Add(-10 * 24 * time.Hour), To: testNow}
	shipments := []returns.Shipment{
		{ExternalID: "S-1", AccountID: "acc-1", OrderID: "O-1", Status: "delivered", DateCreated: testNow.Add(-48 * time.Hour), Detail: json.RawMessage(`{"id":1}`), LastSyncedAt: testNow},
		{ExternalID: "S-2", AccountID: "acc-1", OrderID: "O-2", Status: "shipped", DateCreated: testNow.Add(-24 * time.Hour), LastSyncedAt: testNow.Add(-time.Hour)},
		{ExternalID: "S-3", AccountID: "acc-2", OrderID: "O-3", Status: "delivered", DateCreated: testNow.Add(-12 * time.Hour), LastSyncedAt: testNow},
		{ExternalID: "S-4", AccountID: "acc-1", OrderID: "O-4", Status: "delivered", DateCreated: testNow.Add(-30 * 24 * time.Hour), LastSyncedAt: testNow},
	}
	require.NoError(t, repo.UpsertBatch(ctx, shipments))
	require.NoError(t, repo.UpsertBatch(ctx, nil))

	t.Run("window and account filter", func(t *testing.T) {
		got, err := repo.FindAll(ctx, returns.ShipmentFilter{AccountIDs: []string{"acc-1"}, Window: window})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "S-2", got[0].ExternalID)
		assert.Equal(t, "S-1", got[1].ExternalID)
		assert.JSONEq(t, `{"id":1}`, string(got[1].Detail))
		assert.Nil(t, got[0].Detail)
	})

	t.Run("status and freshness filter", func(t *testing.T) {
		fresh := testNow.Add(-30 * time.Minute)
		got, err := repo.FindAll(ctx, returns.ShipmentFilter{
			AccountIDs: []string{"acc-1", "acc-2"},
			Window:     window,
			Statuses:   []string{"delivered", "shipped"},
			FreshSince: &fresh,
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "S-3", got[0].ExternalID)
		assert.Equal(t, "S-1", got[1].ExternalID)
	})

	t.Run("upsert overwrites by external id and account", func(t *testing.T) {
		updated := shipments[1]
		updated.Status = "delivered"
		updated.LastSyncedAt = testNow
		require.NoError(t, repo.UpsertBatch(ctx, []returns.Shipment{updated}))

		got, err := repo.FindAll(ctx, returns.ShipmentFilter{AccountIDs: []string{"acc-1"}, Window: window, Statuses: []string{"shipped"}})
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = repo.FindAll(ctx, returns.ShipmentFilter{AccountIDs: []string{"acc-1"}, Window: window})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestGormCredentialRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGormCredentialRepository(setupReturnsTestDB(t))

	_, err := repo.FindByAccount(ctx, "acc-1")
	assert.True(t, returns.IsNotFound(err))
	assert.True(t, returns.IsNotFound(repo.UpdateStatus(ctx, "acc-1", returns.CredentialExpired)))

	require.NoError(t, repo.Save(ctx, &returns.Credential{AccountID: "acc-1", Bundle: []byte{1, 2, 3}, Status: returns.CredentialActive, UpdatedAt: testNow}))
	require.NoError(t, repo.Save(ctx, &returns.Credential{AccountID: "acc-1", Bundle: []byte{4, 5}, Status: returns.CredentialActive, UpdatedAt: testNow}))

	got, err := repo.FindByAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []byte{4, 5}, got.Bundle)

	require.NoError(t, repo.UpdateStatus(ctx, "acc-1", returns.CredentialReconnectRequired))
	got, err = repo.FindByAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, returns.CredentialReconnectRequired, got.Status)
	assert.Equal(t, []byte{4, 5}, got.Bundle)
}
