package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-workers/internal/models"
)

func newRecipientStoreWithMock(t *testing.T) (*RecipientStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewRecipientStore(db), mock, func() { db.Close() }
}

// ==========================
// Snapshot Tests
// ==========================

func TestRecipientStore_Snapshot_InsertsRecipientsAndItems(t *testing.T) {
	store, mock, cleanup := newRecipientStoreWithMock(t)
	defer cleanup()

	now := time.Now()
	resolved := []models.ResolvedRecipient{
		{CustomerID: 100, Email: "a@example.com", FirstName: "Anna", City: "Athens"},
		{CustomerID: 101, Email: "b@example.com", FirstName: "Babis", City: "Patras"},
	}

	mock.ExpectBegin()
	for i, r := range resolved {
		mock.ExpectQuery(`INSERT INTO campaign_recipients`).
			WithArgs(int64(42), r.CustomerID, r.Email, r.FirstName, r.LastName,
				r.Company, r.City, r.Phone, now).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(200 + i)))
		mock.ExpectExec(`INSERT INTO job_items`).
			WithArgs(int64(10), int64(42), int64(200+i), now).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	err := store.Snapshot(context.Background(), 10, 42, resolved, now)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientStore_Snapshot_RollsBackOnError(t *testing.T) {
	store, mock, cleanup := newRecipientStoreWithMock(t)
	defer cleanup()

	now := time.Now()
	resolved := []models.ResolvedRecipient{{CustomerID: 100, Email: "a@example.com"}}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO campaign_recipients`).
		WillReturnError(fmt.Errorf("deadlock detected"))
	mock.ExpectRollback()

	err := store.Snapshot(context.Background(), 10, 42, resolved, now)

	assert.ErrorContains(t, err, "snapshot recipient 100")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Item Lifecycle Tests
// ==========================

func TestRecipientStore_CountItems(t *testing.T) {
	store, mock, cleanup := newRecipientStoreWithMock(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM job_items`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := store.CountItems(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestRecipientStore_PendingItems_JoinsSnapshot(t *testing.T) {
	store, mock, cleanup := newRecipientStoreWithMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{
		"id", "job_id", "campaign_id", "recipient_id",
		"customer_id", "email", "first_name", "last_name", "company", "city", "phone",
	}).AddRow(
		int64(1), int64(10), int64(42), int64(200),
		int64(100), "a@example.com", "Anna", "K", "Acme", "Athens", "",
	).AddRow(
		int64(2), int64(10), int64(42), int64(201),
		int64(101), "b@example.com", "", "", "", "", "",
	)

	mock.ExpectQuery(`FROM job_items ji`).
		WithArgs(int64(10), 50).
		WillReturnRows(rows)

	items, err := store.PendingItems(context.Background(), 10, 50)

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a@example.com", items[0].Email)
	assert.Equal(t, "Anna", items[0].FirstName)
	assert.Equal(t, int64(201), items[1].RecipientID)
}

func TestRecipientStore_MarkItemProcessing_ClaimedOnce(t *testing.T) {
	store, mock, cleanup := newRecipientStoreWithMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectExec(`UPDATE job_items SET status = 'processing'`).
		WithArgs(int64(1), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE job_items SET status = 'processing'`).
		WithArgs(int64(1), now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := store.MarkItemProcessing(context.Background(), 1, now)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Second attempt loses: the conditional update matches no pending row.
	claimed, err = store.MarkItemProcessing(context.Background(), 1, now)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestRecipientStore_MarkItemSent_UpdatesBothRows(t *testing.T) {
	store, mock, cleanup := newRecipientStoreWithMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE job_items SET status = 'sent'`).
		WithArgs(int64(1), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE campaign_recipients SET status = 'sent'`).
		WithArgs(int64(200), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.MarkItemSent(context.Background(), 1, 200, now)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientStore_MarkItemFailed_KeepsErrorMessage(t *testing.T) {
	store, mock, cleanup := newRecipientStoreWithMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE job_items SET status = 'failed'`).
		WithArgs(int64(1), "mailbox full", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE campaign_recipients SET status = 'failed'`).
		WithArgs(int64(200), "mailbox full").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.MarkItemFailed(context.Background(), 1, 200, "mailbox full", now)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipientStore_ResetStaleItems(t *testing.T) {
	store, mock, cleanup := newRecipientStoreWithMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectExec(`UPDATE job_items`).
		WithArgs(int64(10), now, now.Add(-2*time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.ResetStaleItems(context.Background(), 10, 2*time.Minute, now)

	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

// ==========================
// Outcomes Tests
// ==========================

func TestRecipientStore_Outcomes(t *testing.T) {
	store, mock, cleanup := newRecipientStoreWithMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("sent", 8).
		AddRow("failed", 2)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM job_items`).
		WithArgs(int64(10)).
		WillReturnRows(rows)

	counts, err := store.Outcomes(context.Background(), 10)

	require.NoError(t, err)
	assert.Equal(t, 8, counts.Sent)
	assert.Equal(t, 2, counts.Failed)
	assert.True(t, counts.Terminal())
	assert.Equal(t, 10, counts.Total())
}

func TestOutcomeCounts_Terminal(t *testing.T) {
	tests := []struct {
		name     string
		counts   OutcomeCounts
		terminal bool
	}{
		{name: "all sent", counts: OutcomeCounts{Sent: 5}, terminal: true},
		{name: "mixed terminal", counts: OutcomeCounts{Sent: 3, Failed: 2}, terminal: true},
		{name: "pending left", counts: OutcomeCounts{Sent: 3, Pending: 1}, terminal: false},
		{name: "processing left", counts: OutcomeCounts{Processing: 1}, terminal: false},
		{name: "empty", counts: OutcomeCounts{}, terminal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.counts.Terminal())
		})
	}
}
