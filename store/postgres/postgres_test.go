package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fee-ledger/ledger"
)

func TestClassifyWriteError(t *testing.T) {
	dup := classifyWriteError(&pq.Error{Code: codeUniqueViolation}, "transaction", "tx-1", "stu-1")
	assert.True(t, ledger.IsConflict(dup))

	orphan := classifyWriteError(&pq.Error{Code: codeForeignKeyViolation}, "invoice", "inv-1", "stu-9")
	var nf *ledger.NotFoundError
	require.ErrorAs(t, orphan, &nf)
	assert.Equal(t, ledger.SubjectID("stu-9"), nf.SubjectID)

	wrapped := fmt.Errorf("exec: %w", &pq.Error{Code: codeUniqueViolation})
	assert.True(t, ledger.IsConflict(classifyWriteError(wrapped, "snapshot", "2025-04-01", "stu-1")))

	boom := errors.New("connection reset")
	assert.ErrorIs(t, classifyWriteError(boom, "transaction", "tx-1", "stu-1"), boom)
}

// openTestStore connects to LEDGER_TEST_POSTGRES_DSN or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("LEDGER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LEDGER_TEST_POSTGRES_DSN not set")
	}
	store, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Integration(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Unique IDs so repeated runs against one database do not collide.
	student := ledger.SubjectID("stu-" + uuid.NewString())
	require.NoError(t, store.SaveStudent(ctx, ledger.Student{ID: student, Name: "Integration"}))

	day := func(m time.Month, d int) ledger.Date { return ledger.NewDate(2025, m, d) }
	tx := func(typ ledger.TransactionType, amount ledger.Money, date ledger.Date) ledger.Transaction {
		return ledger.Transaction{
			ID:        ledger.TransactionID(uuid.NewString()),
			SubjectID: student,
			Type:      typ,
			Amount:    amount,
			Date:      date,
			CreatedAt: date.Time().Add(9 * time.Hour),
		}
	}
	require.NoError(t, store.RecordTransactions(ctx, []ledger.Transaction{
		tx(ledger.TxCredit, 100000, day(time.January, 10)),
		tx(ledger.TxCredit, 50000, day(time.February, 1)),
		tx(ledger.TxDebit, 60000, day(time.February, 15)),
		tx(ledger.TxDebit, 50000, day(time.March, 1)),
	}))

	engine := ledger.NewEngine(store.Repositories(), ledger.Options{})

	opening, err := engine.CalculateOpeningBalance(ctx, student, day(time.April, 1))
	require.NoError(t, err)
	assert.Equal(t, ledger.Money(40000), opening)

	first, err := engine.VerifyOpeningBalance(ctx, student, day(time.April, 1))
	require.NoError(t, err)
	assert.True(t, first.Established)

	again, err := engine.VerifyOpeningBalance(ctx, student, day(time.April, 1))
	require.NoError(t, err)
	assert.False(t, again.Established)
	assert.Equal(t, ledger.StatusVerified, again.Status)
}

func TestStore_ImportCreatesStudentsAtomically(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	student := ledger.SubjectID("stu-" + uuid.NewString())
	fee := ledger.Transaction{
		ID:        ledger.TransactionID(uuid.NewString()),
		SubjectID: student,
		Type:      ledger.TxCredit,
		Amount:    1000,
		Date:      ledger.NewDate(2025, time.January, 10),
		CreatedAt: time.Now().UTC(),
	}

	// A repeated ID rolls back the student created for the batch.
	err := store.ImportTransactions(ctx, []ledger.Transaction{fee, fee})
	assert.True(t, ledger.IsConflict(err))
	ok, err := store.Exists(ctx, student)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.ImportTransactions(ctx, []ledger.Transaction{fee}))
	ok, err = store.Exists(ctx, student)
	require.NoError(t, err)
	assert.True(t, ok)
}
