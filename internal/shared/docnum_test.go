package shared

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct{ seq int64 }

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.seq
	return nil
}

type fakeQuerier struct {
	prefix string
	period string
}

func (q *fakeQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	q.prefix = args[0].(string)
	q.period = args[1].(string)
	return fakeRow{seq: 7}
}

func TestNextDocNumberUsesDailyPeriod(t *testing.T) {
	q := &fakeQuerier{}
	date := time.Date(2025, 8, 29, 14, 30, 0, 0, time.UTC)

	number, err := NextDocNumber(context.Background(), q, DocPrefixInvoice, date)
	require.NoError(t, err)

	assert.Equal(t, DocPrefixInvoice, q.prefix)
	assert.Equal(t, "20250829", q.period, "sequence counter is keyed per day")
	assert.Equal(t, "INV-250829-0007", number)
}

func TestFormatDocNumberPadsSequence(t *testing.T) {
	date := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "QUO-250102-0001", FormatDocNumber(DocPrefixQuote, date, 1))
	assert.Equal(t, "PAY-250102-0042", FormatDocNumber(DocPrefixPayment, date, 42))
}
