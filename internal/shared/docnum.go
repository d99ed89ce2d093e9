package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Document number prefixes.
const (
	DocPrefixQuote   = "QUO"
	DocPrefixOrder   = "ORD"
	DocPrefixInvoice = "INV"
	DocPrefixPayment = "PAY"
)

// Querier is the minimal query surface needed to allocate sequence numbers;
// both *pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NextDocNumber allocates the next document number for a prefix within the
// day of date. Numbers are backed by a per-(prefix, day) monotonic counter
// in document_sequences, so they are unique without retry logic and the
// sequence part restarts at 1 each day.
func NextDocNumber(ctx context.Context, q Querier, prefix string, date time.Time) (string, error) {
	var seq int64
	period := date.Format("20060102")
	err := q.QueryRow(ctx, `
		INSERT INTO document_sequences (doc_type, period, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, prefix, period).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("allocate %s sequence: %w", prefix, err)
	}
	return FormatDocNumber(prefix, date, seq), nil
}

// FormatDocNumber renders a document number, e.g. INV-250829-0007.
func FormatDocNumber(prefix string, date time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, date.Format("060102"), seq)
}
