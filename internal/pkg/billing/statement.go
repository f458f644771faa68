package billing

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/kazka-books/kazka/internal/pkg/monobank"
	"github.com/kazka-books/kazka/internal/pkg/s3archive"
)

// Archiver stores exported reports.
type Archiver interface {
	Put(ctx context.Context, name, contentType string, body []byte) (*s3archive.UploadResult, error)
}

// StatementExport describes an uploaded statement.
type StatementExport struct {
	Location     string    `json:"location"`
	Transactions int       `json:"transactions"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
}

var statementHeader = []string{"id", "time", "description", "amount", "operation_amount", "currency", "commission", "balance", "invoice_id", "counterparty", "comment"}

// ExportStatement loads the statement for the range and uploads it as CSV.
func (s *Service) ExportStatement(ctx context.Context, from, to time.Time) (*StatementExport, error) {
	if s.archiver == nil {
		return nil, ErrArchiveDisabled
	}
	if to.IsZero() {
		to = s.now()
	}

	txs, err := s.Statement(ctx, from, to)
	if err != nil {
		return nil, err
	}
	body, err := EncodeStatementCSV(txs)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("statement_%s_%s.csv", from.UTC().Format("20060102T150405Z"), to.UTC().Format("20060102T150405Z"))
	res, err := s.archiver.Put(ctx, name, "text/csv", body)
	if err != nil {
		return nil, fmt.Errorf("archive statement: %w", err)
	}
	log.Infof("[Billing] statement with %d transactions exported to %s", len(txs), res.Location())
	return &StatementExport{
		Location:     res.Location(),
		Transactions: len(txs),
		From:         from,
		To:           to,
	}, nil
}

// EncodeStatementCSV renders statement transactions, one row each.
func EncodeStatementCSV(txs []monobank.Transaction) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(statementHeader); err != nil {
		return nil, err
	}
	for _, tx := range txs {
		row := []string{
			tx.ID,
			time.Unix(tx.Time, 0).UTC().Format(time.RFC3339),
			tx.Description,
			strconv.FormatInt(tx.Amount, 10),
			strconv.FormatInt(tx.OperationAmount, 10),
			monobank.CurrencyCode(tx.CurrencyCode),
			strconv.FormatInt(tx.CommissionRate, 10),
			strconv.FormatInt(tx.Balance, 10),
			tx.InvoiceID,
			tx.CounterName,
			tx.Comment,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
