package report

import (
	"bytes"
	"context"
	"fmt"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/db"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/logger"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Builder exports failed notifications to a spreadsheet for manual
// reconciliation. Rows carrying an invoice doc entry without a payment doc
// entry are the partial postings that need a follow-up payment in the ERP.
type Builder struct {
	repo db.Repository
	log  zerolog.Logger
}

func NewBuilder(repo db.Repository) *Builder {
	return &Builder{
		repo: repo,
		log:  logger.Get(),
	}
}

var headers = []string{
	"ID", "External Transaction ID", "Payer", "Currency", "Total",
	"Invoice DocEntry", "Invoice DocNum", "Partial Posting", "Error", "Created At",
}

func (b *Builder) FailedNotifications(ctx context.Context) (*bytes.Buffer, error) {
	notifications, err := b.repo.GetFailedNotifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load failed notifications: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return nil, err
		}
	}

	for i, n := range notifications {
		row := i + 2

		externalID := ""
		if n.ExternalTransactionID != nil {
			externalID = *n.ExternalTransactionID
		}
		errorMsg := ""
		if n.ErrorMessage != nil {
			errorMsg = *n.ErrorMessage
		}
		partial := n.InvoiceDocEntry != nil && n.PaymentDocEntry == nil

		values := []interface{}{
			n.ID, externalID, n.PayerCode, n.Currency, n.TotalAmount,
			cellValue(n.InvoiceDocEntry), cellValue(n.InvoiceDocNum),
			partial, errorMsg, n.CreatedAt.Format("2006-01-02 15:04:05"),
		}

		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	b.log.Info().Int("rows", len(notifications)).Msg("Built failed-notifications report")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report: %w", err)
	}

	return buf, nil
}

func cellValue(v *int64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
