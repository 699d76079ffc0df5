package leads

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"cardsite-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{"ID", "Name", "Email", "Phone", "Company", "Message", "Source", "Branch ID", "Created At"}

func exportRow(l models.Lead) []string {
	branch := ""
	if l.BranchID != nil {
		branch = strconv.FormatUint(uint64(*l.BranchID), 10)
	}
	return []string{
		strconv.FormatUint(uint64(l.ID), 10),
		l.Name, l.Email, l.Phone, l.Company, l.Message, l.Source,
		branch,
		l.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// GET /api/brands/:brandId/leads/export?format=csv|xlsx
func ExportHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := scopedQuery(c)
		if err != nil {
			return err
		}

		var list []models.Lead
		if err := q.Order("created_at ASC, id ASC").Find(&list).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not export leads")
		}

		stamp := time.Now().Format("20060102")
		switch c.Query("format", "csv") {
		case "csv":
			data, err := WriteCSV(list)
			if err != nil {
				return err
			}
			c.Attachment(fmt.Sprintf("leads-%s.csv", stamp))
			c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
			return c.Send(data)
		case "xlsx":
			data, err := WriteXLSX(list)
			if err != nil {
				return err
			}
			c.Attachment(fmt.Sprintf("leads-%s.xlsx", stamp))
			c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			return c.Send(data)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "format must be csv or xlsx")
		}
	}
}

func WriteCSV(list []models.Lead) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, l := range list {
		if err := w.Write(exportRow(l)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

const leadSheet = "Leads"

func WriteXLSX(list []models.Lead) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", leadSheet); err != nil {
		return nil, err
	}

	header := make([]any, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(leadSheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, l := range list {
		cells := exportRow(l)
		row := make([]any, len(cells))
		for j, v := range cells {
			row[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(leadSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
