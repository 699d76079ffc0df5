package leads

import (
	"fmt"
	"io"
	"net/mail"
	"strings"

	"cardsite-backend/internal/access"
	"cardsite-backend/internal/audit"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

const maxImportRows = 5000

type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Problems []string `json:"problems"`
}

// POST /api/brands/:brandId/leads/import (multipart, field "file", .xlsx)
func ImportHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		brandID, err := c.ParamsInt("brandId")
		if err != nil || brandID <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid brand id")
		}
		res, _, err := access.BrandResource(uint(brandID))
		if err != nil {
			return err
		}
		id, err := access.CheckManage(c, res)
		if err != nil {
			return err
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "A file is required")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "Only .xlsx files can be imported")
		}
		file, err := fileHeader.Open()
		if err != nil {
			return fmt.Errorf("open upload: %w", err)
		}
		defer file.Close()

		leads, result, err := ParseXLSX(file, uint(brandID))
		if err != nil {
			return err
		}

		err = database.DB.Transaction(func(tx *gorm.DB) error {
			if len(leads) > 0 {
				if err := tx.CreateInBatches(&leads, 200).Error; err != nil {
					return fmt.Errorf("import leads: %w", err)
				}
			}
			return audit.WriteLogTx(tx, audit.LogOptions{
				BrandID:     &res.BrandID,
				UserID:      id.UserID,
				EntityType:  "lead_import",
				EntityID:    uint(brandID),
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("%d leads imported from %s", len(leads), fileHeader.Filename),
			})
		})
		if err != nil {
			return err
		}

		result.Imported = len(leads)
		return c.JSON(result)
	}
}

// ParseXLSX reads leads from the first sheet. A header row is detected by
// its column names; without one the order is name, email, phone, company, message.
func ParseXLSX(r io.Reader, brandID uint) ([]models.Lead, ImportResult, error) {
	result := ImportResult{Problems: []string{}}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, result, fiber.NewError(fiber.StatusBadRequest, "The file could not be read as a spreadsheet")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, result, fiber.NewError(fiber.StatusBadRequest, "The spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, result, fiber.NewError(fiber.StatusBadRequest, "The sheet could not be read")
	}
	if len(rows) == 0 {
		return nil, result, fiber.NewError(fiber.StatusBadRequest, "The spreadsheet is empty")
	}
	if len(rows) > maxImportRows+1 {
		return nil, result, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("At most %d rows can be imported at once", maxImportRows))
	}

	cols := map[string]int{"name": 0, "email": 1, "phone": 2, "company": 3, "message": 4}
	start := 0
	if hdr, ok := headerColumns(rows[0]); ok {
		cols = hdr
		start = 1
	}

	cell := func(row []string, key string) string {
		i, ok := cols[key]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var leads []models.Lead
	for i := start; i < len(rows); i++ {
		row := rows[i]
		name := cell(row, "name")
		if name == "" {
			if len(strings.Join(row, "")) > 0 {
				result.Skipped++
				result.Problems = append(result.Problems, fmt.Sprintf("row %d: name is empty", i+1))
			}
			continue
		}

		email := strings.ToLower(cell(row, "email"))
		if email != "" {
			if _, err := mail.ParseAddress(email); err != nil {
				result.Skipped++
				result.Problems = append(result.Problems, fmt.Sprintf("row %d: invalid email %q", i+1, email))
				continue
			}
		}

		leads = append(leads, models.Lead{
			BrandID: brandID,
			Name:    truncate(name, 100),
			Email:   email,
			Phone:   truncate(cell(row, "phone"), 50),
			Company: truncate(cell(row, "company"), 100),
			Message: truncate(cell(row, "message"), 2000),
			Source:  "import",
		})
	}

	return leads, result, nil
}

var headerAliases = map[string]string{
	"name": "name", "full name": "name", "ad soyad": "name", "isim": "name",
	"email": "email", "e-mail": "email", "e-posta": "email",
	"phone": "phone", "telephone": "phone", "mobile": "phone", "telefon": "phone",
	"company": "company", "firma": "company", "organisation": "company", "organization": "company",
	"message": "message", "note": "message", "notes": "message", "mesaj": "message",
}

func headerColumns(row []string) (map[string]int, bool) {
	cols := map[string]int{}
	for i, v := range row {
		if key, ok := headerAliases[strings.ToLower(strings.TrimSpace(v))]; ok {
			if _, seen := cols[key]; !seen {
				cols[key] = i
			}
		}
	}
	_, hasName := cols["name"]
	return cols, hasName
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
