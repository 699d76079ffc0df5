package qrcode

import (
	"errors"
	"fmt"
	"strings"

	"cardsite-backend/internal/access"
	"cardsite-backend/internal/analytics"
	"cardsite-backend/internal/audit"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/metrics"
	"cardsite-backend/internal/models"
	"cardsite-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateQRRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	TargetURL  string `json:"target_url" validate:"required,url,max=1000"`
	BranchID   *uint  `json:"branch_id"`
	Foreground string `json:"foreground" validate:"omitempty,hexcolor"`
	Background string `json:"background" validate:"omitempty,hexcolor"`
}

type UpdateQRRequest struct {
	Name       *string `json:"name" validate:"omitempty,min=1,max=100"`
	TargetURL  *string `json:"target_url" validate:"omitempty,url,max=1000"`
	Foreground *string `json:"foreground" validate:"omitempty,hexcolor"`
	Background *string `json:"background" validate:"omitempty,hexcolor"`
	IsActive   *bool   `json:"is_active"`
}

type QRResponse struct {
	models.QRCode
	ScanURL string `json:"scan_url"`
}

func scanURL(baseURL string, id uint) string {
	return fmt.Sprintf("%s/q/%d", baseURL, id)
}

// POST /api/brands/:brandId/qrcodes
func CreateHandler(baseURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		brandID, err := c.ParamsInt("brandId")
		if err != nil || brandID <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid brand id")
		}

		var body CreateQRRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}
		if body.BranchID != nil {
			var n int64
			database.DB.Model(&models.Branch{}).Where("id = ? AND brand_id = ?", *body.BranchID, brandID).Count(&n)
			if n == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "Branch does not belong to this brand")
			}
		}

		res, err := access.ScopedResource(uint(brandID), body.BranchID)
		if err != nil {
			return err
		}
		id, err := access.Check(c, res)
		if err != nil {
			return err
		}

		code := models.QRCode{
			BrandID:    uint(brandID),
			BranchID:   body.BranchID,
			Name:       strings.TrimSpace(body.Name),
			TargetURL:  body.TargetURL,
			Foreground: orDefault(body.Foreground, "#000000"),
			Background: orDefault(body.Background, "#ffffff"),
			IsActive:   true,
		}
		if err := database.DB.Create(&code).Error; err != nil {
			return fmt.Errorf("create qr code: %w", err)
		}

		audit.Record(audit.LogOptions{
			BrandID:     &code.BrandID,
			UserID:      id.UserID,
			EntityType:  "qr_code",
			EntityID:    code.ID,
			Action:      models.AuditActionCreate,
			Description: "QR code created: " + code.Name,
			After:       code,
		})

		return c.Status(fiber.StatusCreated).JSON(QRResponse{QRCode: code, ScanURL: scanURL(baseURL, code.ID)})
	}
}

// GET /api/brands/:brandId/qrcodes
func ListHandler(baseURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		brandID, err := c.ParamsInt("brandId")
		if err != nil || brandID <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid brand id")
		}
		res, _, err := access.BrandResource(uint(brandID))
		if err != nil {
			return err
		}

		q := database.DB.Where("brand_id = ?", brandID).Order("created_at DESC")
		if _, err := access.Check(c, res); err != nil {
			id, idErr := access.FromCtx(c)
			if idErr != nil || id.Role != models.RoleBranchAdmin || len(id.BranchIDs) == 0 {
				return err
			}
			q = q.Where("branch_id IN ?", id.BranchIDs)
		}

		var codes []models.QRCode
		if err := q.Find(&codes).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not list QR codes")
		}

		out := make([]QRResponse, 0, len(codes))
		for _, qc := range codes {
			out = append(out, QRResponse{QRCode: qc, ScanURL: scanURL(baseURL, qc.ID)})
		}
		return c.JSON(out)
	}
}

// GET /api/qrcodes/:id
func GetHandler(baseURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		code, _, err := loadOwned(c)
		if err != nil {
			return err
		}
		return c.JSON(QRResponse{QRCode: *code, ScanURL: scanURL(baseURL, code.ID)})
	}
}

// PUT /api/qrcodes/:id
func UpdateHandler(baseURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		code, id, err := loadOwned(c)
		if err != nil {
			return err
		}

		var body UpdateQRRequest
		if err := validation.Parse(c, &body); err != nil {
			return err
		}

		before := *code
		if body.Name != nil {
			code.Name = strings.TrimSpace(*body.Name)
		}
		if body.TargetURL != nil {
			code.TargetURL = *body.TargetURL
		}
		if body.Foreground != nil {
			code.Foreground = *body.Foreground
		}
		if body.Background != nil {
			code.Background = *body.Background
		}
		if body.IsActive != nil {
			code.IsActive = *body.IsActive
		}

		if err := database.DB.Save(code).Error; err != nil {
			return fmt.Errorf("update qr code: %w", err)
		}

		audit.Record(audit.LogOptions{
			BrandID:     &code.BrandID,
			UserID:      id.UserID,
			EntityType:  "qr_code",
			EntityID:    code.ID,
			Action:      models.AuditActionUpdate,
			Description: "QR code updated: " + code.Name,
			Before:      before,
			After:       code,
		})

		return c.JSON(QRResponse{QRCode: *code, ScanURL: scanURL(baseURL, code.ID)})
	}
}

// DELETE /api/qrcodes/:id
func DeleteHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		code, id, err := loadOwned(c)
		if err != nil {
			return err
		}
		if err := database.DB.Delete(code).Error; err != nil {
			return fmt.Errorf("delete qr code: %w", err)
		}

		audit.Record(audit.LogOptions{
			BrandID:     &code.BrandID,
			UserID:      id.UserID,
			EntityType:  "qr_code",
			EntityID:    code.ID,
			Action:      models.AuditActionDelete,
			Description: "QR code deleted: " + code.Name,
			Before:      code,
		})
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/qrcodes/:id/download?format=png|svg|pdf&size=512
//
// The encoded content is the tracking URL, not the target, so scans are counted.
func DownloadHandler(baseURL string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		code, _, err := loadOwned(c)
		if err != nil {
			return err
		}

		style := Style{Foreground: code.Foreground, Background: code.Background, Size: c.QueryInt("size", defaultSize)}
		content := scanURL(baseURL, code.ID)
		filename := fmt.Sprintf("qr-%d", code.ID)

		var (
			data        []byte
			contentType string
		)
		switch format := strings.ToLower(c.Query("format", FormatPNG)); format {
		case FormatPNG:
			data, err = RenderPNG(content, style)
			contentType = "image/png"
		case FormatSVG:
			data, err = RenderSVG(content, style)
			contentType = "image/svg+xml"
		case FormatPDF:
			data, err = RenderPDF(content, code.Name, style)
			contentType = "application/pdf"
		default:
			return fiber.NewError(fiber.StatusBadRequest, "format must be png, svg or pdf")
		}
		if err != nil {
			return err
		}

		c.Attachment(filename + "." + strings.ToLower(c.Query("format", FormatPNG)))
		c.Set(fiber.HeaderContentType, contentType)
		return c.Send(data)
	}
}

// GET /q/:id counts the scan and redirects to the target.
// Unknown codes go to the site root; inactive codes are 410.
func ScanHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		qrID, err := c.ParamsInt("id")
		if err != nil || qrID <= 0 {
			metrics.Redirects.WithLabelValues("qr_code", "unknown").Inc()
			return c.Redirect("/", fiber.StatusFound)
		}

		var code models.QRCode
		if err := database.DB.First(&code, qrID).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			metrics.Redirects.WithLabelValues("qr_code", "unknown").Inc()
			return c.Redirect("/", fiber.StatusFound)
		}

		if !code.IsActive {
			metrics.Redirects.WithLabelValues("qr_code", "gone").Inc()
			return fiber.NewError(fiber.StatusGone, "This QR code is no longer active")
		}

		if err := database.DB.Model(&models.QRCode{}).Where("id = ?", code.ID).
			UpdateColumn("scan_count", gorm.Expr("scan_count + ?", 1)).Error; err != nil {
			return fmt.Errorf("count scan: %w", err)
		}

		analytics.RecordAsync(analytics.ForTarget(c, models.EventQRScan, code.BrandID, code.BranchID, code.ID))

		metrics.Redirects.WithLabelValues("qr_code", "redirected").Inc()
		return c.Redirect(code.TargetURL, fiber.StatusFound)
	}
}

func loadOwned(c *fiber.Ctx) (*models.QRCode, access.Identity, error) {
	qrID, err := c.ParamsInt("id")
	if err != nil || qrID <= 0 {
		return nil, access.Identity{}, fiber.NewError(fiber.StatusBadRequest, "Invalid QR code id")
	}

	var code models.QRCode
	if err := database.DB.First(&code, qrID).Error; err != nil {
		return nil, access.Identity{}, fiber.NewError(fiber.StatusNotFound, "QR code not found")
	}

	res, err := access.ScopedResource(code.BrandID, code.BranchID)
	if err != nil {
		return nil, access.Identity{}, err
	}
	id, err := access.Check(c, res)
	if err != nil {
		return nil, access.Identity{}, err
	}
	return &code, id, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
