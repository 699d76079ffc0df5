package brand

import (
	"fmt"

	"cardsite-backend/internal/analytics"
	"cardsite-backend/internal/config"
	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type PublicBrand struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	LogoURL string `json:"logo_url"`
}

type PublicMicrosite struct {
	Brand     PublicBrand            `json:"brand"`
	Branch    PublicBranch           `json:"branch"`
	Microsite models.MicrositeConfig `json:"microsite"`
	VCardURL  string                 `json:"vcard_url"`
}

type PublicBranch struct {
	Name    string                `json:"name"`
	Slug    string                `json:"slug"`
	Phone   string                `json:"phone"`
	Email   string                `json:"email"`
	Website string                `json:"website"`
	Address string                `json:"address"`
	City    string                `json:"city"`
	Country string                `json:"country"`
	Hours   []models.OpeningHours `json:"hours"`
}

// loadPublic resolves an active branch by slugs. Inactive and unknown
// branches are both 404.
func loadPublic(c *fiber.Ctx) (*models.Brand, *models.Branch, error) {
	var brand models.Brand
	if err := database.DB.Where("slug = ?", c.Params("brandSlug")).First(&brand).Error; err != nil {
		return nil, nil, fiber.NewError(fiber.StatusNotFound, "Microsite not found")
	}

	var branch models.Branch
	err := database.DB.
		Where("brand_id = ? AND slug = ? AND is_active = ?", brand.ID, c.Params("branchSlug"), true).
		First(&branch).Error
	if err != nil {
		return nil, nil, fiber.NewError(fiber.StatusNotFound, "Microsite not found")
	}
	return &brand, &branch, nil
}

// GET /api/public/microsites/:brandSlug/:branchSlug
func MicrositeHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		brand, branch, err := loadPublic(c)
		if err != nil {
			return err
		}

		return c.JSON(PublicMicrosite{
			Brand: PublicBrand{Name: brand.Name, Slug: brand.Slug, LogoURL: brand.LogoURL},
			Branch: PublicBranch{
				Name:    branch.Name,
				Slug:    branch.Slug,
				Phone:   branch.Phone,
				Email:   branch.Email,
				Website: branch.Website,
				Address: branch.Address,
				City:    branch.City,
				Country: branch.Country,
				Hours:   []models.OpeningHours(branch.Hours),
			},
			Microsite: branch.Microsite.Data(),
			VCardURL:  fmt.Sprintf("%s/api/public/microsites/%s/%s/vcard", cfg.PublicBaseURL, brand.Slug, branch.Slug),
		})
	}
}

// GET /api/public/microsites/:brandSlug/:branchSlug/vcard
func VCardHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		brand, branch, err := loadPublic(c)
		if err != nil {
			return err
		}

		page := fmt.Sprintf("%s/%s/%s", cfg.PublicBaseURL, brand.Slug, branch.Slug)

		analytics.RecordAsync(analytics.ForTarget(c, models.EventVCardDownload, brand.ID, &branch.ID, branch.ID))

		c.Attachment(branch.Slug + ".vcf")
		c.Set(fiber.HeaderContentType, "text/vcard; charset=utf-8")
		return c.SendString(BuildVCard(brand, branch, page))
	}
}

// GET /api/public/domains/:domain resolves a custom domain to its brand slug.
func DomainLookupHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var brand models.Brand
		if err := database.DB.Where("custom_domain = ?", c.Params("domain")).First(&brand).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Domain not found")
		}
		return c.JSON(PublicBrand{Name: brand.Name, Slug: brand.Slug, LogoURL: brand.LogoURL})
	}
}
