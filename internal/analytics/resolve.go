package analytics

import (
	"net/url"
	"strings"

	"cardsite-backend/internal/models"

	"gorm.io/gorm"
)

// ResolvePage maps "/<brand-slug>/<branch-slug>/..." to ids. Anything that
// does not resolve is left nil.
func ResolvePage(db *gorm.DB, pageURL string) (brandID, branchID *uint) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil
	}

	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) == 0 || segs[0] == "" {
		return nil, nil
	}

	var brand models.Brand
	if err := db.Select("id").Where("slug = ?", strings.ToLower(segs[0])).First(&brand).Error; err != nil {
		return nil, nil
	}
	brandID = &brand.ID

	if len(segs) < 2 || segs[1] == "" {
		return brandID, nil
	}

	var branch models.Branch
	if err := db.Select("id").Where("brand_id = ? AND slug = ?", brand.ID, strings.ToLower(segs[1])).First(&branch).Error; err != nil {
		return brandID, nil
	}
	return brandID, &branch.ID
}
