package brand

import (
	"strings"

	"cardsite-backend/internal/models"
)

var vcardEscaper = strings.NewReplacer(`\`, `\\`, ",", `\,`, ";", `\;`, "\r\n", `\n`, "\n", `\n`)

// BuildVCard renders a vCard 3.0 contact for a branch of brand.
func BuildVCard(brand *models.Brand, branch *models.Branch, pageURL string) string {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteString("\r\n")
	}
	esc := vcardEscaper.Replace

	fullName := brand.Name
	if branch.Name != "" && !strings.EqualFold(branch.Name, brand.Name) {
		fullName = brand.Name + " - " + branch.Name
	}

	line("BEGIN:VCARD")
	line("VERSION:3.0")
	line("FN:" + esc(fullName))
	line("N:;" + esc(fullName) + ";;;")
	line("ORG:" + esc(brand.Name))
	if cfg := branch.Microsite.Data(); cfg.Headline != "" {
		line("TITLE:" + esc(cfg.Headline))
	}
	if branch.Phone != "" {
		line("TEL;TYPE=WORK,VOICE:" + esc(branch.Phone))
	}
	if branch.Email != "" {
		line("EMAIL;TYPE=INTERNET,WORK:" + esc(branch.Email))
	}
	if branch.Address != "" || branch.City != "" || branch.Country != "" {
		line("ADR;TYPE=WORK:;;" + esc(branch.Address) + ";" + esc(branch.City) + ";;;" + esc(branch.Country))
	}
	if branch.Website != "" {
		line("URL:" + esc(branch.Website))
	}
	if pageURL != "" {
		line("URL;TYPE=CARD:" + esc(pageURL))
	}
	if brand.LogoURL != "" {
		line("PHOTO;VALUE=URI:" + brand.LogoURL)
	}
	line("END:VCARD")
	return b.String()
}
