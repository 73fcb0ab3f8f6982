// internal/content/personalizer.go
package content

import (
	"fmt"
	"regexp"
	"strings"

	"campaign-workers/internal/models"
	"campaign-workers/internal/tracking"
)

// Variables is the closed set of personalization keys. Placeholders outside
// this set are left verbatim so unrelated content never breaks a render.
type Variables struct {
	FirstName string
	LastName  string
	Company   string
	Email     string
	City      string
	Phone     string
}

// VariablesFor builds the substitution set from a snapshotted recipient.
func VariablesFor(r models.ResolvedRecipient) Variables {
	return Variables{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Company:   r.Company,
		Email:     r.Email,
		City:      r.City,
		Phone:     r.Phone,
	}
}

// Render substitutes {{key}} placeholders in the template.
func Render(templateHTML string, vars Variables) string {
	replacer := strings.NewReplacer(
		"{{firstName}}", vars.FirstName,
		"{{lastName}}", vars.LastName,
		"{{company}}", vars.Company,
		"{{email}}", vars.Email,
		"{{city}}", vars.City,
		"{{phone}}", vars.Phone,
	)
	return replacer.Replace(templateHTML)
}

// hrefPattern matches absolute http/https anchor targets in double quotes.
// Content injection is a best-effort textual transform, not DOM parsing;
// malformed HTML passes through with whatever the pattern catches.
var hrefPattern = regexp.MustCompile(`href="(https?://[^"]+)"`)

// Personalizer renders per-recipient content and injects tracking: click
// redirects on every absolute link, a 1x1 open pixel, and a signed
// unsubscribe footer.
type Personalizer struct {
	signer *tracking.Signer
}

func NewPersonalizer(signer *tracking.Signer) *Personalizer {
	return &Personalizer{signer: signer}
}

// Personalize produces the final HTML for one recipient.
func (p *Personalizer) Personalize(templateHTML string, campaignID, recipientID int64, vars Variables) string {
	html := Render(templateHTML, vars)
	html = p.rewriteLinks(html, campaignID, recipientID)
	html = p.injectFooterAndPixel(html, campaignID, recipientID)
	return html
}

// rewriteLinks replaces every absolute anchor target with the signed
// click-tracking redirect that embeds the original destination.
func (p *Personalizer) rewriteLinks(html string, campaignID, recipientID int64) string {
	return hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		target := hrefPattern.FindStringSubmatch(match)[1]
		return fmt.Sprintf(`href="%s"`, p.signer.ClickURL(campaignID, recipientID, target))
	})
}

// injectFooterAndPixel appends the unsubscribe footer and the open pixel
// immediately before the closing body tag, or at document end when the
// content has no body tag.
func (p *Personalizer) injectFooterAndPixel(html string, campaignID, recipientID int64) string {
	footer := fmt.Sprintf(
		`<p style="font-size:12px;color:#888;text-align:center;margin-top:24px;">`+
			`<a href="%s">Unsubscribe</a></p>`,
		p.signer.UnsubscribeURL(campaignID, recipientID),
	)
	pixel := fmt.Sprintf(
		`<img src="%s" width="1" height="1" alt="" style="display:none;" />`,
		p.signer.OpenPixelURL(campaignID, recipientID),
	)
	injected := footer + pixel

	idx := strings.LastIndex(strings.ToLower(html), "</body>")
	if idx < 0 {
		return html + injected
	}
	return html[:idx] + injected + html[idx:]
}
