package content

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-workers/internal/models"
	"campaign-workers/internal/tracking"
)

func newTestPersonalizer() *Personalizer {
	return NewPersonalizer(tracking.NewSigner("test-secret", "https://track.example.com"))
}

func testVars() Variables {
	return Variables{
		FirstName: "Maria",
		LastName:  "Papadopoulou",
		Company:   "Acme Ltd",
		Email:     "maria@example.com",
		City:      "Athens",
		Phone:     "+30 210 1234567",
	}
}

// ==========================
// Render Tests
// ==========================

func TestRender_SubstitutesAllPlaceholders(t *testing.T) {
	tpl := `Hi {{firstName}} {{lastName}} from {{company}} in {{city}}, ` +
		`reach us at {{email}} or {{phone}}.`

	out := Render(tpl, testVars())

	assert.Equal(t,
		"Hi Maria Papadopoulou from Acme Ltd in Athens, "+
			"reach us at maria@example.com or +30 210 1234567.",
		out)
}

func TestRender_UnknownPlaceholderLeftVerbatim(t *testing.T) {
	out := Render("Hello {{firstName}}, your score is {{loyaltyPoints}}.", testVars())

	assert.Contains(t, out, "Hello Maria")
	assert.Contains(t, out, "{{loyaltyPoints}}")
}

func TestRender_MissingValueSubstitutesEmpty(t *testing.T) {
	out := Render("Hi {{firstName}} {{lastName}}!", Variables{FirstName: "Maria"})

	assert.Equal(t, "Hi Maria !", out)
}

func TestVariablesFor_CopiesSnapshotFields(t *testing.T) {
	r := models.ResolvedRecipient{
		CustomerID: 5,
		Email:      "nikos@example.com",
		FirstName:  "Nikos",
		City:       "Patras",
	}

	vars := VariablesFor(r)

	assert.Equal(t, "nikos@example.com", vars.Email)
	assert.Equal(t, "Nikos", vars.FirstName)
	assert.Equal(t, "Patras", vars.City)
	assert.Empty(t, vars.Company)
}

// ==========================
// Personalize Tests
// ==========================

func TestPersonalize_RewritesAbsoluteLinks(t *testing.T) {
	p := newTestPersonalizer()
	html := `<body><a href="https://example.com/promo">Deal</a>` +
		`<a href="http://example.org/more">More</a></body>`

	out := p.Personalize(html, 42, 7, testVars())

	assert.NotContains(t, out, `href="https://example.com/promo"`)
	assert.NotContains(t, out, `href="http://example.org/more"`)
	assert.Contains(t, out, "https://track.example.com/t/click/42/7?u=https%3A%2F%2Fexample.com%2Fpromo")
	assert.Contains(t, out, "u=http%3A%2F%2Fexample.org%2Fmore")
}

func TestPersonalize_LeavesRelativeAndMailtoLinks(t *testing.T) {
	p := newTestPersonalizer()
	html := `<body><a href="/local">local</a><a href="mailto:x@y.z">mail</a></body>`

	out := p.Personalize(html, 42, 7, testVars())

	assert.Contains(t, out, `href="/local"`)
	assert.Contains(t, out, `href="mailto:x@y.z"`)
}

func TestPersonalize_InjectsBeforeClosingBody(t *testing.T) {
	p := newTestPersonalizer()
	html := `<html><body><p>Hello {{firstName}}</p></body></html>`

	out := p.Personalize(html, 42, 7, testVars())

	bodyEnd := strings.Index(out, "</body>")
	require.Greater(t, bodyEnd, 0)

	pixelAt := strings.Index(out, "/t/open/42/7.png")
	unsubAt := strings.Index(out, "/t/unsub/42/7")
	require.Greater(t, pixelAt, 0)
	require.Greater(t, unsubAt, 0)
	assert.Less(t, pixelAt, bodyEnd)
	assert.Less(t, unsubAt, bodyEnd)
	assert.Contains(t, out, ">Unsubscribe</a>")
	assert.Contains(t, out, `width="1" height="1"`)
}

func TestPersonalize_AppendsWhenNoBodyTag(t *testing.T) {
	p := newTestPersonalizer()
	html := `<p>Hello {{firstName}}</p>`

	out := p.Personalize(html, 42, 7, testVars())

	assert.True(t, strings.HasPrefix(out, "<p>Hello Maria</p>"))
	assert.Contains(t, out, "/t/open/42/7.png")
	assert.Contains(t, out, "/t/unsub/42/7")
}

func TestPersonalize_UppercaseBodyTag(t *testing.T) {
	p := newTestPersonalizer()
	html := `<HTML><BODY><p>Hi</p></BODY></HTML>`

	out := p.Personalize(html, 42, 7, testVars())

	pixelAt := strings.Index(out, "/t/open/42/7.png")
	bodyEnd := strings.Index(out, "</BODY>")
	require.Greater(t, pixelAt, 0)
	require.Greater(t, bodyEnd, 0)
	assert.Less(t, pixelAt, bodyEnd)
}

func TestPersonalize_SignaturesDifferPerRecipient(t *testing.T) {
	p := newTestPersonalizer()
	html := `<body><a href="https://example.com">x</a></body>`

	a := p.Personalize(html, 42, 7, testVars())
	b := p.Personalize(html, 42, 8, testVars())

	assert.NotEqual(t, a, b)
}
