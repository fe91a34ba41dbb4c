package kingo

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kingotools/capture/internal/capture"
)

// Form field names on the Kingo login page.
const (
	usernameField = "txt_dsdsdsdjkjkjc"
	passwordField = "txt_dsdfdfgfouyy"
	roleField     = "Sel_Type"
)

// SessionCookieName is the ASP.NET session cookie carried across the login
// exchange and every authenticated request after it.
const SessionCookieName = "ASP.NET_SessionId"

// loginSuccessMarker appears on the portal frame page after a successful
// credential submission.
const loginSuccessMarker = "欢迎您"

// LoginProcessor parses the login form and verification pages.
type LoginProcessor struct{}

// ParseForm extracts the hidden form fields from the login page. The page is
// considered ready only when the expected form markers are present.
func (LoginProcessor) ParseForm(text string) (map[string]string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil, false
	}

	fields := make(map[string]string)
	doc.Find("input[type=hidden]").Each(func(_ int, sel *goquery.Selection) {
		name, ok := sel.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := sel.Attr("value")
		fields[name] = value
	})

	_, hasViewState := fields["__VIEWSTATE"]
	hasUserInput := doc.Find("input[name=" + usernameField + "]").Length() > 0
	return fields, hasViewState && hasUserInput
}

// CredentialFields produces the credential form fields for submission.
func (LoginProcessor) CredentialFields(settings capture.Settings) map[string]string {
	return map[string]string{
		usernameField: settings.Username,
		passwordField: settings.Password,
		roleField:     settings.Role,
	}
}

// ParseResult reports whether the post-submit page carries the login success
// marker.
func (LoginProcessor) ParseResult(text string) bool {
	return strings.Contains(text, loginSuccessMarker)
}
