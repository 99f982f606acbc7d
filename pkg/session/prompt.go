package session

import (
	"strings"
	"text/template"

	"github.com/txn2/mcp-commerce-router/pkg/profile"
)

// responseStyle is appended to every system prompt so backend agents stay
// terse regardless of the service template.
const responseStyle = `

RESPONSE STYLE:
- Be clear, concise, and direct
- Avoid unnecessary explanations or verbose descriptions
- Get straight to the point
- Only provide essential information needed for the user's request`

// profileTemplate renders the customer block injected into the prompt when
// a profile is available. Missing fields render as "Not provided" so the
// agent knows the data was looked up rather than omitted.
var profileTemplate = template.Must(template.New("profile").Parse(`

CUSTOMER PROFILE:
- User ID: {{.UserID}}
- Name: {{with .Profile.FullName}}{{.}}{{else}}Not provided{{end}}
- Phone: {{with .Profile.Phone}}{{.}}{{else}}Not provided{{end}}
- Email: {{with .Profile.Email}}{{.}}{{else}}Not provided{{end}}
- Address: {{with .Profile.PrimaryAddress}}{{.}}{{else}}Not provided{{end}}

Use this profile information to provide personalized service. The User ID
can be used to store or retrieve service-specific preferences if the
backend supports it. If the customer needs to place an order, you already
have their contact information and can use it to streamline the process.`))

type promptData struct {
	UserID  string
	Profile *profile.Profile
}

// RenderSystemPrompt produces the session's immutable system prompt from
// the service template, the user identity, and an optional profile. It is
// a pure function; rendering never touches storage.
func RenderSystemPrompt(svc Service, userID string, prof *profile.Profile) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(svc.SystemPrompt))
	b.WriteString(responseStyle)

	if prof != nil {
		// The template only reads exported fields and nil-safe methods,
		// so Execute cannot fail on this data.
		_ = profileTemplate.Execute(&b, promptData{UserID: userID, Profile: prof})
	}
	return b.String()
}
