package content

import (
	"html"
	"strings"
)

// Personalize fills {{name}} and {{email}} placeholders in HTML, escaping the
// values. An empty name falls back to the email address.
func Personalize(src, name, email string) string {
	if !strings.Contains(src, "{{") {
		return src
	}
	if name == "" {
		name = email
	}
	return strings.NewReplacer(
		"{{name}}", html.EscapeString(name),
		"{{email}}", html.EscapeString(email),
	).Replace(src)
}

// PersonalizeText is Personalize for plain text such as subjects.
func PersonalizeText(src, name, email string) string {
	if name == "" {
		name = email
	}
	return strings.NewReplacer("{{name}}", name, "{{email}}", email).Replace(src)
}
