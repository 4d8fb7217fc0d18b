package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

var magicLinkTemplate = template.Must(template.New("magic_link").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Subject}}</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; margin: 0; padding: 0; background-color: #f5f5f5;">
<table role="presentation" style="width: 100%; border: 0; cellpadding: 0; cellspacing: 0;">
<tr><td style="padding: 40px 0; text-align: center;">
<table role="presentation" style="max-width: 480px; margin: 0 auto; background: #ffffff; border-radius: 8px; overflow: hidden; box-shadow: 0 1px 3px rgba(0,0,0,0.1);">
<tr><td style="padding: 32px 40px; text-align: center;">
<h1 style="margin: 0 0 16px; font-size: 24px; color: #1a1a1a;">{{.Heading}}</h1>
<p style="margin: 0 0 24px; color: #666; font-size: 15px; line-height: 1.5;">
{{.Lead}} This link expires in {{.ExpiryMinutes}} minutes and can only be used once.
</p>
<a href="{{.MagicLinkURL}}" style="display: inline-block; padding: 12px 32px; background: #2563eb; color: #ffffff; text-decoration: none; border-radius: 6px; font-size: 15px; font-weight: 500;">
{{.ButtonLabel}}
</a>
<p style="margin: 24px 0 0; color: #999; font-size: 13px; line-height: 1.5;">
If you didn't request this link, you can safely ignore this email.
</p>
</td></tr>
</table>
</td></tr>
</table>
</body>
</html>`))

// MagicLinkData holds template data for the magic link email.
type MagicLinkData struct {
	MagicLinkURL  string
	Intent        string
	ExpiryMinutes int
}

type magicLinkCopy struct {
	MagicLinkURL  string
	Subject       string
	Heading       string
	Lead          string
	ButtonLabel   string
	ExpiryMinutes int
}

// RenderMagicLinkEmail renders HTML and plain-text bodies for a magic link,
// with copy adjusted to the intent the link will execute.
func RenderMagicLinkEmail(data MagicLinkData) (subject, html, text string, err error) {
	c := magicLinkCopy{
		MagicLinkURL:  data.MagicLinkURL,
		ExpiryMinutes: data.ExpiryMinutes,
	}
	switch data.Intent {
	case "trial":
		c.Subject = "Start your trial"
		c.Heading = "Start your trial"
		c.Lead = "Click the button below to start your free trial."
		c.ButtonLabel = "Start Trial"
	case "subscribe":
		c.Subject = "Complete your subscription"
		c.Heading = "Complete your subscription"
		c.Lead = "Click the button below to continue to checkout."
		c.ButtonLabel = "Continue"
	default:
		c.Subject = "Sign in"
		c.Heading = "Sign in"
		c.Lead = "Click the button below to sign in."
		c.ButtonLabel = "Sign In"
	}

	var buf bytes.Buffer
	if err := magicLinkTemplate.Execute(&buf, c); err != nil {
		return "", "", "", fmt.Errorf("render magic link template: %w", err)
	}

	textBody := fmt.Sprintf("%s\n\nClick this link: %s\n\nThis link expires in %d minutes and can only be used once. If you didn't request this, ignore this email.",
		c.Heading, data.MagicLinkURL, data.ExpiryMinutes)

	return c.Subject, buf.String(), textBody, nil
}
