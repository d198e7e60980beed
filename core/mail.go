package core

import (
	"bytes"
	htmltmpl "html/template"
	"net/mail"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

var (
	templates = make(map[string]emailTemplate)
	tmplMu    sync.RWMutex

	ErrUnknownTemplate = errors.New("unknown email template")
)

type (
	emailTemplate struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Bcc     []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// RegisterEmailTemplate parses and stores the text and (optional) HTML bodies of template `name`.
func RegisterEmailTemplate(name, text, html string) error {
	var tmpl emailTemplate
	var err error
	if tmpl.text, err = texttmpl.New(name).Option("missingkey=error").Parse(text); err != nil {
		return errors.Wrapf(err, "parsing %s text template", name)
	}
	if html != "" {
		if tmpl.html, err = htmltmpl.New(name).Option("missingkey=error").Parse(html); err != nil {
			return errors.Wrapf(err, "parsing %s html template", name)
		}
	}

	tmplMu.Lock()
	templates[name] = tmpl
	tmplMu.Unlock()
	return nil
}

// Render fills TextContent and HTMLContent from BodyStr or the registered template.
func (m *EmailMessage) Render(frontendBaseURL string) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	if m.TemplateName == "" {
		return nil
	}

	tmplMu.RLock()
	tmpl, ok := templates[m.TemplateName]
	tmplMu.RUnlock()
	if !ok {
		return errors.Wrapf(ErrUnknownTemplate, "%q", m.TemplateName)
	}

	data := ContextData{FrontendBaseURL: frontendBaseURL, Data: m.TemplateData}
	var buff bytes.Buffer
	if err := tmpl.text.Execute(&buff, data); err != nil {
		return errors.Wrap(err, "rendering text content")
	}
	m.TextContent = buff.String()

	if tmpl.html != nil {
		buff.Reset()
		if err := tmpl.html.Execute(&buff, data); err != nil {
			return errors.Wrap(err, "rendering html content")
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }
