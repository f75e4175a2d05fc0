package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"gopkg.in/yaml.v3"

	"subtracker/internal/reminder"
)

//go:embed templates/*.yaml
var templatesFS embed.FS

// TemplateID identifies one reminder email.
type TemplateID string

const (
	TemplateReminder7Days TemplateID = "reminder_7_days"
	TemplateReminder5Days TemplateID = "reminder_5_days"
	TemplateReminder2Days TemplateID = "reminder_2_days"
	TemplateReminder1Day  TemplateID = "reminder_1_day"
)

var templateIDs = []TemplateID{
	TemplateReminder7Days,
	TemplateReminder5Days,
	TemplateReminder2Days,
	TemplateReminder1Day,
}

// TemplateFor maps a milestone to its email. Every milestone has exactly one
// template; an unknown milestone is a programming error.
func TemplateFor(m reminder.Milestone) (TemplateID, error) {
	switch m {
	case reminder.SevenDaysBefore:
		return TemplateReminder7Days, nil
	case reminder.FiveDaysBefore:
		return TemplateReminder5Days, nil
	case reminder.TwoDaysBefore:
		return TemplateReminder2Days, nil
	case reminder.OneDayBefore:
		return TemplateReminder1Day, nil
	default:
		return "", fmt.Errorf("no email template for milestone %d", int(m))
	}
}

type catalogueFile struct {
	Layout    string `yaml:"layout"`
	Templates map[TemplateID]struct {
		Subject string `yaml:"subject"`
		Lead    string `yaml:"lead"`
	} `yaml:"templates"`
}

type reminderTemplate struct {
	subject *texttemplate.Template
	lead    *htmltemplate.Template
}

// Catalogue holds the parsed reminder emails.
type Catalogue struct {
	layout    *htmltemplate.Template
	templates map[TemplateID]reminderTemplate
}

func LoadCatalogue() (*Catalogue, error) {
	data, err := templatesFS.ReadFile("templates/reminders.yaml")
	if err != nil {
		return nil, fmt.Errorf("read reminder templates: %w", err)
	}

	var file catalogueFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse reminder templates: %w", err)
	}

	layout, err := htmltemplate.New("layout").Option("missingkey=error").Parse(file.Layout)
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	c := &Catalogue{
		layout:    layout,
		templates: make(map[TemplateID]reminderTemplate, len(templateIDs)),
	}
	for _, id := range templateIDs {
		raw, ok := file.Templates[id]
		if !ok {
			return nil, fmt.Errorf("template %s is missing", id)
		}

		subject, err := texttemplate.New(string(id) + ".subject").Option("missingkey=error").Parse(raw.Subject)
		if err != nil {
			return nil, fmt.Errorf("parse %s subject: %w", id, err)
		}
		lead, err := htmltemplate.New(string(id) + ".lead").Option("missingkey=error").Parse(raw.Lead)
		if err != nil {
			return nil, fmt.Errorf("parse %s lead: %w", id, err)
		}
		c.templates[id] = reminderTemplate{subject: subject, lead: lead}
	}

	return c, nil
}

// Render returns the subject and HTML body of a reminder.
func (c *Catalogue) Render(id TemplateID, info MailInfo) (string, string, error) {
	tmpl, ok := c.templates[id]
	if !ok {
		return "", "", fmt.Errorf("unknown template %s", id)
	}

	var subject bytes.Buffer
	if err := tmpl.subject.Execute(&subject, info); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", id, err)
	}

	var lead bytes.Buffer
	if err := tmpl.lead.Execute(&lead, info); err != nil {
		return "", "", fmt.Errorf("render %s lead: %w", id, err)
	}

	var body bytes.Buffer
	err := c.layout.Execute(&body, struct {
		MailInfo
		Lead htmltemplate.HTML
	}{
		MailInfo: info,
		// lead is the output of an html/template, so its markup is already escaped.
		Lead: htmltemplate.HTML(lead.String()),
	})
	if err != nil {
		return "", "", fmt.Errorf("render %s body: %w", id, err)
	}

	return subject.String(), body.String(), nil
}
