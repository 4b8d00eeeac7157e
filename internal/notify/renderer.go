// Package notify renders notification messages and delivers them over the
// configured mail transport.
package notify

import (
	"fmt"
	"html/template"
	"strings"

	"tender-alerts/internal/models"
)

// RenderedMessage is one fully built notification body pair plus subject.
// The text body mirrors every fact present in the HTML body.
type RenderedMessage struct {
	Subject string
	HTML    string
	Text    string
}

// DigestSection groups a digest's tenders under the configuration that
// matched them.
type DigestSection struct {
	ConfigName string
	Tenders    []models.Tender
}

// Renderer builds subjects and HTML/text bodies for immediate and digest
// notifications. Deep links are built from the configured base URL.
type Renderer struct {
	baseURL string
}

func NewRenderer(baseURL string) *Renderer {
	return &Renderer{baseURL: strings.TrimRight(baseURL, "/")}
}

var htmlTemplates = template.Must(template.New("notify").Parse(`
{{define "tender"}}<div style="margin-bottom:16px;padding:12px;border:1px solid #ddd;border-radius:4px">
<h3 style="margin:0 0 8px"><a href="{{.URL}}">{{.Tender.Title}}</a></h3>
<p style="margin:0">Category: {{.Tender.Category}}</p>
<p style="margin:0">Organization: {{.Tender.OrganizationName}} ({{.Tender.OrganizationType}})</p>
<p style="margin:0">Location: {{.Location}}</p>
<p style="margin:0">Closing date: {{.Closing}}</p>
{{if .Value}}<p style="margin:0">Estimated value: {{.Value}}</p>{{end}}
</div>{{end}}

{{define "immediate"}}<html><body>
<h2>{{.Title}}</h2>
{{range .Tenders}}{{template "tender" .}}{{end}}
</body></html>{{end}}

{{define "digest"}}<html><body>
<h2>{{.Title}}</h2>
{{if .Sections}}{{range .Sections}}<h3>{{.Name}} ({{len .Tenders}})</h3>
{{range .Tenders}}{{template "tender" .}}{{end}}{{end}}
{{else}}<p>No new matches in this period.</p>{{end}}
</body></html>{{end}}
`))

type tenderView struct {
	Tender   *models.Tender
	URL      string
	Location string
	Closing  string
	Value    string
}

// RenderImmediate builds the message for freshly matched tenders of a single
// configuration. Callers only invoke it on an actual match; there is no
// empty-state rendering here.
func (r *Renderer) RenderImmediate(cfg *models.AlertConfig, tenders []models.Tender) (*RenderedMessage, error) {
	subject := fmt.Sprintf("%d new tender(s) matching \"%s\"", len(tenders), cfg.Name)
	title := fmt.Sprintf("New tenders matching \"%s\"", cfg.Name)

	views := r.tenderViews(tenders)

	var html strings.Builder
	err := htmlTemplates.ExecuteTemplate(&html, "immediate", struct {
		Title   string
		Tenders []tenderView
	}{title, views})
	if err != nil {
		return nil, fmt.Errorf("render immediate html: %w", err)
	}

	var text strings.Builder
	text.WriteString(title + "\n\n")
	for _, v := range views {
		writeTenderText(&text, &v)
	}

	return &RenderedMessage{
		Subject: subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

// RenderDigest builds the daily or weekly summary. Sections with no tenders
// are omitted; a digest with zero matches overall gets an explicit
// "no new matches" body.
func (r *Renderer) RenderDigest(frequency models.Frequency, sections []DigestSection) (*RenderedMessage, error) {
	label := "Daily"
	if frequency == models.FrequencyWeekly {
		label = "Weekly"
	}

	type sectionView struct {
		Name    string
		Tenders []tenderView
	}

	total := 0
	var views []sectionView
	for _, s := range sections {
		if len(s.Tenders) == 0 {
			continue
		}
		total += len(s.Tenders)
		views = append(views, sectionView{
			Name:    s.ConfigName,
			Tenders: r.tenderViews(s.Tenders),
		})
	}

	subject := fmt.Sprintf("%s tender digest: %d new match(es)", label, total)
	title := fmt.Sprintf("%s tender digest", label)

	var html strings.Builder
	err := htmlTemplates.ExecuteTemplate(&html, "digest", struct {
		Title    string
		Sections []sectionView
	}{title, views})
	if err != nil {
		return nil, fmt.Errorf("render digest html: %w", err)
	}

	var text strings.Builder
	text.WriteString(title + "\n\n")
	if total == 0 {
		text.WriteString("No new matches in this period.\n")
	}
	for _, s := range views {
		text.WriteString(fmt.Sprintf("== %s (%d) ==\n\n", s.Name, len(s.Tenders)))
		for _, v := range s.Tenders {
			writeTenderText(&text, &v)
		}
	}

	return &RenderedMessage{
		Subject: subject,
		HTML:    html.String(),
		Text:    text.String(),
	}, nil
}

func (r *Renderer) tenderViews(tenders []models.Tender) []tenderView {
	views := make([]tenderView, 0, len(tenders))
	for i := range tenders {
		t := &tenders[i]
		views = append(views, tenderView{
			Tender:   t,
			URL:      r.TenderURL(t.ID),
			Location: FormatLocation(t),
			Closing:  t.ClosingAt.Format("02 Jan 2006"),
			Value:    FormatValue(t),
		})
	}
	return views
}

// TenderURL is the deep link into the tender portal.
func (r *Renderer) TenderURL(tenderID string) string {
	return fmt.Sprintf("%s/tenders/%s", r.baseURL, tenderID)
}

func writeTenderText(sb *strings.Builder, v *tenderView) {
	sb.WriteString(v.Tender.Title + "\n")
	sb.WriteString(fmt.Sprintf("Category: %s\n", v.Tender.Category))
	sb.WriteString(fmt.Sprintf("Organization: %s (%s)\n", v.Tender.OrganizationName, v.Tender.OrganizationType))
	sb.WriteString(fmt.Sprintf("Location: %s\n", v.Location))
	sb.WriteString(fmt.Sprintf("Closing date: %s\n", v.Closing))
	if v.Value != "" {
		sb.WriteString(fmt.Sprintf("Estimated value: %s\n", v.Value))
	}
	sb.WriteString(fmt.Sprintf("Link: %s\n\n", v.URL))
}

func FormatLocation(t *models.Tender) string {
	parts := []string{t.Province, t.District}
	if t.City != nil && *t.City != "" {
		parts = append(parts, *t.City)
	}
	return strings.Join(parts, " / ")
}

func FormatValue(t *models.Tender) string {
	if t.EstimatedValue == nil {
		return ""
	}

	currency := ""
	if t.Currency != nil {
		currency = " " + *t.Currency
	}

	return fmt.Sprintf("%.2f%s", *t.EstimatedValue, currency)
}
