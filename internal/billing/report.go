package billing

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/odyssey-erp/servicechange/internal/records"
)

// Failure records a customer whose billing lines could not be regenerated.
type Failure struct {
	CustomerID int64
	Reason     string
}

var reportTemplate = template.Must(template.New("financial-items").Parse(`<h3>Report for effective date: {{.Date}}</h3>
{{- if .Reports}}
<p>The following customers have had their Financial Items updated:</p>
<table>
{{- range .Reports}}
<tr><td colspan="3"><b>{{.CustomerName}} (ID: {{.CustomerID}})</b></td></tr>
{{- range .Lines}}
<tr><td>{{.Name}}</td><td>Price: ${{.Price}}</td><td>Frequency: {{.Frequency}}</td></tr>
{{- end}}
<tr><td colspan="3"><br></td></tr>
{{- end}}
</table>
{{- else}}
<p>No update to financial items of any customer.</p>
{{- end}}
{{- if .Failures}}
<p>The following customers could not be updated:</p>
<ul>
{{- range .Failures}}
<li>Customer ID {{.CustomerID}}: {{.Reason}}</li>
{{- end}}
</ul>
{{- end}}
`))

// ReportSubject returns the email subject for a run effective on day.
func ReportSubject(day time.Time) string {
	return "[Financial Items Update][" + records.FormatDMY(day) + "]"
}

// RenderReport renders the consolidated change report.
func RenderReport(day time.Time, reports []Report, failures []Failure) (string, error) {
	var buf bytes.Buffer
	err := reportTemplate.Execute(&buf, struct {
		Date     string
		Reports  []Report
		Failures []Failure
	}{
		Date:     records.FormatDMY(day),
		Reports:  reports,
		Failures: failures,
	})
	if err != nil {
		return "", errors.Wrap(err, "render financial items report")
	}
	return buf.String(), nil
}

// PricingNotes prepends a dated summary of the report to the existing notes.
func PricingNotes(day time.Time, report Report, existing string) string {
	var b strings.Builder
	b.WriteString(records.FormatDMY(day))
	b.WriteString("\n")
	for _, line := range report.Lines {
		b.WriteString(" " + line.Name + " - @$" + line.Price + " - " + line.Frequency + "\n")
	}
	b.WriteString("\n")
	b.WriteString(existing)
	return b.String()
}
