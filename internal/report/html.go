package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/godilite/support-metrics/internal/service"
)

const dateLayout = "2006-01-02"

const tableTemplate = `{{define "table"}}<table border="0" class="dataframe table table-striped">
  <thead>
    <tr style="text-align: right;">
{{- range .Columns}}
      <th>{{.}}</th>
{{- end}}
    </tr>
  </thead>
  <tbody>
{{- range .Rows}}
    <tr>
{{- range .}}
      <td>{{.}}</td>
{{- end}}
    </tr>
{{- end}}
  </tbody>
</table>{{end}}`

const emailTemplate = `<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; color: #333; line-height: 1.6; margin: 0; padding: 0; background-color: #f4f4f4; }
        .container { width: 80%; margin: auto; padding: 20px; background-color: #ffffff; border-radius: 10px; box-shadow: 0 4px 8px rgba(0, 0, 0, 0.1); }
        h1 { color: #0066cc; font-size: 28px; margin-bottom: 10px; }
        h2 { color: #333; font-size: 22px; border-bottom: 3px solid #0066cc; padding-bottom: 8px; margin-bottom: 20px; }
        p { font-size: 16px; color: #666; }
        .table { width: 100%; max-width: 100%; border-collapse: collapse; margin: 20px 0; background-color: #fff; border-radius: 8px; overflow: hidden; box-shadow: 0 2px 4px rgba(0, 0, 0, 0.1); table-layout: auto; word-wrap: break-word; }
        .table td, .table th { border: 1px solid #ddd; padding: 6px; text-align: left; font-size: 12px; }
        .table th { background-color: #0066cc; color: #fff; font-weight: bold; }
        .table tr:nth-child(even) { background-color: #f9f9f9; }
        .table tr:hover { background-color: #f1f1f1; }
        .footer { text-align: center; padding: 20px; font-size: 14px; color: #999; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Weekly Support Team Metrics</h1>
        <p>Dear Team,</p>
        <p>Here is a summary of the support team metrics for the week of {{.Start}} to {{.End}}. Please review the detailed breakdown below:</p>
        <h2>Metric By Assignee Group (Overall)</h2>
        {{template "table" .Tables.Teams}}
        <h2>Metrics By Ticket Assignee</h2>
        {{template "table" .Tables.Agents}}
        <div class="footer">
            <p>If you have any questions or need further details, feel free to reach out to us.</p>
            <p>Best regards,<br>Customer Support</p>
        </div>
    </div>
</body>
</html>
`

var (
	tableTmpl = template.Must(template.New("report").Parse(tableTemplate))
	emailTmpl = template.Must(template.Must(template.New("email").Parse(tableTemplate)).Parse(emailTemplate))
)

type emailData struct {
	Start  string
	End    string
	Tables Tables
}

// RenderTable renders t as a bare HTML table.
func RenderTable(t Table) (string, error) {
	var buf bytes.Buffer
	if err := tableTmpl.ExecuteTemplate(&buf, "table", t); err != nil {
		return "", fmt.Errorf("render table: %w", err)
	}
	return buf.String(), nil
}

// RenderEmail renders the weekly email body, team table first.
func RenderEmail(r service.Report) (string, error) {
	var buf bytes.Buffer
	data := emailData{
		Start:  r.WindowStart.Format(dateLayout),
		End:    r.WindowEnd.Format(dateLayout),
		Tables: BuildTables(r),
	}
	if err := emailTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

// Subject is the email subject for the window of r.
func Subject(r service.Report) string {
	return fmt.Sprintf("Support Team Metrics (%s - %s)", r.WindowStart.Format(dateLayout), r.WindowEnd.Format(dateLayout))
}

// windowDates is used for attachment names.
func windowDates(start, end time.Time) string {
	return start.Format(dateLayout) + "_" + end.Format(dateLayout)
}
