package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"spendyze/internal/core"
)

var alertTemplate = template.Must(template.New("alert").Funcs(template.FuncMap{
	"inr": core.FormatINR,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; margin: 0; padding: 0; background-color: #f8fafc; }
.container { max-width: 600px; margin: 40px auto; background-color: #ffffff; border: 1px solid #e2e8f0; border-radius: 8px; overflow: hidden; }
.header { background-color: #10b981; color: #ffffff; padding: 24px; text-align: center; }
.content { padding: 32px; color: #334155; line-height: 1.6; }
.summary-box { background-color: #f1f5f9; border-left: 4px solid #10b981; padding: 16px; margin: 24px 0; border-radius: 4px; }
.footer { text-align: center; padding: 24px; font-size: 12px; color: #64748b; }
.button { display: inline-block; background-color: #10b981; color: #ffffff; padding: 12px 24px; text-decoration: none; border-radius: 6px; font-weight: bold; }
</style>
</head>
<body>
<div class="container">
  <div class="header"><h1>Budget Alert</h1></div>
  <div class="content">
    <h2>Hi {{.Name}},</h2>
    <p>This is a friendly alert about your monthly budget. You've reached the <strong>{{.Threshold}}%</strong> spending threshold.</p>
    <p>You have spent <strong>{{inr .Expenses}}</strong> of your <strong>{{inr .Income}}</strong> income, which is <strong>{{.Usage}}%</strong> of your budget.</p>
    {{- if .Insight}}
    <div class="summary-box">
      <strong>AI Financial Insight:</strong>
      <p style="margin-top: 8px; font-style: italic;">"{{.Insight}}"</p>
    </div>
    {{- end}}
    <p>Log in to Spendyze to see a full breakdown of your transactions and stay on top of your finances.</p>
    {{- if .DashboardURL}}
    <p style="text-align: center; margin-top: 32px;"><a href="{{.DashboardURL}}" class="button">View Your Dashboard</a></p>
    {{- end}}
  </div>
  <div class="footer"><p>&copy; {{.Year}} Spendyze. All rights reserved.</p></div>
</div>
</body>
</html>
`))

type alertView struct {
	Name         string
	Threshold    int
	Income       core.Money
	Expenses     core.Money
	Usage        int64
	Insight      string
	DashboardURL string
	Year         int
}

// Subject returns the alert subject line.
func Subject(n Notification) string {
	return fmt.Sprintf("Spendyze Budget Alert: You've used %d%% of your income", n.UsagePercent())
}

// RenderHTML renders the alert body.
func RenderHTML(n Notification, dashboardURL string, now time.Time) (string, error) {
	v := alertView{
		Name:         n.User.Name,
		Threshold:    n.Threshold,
		Income:       n.Income,
		Expenses:     n.Expenses,
		Usage:        n.UsagePercent(),
		DashboardURL: dashboardURL,
		Year:         now.Year(),
	}
	if v.Name == "" {
		v.Name = "there"
	}
	if n.Summary != nil {
		v.Insight = n.Summary.Text()
	}
	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render alert email: %w", err)
	}
	return buf.String(), nil
}
