package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Mailer sends templated HTML email. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

/* ============================ Dev console =============================== */

// ConsoleMailer logs outgoing mail instead of sending it. Used when no
// mail provider is configured (dev, tests).
type ConsoleMailer struct{}

func (ConsoleMailer) Send(_ context.Context, to, subject, _ string) error {
	slog.Info("dev mail (not sent)", "to", to, "subject", subject)
	return nil
}

/* ============================ HTTP provider ============================= */

// HTTPMailer posts messages to a Resend-style transactional email API:
// POST {baseURL}/emails with a JSON body and bearer auth.
type HTTPMailer struct {
	baseURL string
	apiKey  string
	from    string
	client  *http.Client
}

func NewHTTPMailer(baseURL, apiKey, from string) *HTTPMailer {
	return &HTTPMailer{
		baseURL: baseURL,
		apiKey:  apiKey,
		from:    from,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (m *HTTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	payload, _ := json.Marshal(map[string]any{
		"from":    m.from,
		"to":      []string{to},
		"subject": subject,
		"html":    htmlBody,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	res, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("mail api error: %s | %s", res.Status, string(b))
	}
	return nil
}

/* ============================= Templates ================================ */

var welcomeTmpl = template.Must(template.New("welcome").Parse(`
<h2>Welcome to LawConnect, {{.Name}}!</h2>
<p>Your account has been created. You can now sign in and
{{if .IsLawyer}}wait for our team to review your credentials{{else}}post your first consultation{{end}}.</p>
<p><a href="{{.FrontendURL}}">Open LawConnect</a></p>`))

var lawyerApprovedTmpl = template.Must(template.New("lawyer_approved").Parse(`
<h2>You're approved, {{.Name}}!</h2>
<p>Your lawyer account has been reviewed and approved. You can now browse
the marketplace and submit proposals.</p>
<p><a href="{{.FrontendURL}}/marketplace">Go to the marketplace</a></p>`))

var lawyerRejectedTmpl = template.Must(template.New("lawyer_rejected").Parse(`
<h2>Hello {{.Name}},</h2>
<p>Unfortunately we could not approve your lawyer account at this time.</p>
{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
<p>You may reply to this email with updated credentials.</p>`))

type templateData struct {
	Name        string
	IsLawyer    bool
	Reason      string
	FrontendURL string
}

// SendWelcome renders and sends the post-registration email. Callers treat
// a failure as non-fatal: registration has already committed.
func SendWelcome(ctx context.Context, m Mailer, frontendURL, to, name string, isLawyer bool) error {
	var buf bytes.Buffer
	if err := welcomeTmpl.Execute(&buf, templateData{Name: name, IsLawyer: isLawyer, FrontendURL: frontendURL}); err != nil {
		return err
	}
	return m.Send(ctx, to, "Welcome to LawConnect", buf.String())
}

// SendLawyerApproved notifies a lawyer that the admin approved them.
func SendLawyerApproved(ctx context.Context, m Mailer, frontendURL, to, name string) error {
	var buf bytes.Buffer
	if err := lawyerApprovedTmpl.Execute(&buf, templateData{Name: name, FrontendURL: frontendURL}); err != nil {
		return err
	}
	return m.Send(ctx, to, "Your lawyer account is approved", buf.String())
}

// SendLawyerRejected notifies a lawyer that the admin rejected them.
func SendLawyerRejected(ctx context.Context, m Mailer, to, name, reason string) error {
	var buf bytes.Buffer
	if err := lawyerRejectedTmpl.Execute(&buf, templateData{Name: name, Reason: reason}); err != nil {
		return err
	}
	return m.Send(ctx, to, "About your lawyer account", buf.String())
}
