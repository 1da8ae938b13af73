package notify

import (
	"bytes"
	"context"
	"html/template"

	"github.com/sirupsen/logrus"
)

// Mail is one outgoing message to a single address.
type Mail struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
}

// Mailer hands a message to whatever actually delivers it. Delivery is
// fire-and-forget; callers log failures and move on.
type Mailer interface {
	Send(ctx context.Context, m Mail) error
}

// LogMailer writes mail to the log instead of sending it.
type LogMailer struct{ Log logrus.FieldLogger }

func (l LogMailer) Send(_ context.Context, m Mail) error {
	l.Log.WithFields(logrus.Fields{
		"to":      m.To,
		"subject": m.Subject,
	}).Info("mail")
	return nil
}

// AMQPMailer queues mail jobs on the broker for an external sender.
type AMQPMailer struct {
	Rabbit     *Rabbit
	RoutingKey string
	// From fills Mail.From when the message leaves it empty.
	From string
}

func (a AMQPMailer) Send(ctx context.Context, m Mail) error {
	rk := a.RoutingKey
	if rk == "" {
		rk = "mail.send"
	}
	if m.From == "" {
		m.From = a.From
	}
	return a.Rabbit.PublishJSON(ctx, rk, m)
}

// ===== Templates =====

var mailTemplates = template.Must(template.New("mail").Parse(`
{{define "layout"}}<html><body style="font-family:sans-serif">
<h3>{{.Subject}}</h3>
<p>{{.Message}}</p>
{{.Details}}
<p style="color:#888">Storeroom</p>
</body></html>{{end}}

{{define "release-item"}}<table>
<tr><td>Item</td><td>{{.Meta.ItemName}}</td></tr>
<tr><td>Quantity</td><td>{{.Meta.Quantity}} {{.Meta.Unit}}</td></tr>
<tr><td>Remaining</td><td>{{.Meta.Remaining}}</td></tr>
<tr><td>Recipient</td><td>{{.Meta.Recipient}}</td></tr>
{{if .Meta.Reason}}<tr><td>Reason</td><td>{{.Meta.Reason}}</td></tr>{{end}}
{{if .Meta.ExpectedReturnBy}}<tr><td>Expected return</td><td>{{.Meta.ExpectedReturnBy.Format "2006-01-02"}}</td></tr>{{end}}
<tr><td>Released by</td><td>{{.Meta.UserName}}</td></tr>
</table>{{end}}

{{define "return_confirmation"}}<table>
<tr><td>Item</td><td>{{.Meta.ItemName}}</td></tr>
<tr><td>Quantity</td><td>{{.Meta.Quantity}}</td></tr>
<tr><td>Condition</td><td>{{.Meta.Condition}}</td></tr>
<tr><td>Returned by</td><td>{{.Meta.ReturnedBy}}</td></tr>
<tr><td>Processed by</td><td>{{.Meta.ProcessedBy}}</td></tr>
</table>{{end}}

{{define "low_stock"}}<p>{{.Meta.ItemName}} ({{.Meta.Category}}): {{.Meta.Quantity}} {{.Meta.Unit}} left, threshold {{.Meta.Threshold}}.</p>{{end}}

{{define "return_overdue"}}<p>{{.Meta.Outstanding}} x {{.Meta.ItemName}} released to {{.Meta.Recipient}} was due back on {{.Meta.ExpectedReturnBy.Format "2006-01-02"}}.</p>{{end}}
`))

type mailView struct {
	Subject string
	Message string
	Meta    Meta
	Details template.HTML
}

// renderHTML wraps the event message in the layout plus the per-type details
// block, when one exists.
func renderHTML(subject, message string, meta Meta) (string, error) {
	view := mailView{Subject: subject, Message: message, Meta: meta}

	if meta != nil {
		if t := mailTemplates.Lookup(string(meta.Type())); t != nil {
			var details bytes.Buffer
			if err := t.Execute(&details, view); err != nil {
				return "", err
			}
			// output of html/template is already escaped
			view.Details = template.HTML(details.String())
		}
	}

	var out bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&out, "layout", view); err != nil {
		return "", err
	}
	return out.String(), nil
}
