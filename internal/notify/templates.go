package notify

import (
	"fmt"
	"html/template"
	"strings"
)

type mailTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[Outcome]mailTemplate{
	OutcomePending: {
		subject: "Invoice {{number}} needs review",
		body: mustTemplate("pending", `<p>Hello,</p>
<p>Invoice <strong>{{.Number}}</strong> was extracted with low confidence and is waiting for manual review.</p>
<p>Customer: {{.CustomerName}}<br>Total: {{.Total}}</p>
<p>Please review it in the dashboard.</p>`),
	},
	OutcomeApproved: {
		subject: "Order confirmed — invoice {{number}}",
		body: mustTemplate("approved", `<p>Dear {{.CustomerName}},</p>
<p>Your order against invoice <strong>{{.Number}}</strong> has been confirmed and is being prepared for shipment.</p>
<p>Total: {{.Total}}</p>
<p>Thank you for your business.</p>`),
	},
	OutcomeFlaggedInventory: {
		subject: "Invoice {{number}} flagged — inventory issue",
		body: mustTemplate("flagged-inventory", `<p>Hello,</p>
<p>Invoice <strong>{{.Number}}</strong> was flagged: requested quantities exceed current stock.</p>
<p>Affected SKUs: {{.ShortSKUs}}</p>
<p>Restock and approve the invoice manually once inventory allows.</p>`),
	},
	OutcomeDelayedDelivery: {
		subject: "Delivery update for invoice {{number}}",
		body: mustTemplate("delayed-delivery", `<p>Dear {{.CustomerName}},</p>
<p>Part of your order against invoice <strong>{{.Number}}</strong> is temporarily out of stock. Your delivery will be delayed while we restock.</p>
<p>We apologise for the inconvenience and will keep you posted.</p>`),
	},
	OutcomeMissingSKU: {
		subject: "Product availability for invoice {{number}}",
		body: mustTemplate("missing-sku", `<p>Dear {{.CustomerName}},</p>
<p>Some products on invoice <strong>{{.Number}}</strong> could not be matched to our catalogue: {{.MissingSKUs}}.</p>
<p>Our team is checking availability and will contact you shortly.</p>`),
	},
	OutcomeStatusChanged: {
		subject: "Invoice {{number}} status update",
		body: mustTemplate("status-changed", `<p>Dear {{.CustomerName}},</p>
<p>The status of invoice <strong>{{.Number}}</strong> has changed to <strong>{{.Status}}</strong>.</p>
<p>Reply to this email if you have any questions.</p>`),
	},
}

type templateData struct {
	Number       string
	CustomerName string
	Total        string
	Status       string
	MissingSKUs  string
	ShortSKUs    string
}

// Render produces the subject and HTML body for a notification,
// substituting fallbacks for missing optional fields.
func Render(n Notification) (string, string, error) {
	tpl, ok := templates[n.Outcome]
	if !ok {
		return "", "", fmt.Errorf("unknown outcome %q", n.Outcome)
	}

	data := templateData{
		Number:       fallback(n.Invoice.Number, "N/A"),
		CustomerName: fallback(n.Invoice.CustomerName, "Valued Customer"),
		Total:        fmt.Sprintf("%.2f", n.Invoice.Total),
		Status:       fallback(n.Invoice.Status, "N/A"),
		MissingSKUs:  fallback(strings.Join(n.Invoice.MissingSKUs, ", "), "N/A"),
		ShortSKUs:    fallback(strings.Join(n.Invoice.ShortSKUs, ", "), "N/A"),
	}

	subject := strings.ReplaceAll(tpl.subject, "{{number}}", data.Number)

	var body strings.Builder
	if err := tpl.body.Execute(&body, data); err != nil {
		return "", "", err
	}
	return subject, body.String(), nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

func mustTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Parse(text))
}
