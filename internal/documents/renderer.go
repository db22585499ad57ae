package documents

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-po/internal/procurement"
	"github.com/odyssey-erp/odyssey-po/web"
)

// PDFClient exposes the subset of the report client used by the renderer.
type PDFClient interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// RenderResult carries the rendered artefacts.
type RenderResult struct {
	HTML string
	PDF  []byte
}

type orderView struct {
	Order       procurement.PurchaseOrder
	GeneratedAt time.Time
}

// Renderer turns a purchase order into a PDF via html/template and Gotenberg.
type Renderer struct {
	tpl    *template.Template
	client PDFClient
}

// NewRenderer parses the purchase order template. Amounts are grouped
// according to tag.
func NewRenderer(client PDFClient, tag language.Tag) (*Renderer, error) {
	if client == nil {
		return nil, fmt.Errorf("documents renderer: pdf client required")
	}
	printer := message.NewPrinter(tag)
	funcMap := template.FuncMap{
		"formatDate": formatDate,
		"money": func(d decimal.Decimal) string {
			return printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
		},
		"inc": func(i int) int { return i + 1 },
	}
	tpl, err := template.New("purchase_order.html").Funcs(funcMap).ParseFS(web.Templates, "templates/reports/purchase_order.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{tpl: tpl, client: client}, nil
}

func formatDate(v any) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format("02 Jan 2006")
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Format("02 Jan 2006")
	default:
		return ""
	}
}

// HTML executes the template only.
func (r *Renderer) HTML(po procurement.PurchaseOrder, at time.Time) (string, error) {
	if r == nil || r.tpl == nil {
		return "", fmt.Errorf("documents renderer not initialised")
	}
	buf := &bytes.Buffer{}
	if err := r.tpl.Execute(buf, orderView{Order: po, GeneratedAt: at}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render executes the template and converts the HTML to PDF bytes.
func (r *Renderer) Render(ctx context.Context, po procurement.PurchaseOrder, at time.Time) (RenderResult, error) {
	html, err := r.HTML(po, at)
	if err != nil {
		return RenderResult{}, err
	}
	pdf, err := r.client.RenderHTML(ctx, html)
	if err != nil {
		return RenderResult{}, err
	}
	return RenderResult{HTML: html, PDF: pdf}, nil
}
