package http

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"certdash/internal/core"
	"certdash/internal/log"
	"certdash/internal/services"
	"certdash/internal/session"
)

type certificatesView struct {
	page
	Certificates []core.Certificate
}

type requestView struct {
	page
	Period       core.Period
	Months       []int
	Years        []int
	Loaded       bool
	Certificates []core.Certificate
}

type quoteView struct {
	Quote  core.Quote
	Period core.Period
}

type createView struct {
	page
	Business bool
	Months   []int
	Years    []int
	Form     core.CertificateRequest
}

func (s *Server) handleCertificates(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := upstream(r.Context())
	defer cancel()
	certs, err := s.deps.Certificates.Owned(ctx, session.FromContext(r.Context()))
	if err != nil {
		s.fail(w, r, log.OpFetch, err)
		return
	}
	s.render(w, r, http.StatusOK, "certificates_page", certificatesView{
		page:         s.newPage(r, "My certificates", "certificates"),
		Certificates: certs,
	})
}

// handleRequest renders the lookup form. With month or year in the query it
// also lists the certificates on offer; htmx requests get only the list.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	view := requestView{
		page:   s.newPage(r, "Request certificates", "request"),
		Period: ParsePeriodParams(q, core.DefaultPeriod()),
		Months: yearRange(1, 12),
		Years:  yearRange(core.MinCertificateYear, s.now().Year()+1),
	}

	if q.Has("month") || q.Has("year") {
		ctx, cancel := upstream(r.Context())
		defer cancel()
		certs, err := s.deps.Certificates.Available(ctx, view.Session, view.Period)
		if err != nil {
			s.fail(w, r, log.OpFetch, err)
			return
		}
		view.Loaded = true
		view.Certificates = certs
		if isHTMX(r) {
			s.render(w, r, http.StatusOK, "available_list", view)
			return
		}
	}
	s.render(w, r, http.StatusOK, "request_page", view)
}

// purchaseForm reads quantity and period from a JSON or form body.
func purchaseForm(r *http.Request) (core.Purchase, error) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		return core.Purchase{}, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	quantity, err := parser.GetInt("quantity")
	if err != nil {
		return core.Purchase{}, fmt.Errorf("%w: %v", core.ErrInvalidQuantity, err)
	}
	p := core.Purchase{Quantity: quantity}
	def := core.DefaultPeriod()
	if p.UsableMonth, err = parser.GetInt("month"); err != nil {
		p.UsableMonth = def.Month
	}
	if p.UsableYear, err = parser.GetInt("year"); err != nil {
		p.UsableYear = def.Year
	}
	return p, nil
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	p, err := purchaseForm(r)
	if err != nil {
		s.fail(w, r, log.OpQuote, err)
		return
	}
	ctx, cancel := upstream(r.Context())
	defer cancel()
	q, err := s.deps.Certificates.Quote(ctx, session.FromContext(r.Context()), p.Quantity)
	if err != nil {
		s.fail(w, r, log.OpQuote, err)
		return
	}

	html, err := s.renderFragment("quote_partial", quoteView{
		Quote:  q,
		Period: core.Period{Month: p.UsableMonth, Year: p.UsableYear},
	})
	if err != nil {
		s.fail(w, r, log.OpRender, err)
		return
	}
	NewHTMXResponse().BodyHTML(html).Write(w)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	p, err := purchaseForm(r)
	if err != nil {
		s.fail(w, r, log.OpBuy, err)
		return
	}
	ctx, cancel := upstream(r.Context())
	defer cancel()
	if err := s.deps.Certificates.Buy(ctx, session.FromContext(r.Context()), p); err != nil {
		s.fail(w, r, log.OpBuy, err)
		return
	}

	msg := fmt.Sprintf("Bought %d certificate(s) usable in %s %d", p.Quantity, monthName(p.UsableMonth), p.UsableYear)
	NewHTMXResponse().
		TriggerCertificateBought(p.Quantity, p.UsableMonth, p.UsableYear).
		TriggerDashboardRefresh().
		TriggerSuccessNotification(msg).
		BodyHTML(`<div class="success">` + template.HTMLEscapeString(msg) + `</div>`).
		Write(w)
}

// handleCreate serves the business-only creation form and its submission.
// Consumers see a pointer to the request page instead of the form.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if resp := RequireMethod(r, http.MethodGet, http.MethodPost); resp != nil {
		resp.Write(w)
		return
	}
	now := s.now()
	view := createView{
		page:   s.newPage(r, "Create certificate", "create"),
		Months: yearRange(1, 12),
		Years:  yearRange(core.MinCertificateYear, now.Year()+1),
		Form:   core.CertificateRequest{UsableMonth: int(now.Month()), UsableYear: now.Year()},
	}
	view.Business = view.Session.IsBusiness()

	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, "create_page", view)
		return
	}

	if !view.Business {
		s.fail(w, r, log.OpCreate, services.ErrNotBusiness)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	req := core.CertificateRequest{
		UsableMonth:           ParseIntParam(r.PostForm, "month", 0),
		UsableYear:            ParseIntParam(r.PostForm, "year", 0),
		RegulatoryAuthorityID: strings.TrimSpace(sanitizeInput(r.PostForm.Get("regulatoryAuthorityID"))),
	}

	ctx, cancel := upstream(r.Context())
	defer cancel()
	if err := s.deps.Certificates.Create(ctx, view.Session, req); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}

	if !isHTMX(r) {
		http.Redirect(w, r, "/certificates", http.StatusSeeOther)
		return
	}
	msg := fmt.Sprintf("Certificate created for %s %d", monthName(req.UsableMonth), req.UsableYear)
	NewHTMXResponse().
		TriggerCertificateCreated(req.UsableMonth, req.UsableYear).
		TriggerFormReset().
		TriggerSuccessNotification(msg).
		BodyHTML(`<div class="success">` + template.HTMLEscapeString(msg) + `</div>`).
		Write(w)
}
