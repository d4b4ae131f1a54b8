package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/warp/tenancy-engine/billing"
	"github.com/warp/tenancy-engine/ledger"
	"github.com/warp/tenancy-engine/statement"
)

// apiActor is recorded as CreatedBy on entries written through the API.
const apiActor = "api"

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

// ListEntries returns ledger entries across tenants, oldest first.
// GET /api/payments?tenant_id=&kind=&category=&from=&to=&limit=
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.EntryFilter{
		TenantID: ledger.TenantID(q.Get("tenant_id")),
		Kind:     ledger.EntryKind(strings.ToUpper(q.Get("kind"))),
		Category: ledger.Category(q.Get("category")),
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid kind (use CHARGE or PAYMENT)", nil)
		return
	}
	var err error
	if filter.From, err = parseOptionalDate(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	if filter.To, err = parseOptionalDate(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
	}

	entries, err := h.Billing.Ledger().List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, "Failed to list entries", err)
		return
	}
	writeJSON(w, http.StatusOK, entryDTOs(entries))
}

// CreateEntry records a payment, or a one-off charge when kind is CHARGE.
// POST /api/payments
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required", nil)
		return
	}
	amount, err := ledger.ParseMoney(req.Amount, h.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	date, err := parseOptionalDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	var entry ledger.Entry
	switch ledger.EntryKind(strings.ToUpper(req.Kind)) {
	case "", ledger.KindPayment:
		method := ledger.PaymentMethod(strings.ToUpper(req.PaymentMethod))
		if method != "" && !method.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid payment_method", nil)
			return
		}
		entry, err = h.Billing.RecordPayment(r.Context(), billing.PaymentRequest{
			TenantID:    ledger.TenantID(req.TenantID),
			Amount:      amount,
			Date:        date,
			Method:      method,
			Reference:   req.ReferenceNumber,
			Description: req.Description,
			Notes:       req.Notes,
			CreatedBy:   apiActor,
		})
	case ledger.KindCharge:
		var period ledger.BillingPeriod
		if req.Period != "" {
			if period, err = ledger.ParsePeriod(req.Period); err != nil {
				writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
				return
			}
		}
		category := ledger.Category(req.Category)
		if category == "" {
			category = ledger.CategoryOther
		}
		entry, err = h.Billing.RecordCharge(r.Context(), billing.ChargeRequest{
			TenantID:    ledger.TenantID(req.TenantID),
			Category:    category,
			Amount:      amount,
			Date:        date,
			Period:      period,
			Description: req.Description,
			Notes:       req.Notes,
			CreatedBy:   apiActor,
		})
	default:
		writeError(w, http.StatusBadRequest, "Invalid kind (use CHARGE or PAYMENT)", nil)
		return
	}
	if err != nil {
		writeDomainError(w, "Failed to record entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// GetInvoice renders the invoice for one charge.
// GET /api/payments/{id}/invoice?format=json|html|text
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, err := h.Billing.Ledger().Entry(ctx, ledger.EntryID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get entry", err)
		return
	}
	a, err := h.Billing.Directory().Account(ctx, e.TenantID)
	if err != nil {
		writeDomainError(w, "Failed to get tenant", err)
		return
	}
	inv, err := statement.BuildInvoice(a, e, ledger.BillingPeriod{}, h.today())
	if err != nil {
		writeDomainError(w, "Failed to build invoice", err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" || format == "json" {
		writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
		return
	}
	renderer, err := statement.ForFormat(format)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown format", err)
		return
	}
	var buf bytes.Buffer
	if err := renderer.RenderInvoice(&buf, inv); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render invoice", err)
		return
	}
	writeDocument(w, renderer.ContentType(), buf.Bytes())
}

// =============================================================================
// TENANT ACCOUNT
// =============================================================================

// GetBalance returns the tenant's balance and overdue position as of today.
// GET /api/tenants/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.TenantID(chi.URLParam(r, "id"))
	if _, err := h.Billing.Directory().Account(ctx, id); err != nil {
		writeDomainError(w, "Failed to get tenant", err)
		return
	}

	s, err := h.Billing.Balances().Summary(ctx, id, h.today())
	if err != nil {
		writeDomainError(w, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(s))
}

// GetStatement returns the tenant's statement with a running balance.
// GET /api/tenants/{id}/statement?format=json|html|text&from=&to=
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	id := ledger.TenantID(chi.URLParam(r, "id"))

	a, err := h.Billing.Directory().Account(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to get tenant", err)
		return
	}
	from, err := parseOptionalDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date", err)
		return
	}
	to, err := parseOptionalDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date", err)
		return
	}

	var entries []ledger.Entry
	if from.IsZero() && to.IsZero() {
		entries, err = h.Billing.Ledger().Entries(ctx, id)
	} else {
		if to.IsZero() {
			to = h.today()
		}
		entries, err = h.Billing.Ledger().EntriesInRange(ctx, id, from, to)
	}
	if err != nil {
		writeDomainError(w, "Failed to load entries", err)
		return
	}

	stmt := statement.Build(a, entries, h.Now())

	format := q.Get("format")
	if format == "" || format == "json" {
		writeJSON(w, http.StatusOK, toStatementDTO(stmt))
		return
	}
	renderer, err := statement.ForFormat(format)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unknown format", err)
		return
	}
	var buf bytes.Buffer
	if err := renderer.RenderStatement(&buf, stmt); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render statement", err)
		return
	}
	writeDocument(w, renderer.ContentType(), buf.Bytes())
}

// ChargeRent charges one tenant rent for a period. A period already
// charged is a 409.
// POST /api/tenants/{id}/charge-rent
func (h *Handler) ChargeRent(w http.ResponseWriter, r *http.Request) {
	var req ChargeRentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	charge := billing.RentCharge{Description: req.Description, CreatedBy: apiActor, Notify: req.Notify}
	var err error
	if req.Period != "" {
		if charge.Period, err = ledger.ParsePeriod(req.Period); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
			return
		}
	}
	if charge.Amount, err = h.parseMoney(req.Amount); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if charge.Date, err = parseOptionalDate(req.Date); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	entry, err := h.Billing.ChargeTenant(r.Context(), ledger.TenantID(chi.URLParam(r, "id")), charge)
	if err != nil {
		writeDomainError(w, "Failed to charge rent", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// =============================================================================
// BILLING RUNS
// =============================================================================

// ChargeAllRent charges every active tenant for a period (default: the
// current month). Tenants already charged are reported as skipped.
// POST /api/payments/charge-all-rent
func (h *Handler) ChargeAllRent(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}
	period := ledger.PeriodOf(h.Now())
	if req.Period != "" {
		p, err := ledger.ParsePeriod(req.Period)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
			return
		}
		period = p
	}

	res, err := h.Billing.ChargeAllActive(r.Context(), period, runOptions(req))
	writeRun(w, "Failed to charge rent", res, err)
}

// ApplyLateFees charges the configured late fee to every overdue tenant.
// POST /api/billing/late-fees
func (h *Handler) ApplyLateFees(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}
	res, err := h.Billing.ApplyAllLateFees(r.Context(), runOptions(req))
	writeRun(w, "Failed to apply late fees", res, err)
}

// SendReminders notifies every tenant with an overdue balance.
// POST /api/billing/reminders
func (h *Handler) SendReminders(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRunRequest(w, r)
	if !ok {
		return
	}
	res, err := h.Billing.SendAllLateReminders(r.Context(), runOptions(req))
	writeRun(w, "Failed to send reminders", res, err)
}

func decodeRunRequest(w http.ResponseWriter, r *http.Request) (RunRequest, bool) {
	var req RunRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return req, false
	}
	return req, true
}

func runOptions(req RunRequest) billing.RunOptions {
	return billing.RunOptions{DryRun: req.DryRun, SkipNotifications: req.SkipNotifications, Actor: apiActor}
}

// writeRun reports a batch. Per-tenant failures are part of a 200 result;
// only an error that stopped the run is an error response.
func writeRun(w http.ResponseWriter, message string, res *billing.RunResult, err error) {
	if err != nil && (res == nil || !errors.Is(err, ledger.ErrPartialBatchFailure)) {
		writeDomainError(w, message, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResultDTO(res))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeDocument(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func entryDTOs(entries []ledger.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}
