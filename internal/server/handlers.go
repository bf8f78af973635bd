package server

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"time"

	"gst-reconciliation-service/internal/fiscal"
	"gst-reconciliation-service/internal/portal"
	"gst-reconciliation-service/internal/reconciler"
	gsterrors "gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"
)

// maxUploadBytes caps multipart memory use; template files for a year of
// invoices stay well under this.
const maxUploadBytes = 32 << 20

// Handlers implements the HTTP endpoints.
type Handlers struct {
	svc *reconciler.Service
	log logger.Logger
}

// NewHandlers creates the endpoint set around a reconciliation service.
func NewHandlers(svc *reconciler.Service) *Handlers {
	return &Handlers{svc: svc, log: logger.WithComponent("handlers")}
}

// errorBody is the error half of the response envelope.
type errorBody struct {
	Status string `json:"status"`
	Error  struct {
		Category   string `json:"category"`
		Code       string `json:"code"`
		Message    string `json:"message"`
		Suggestion string `json:"suggestion,omitempty"`
	} `json:"error"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.WithError(err).Error("failed to encode response")
	}
}

// writeError maps error categories onto HTTP statuses: configuration
// problems are the caller's request (400), malformed uploads are
// unprocessable (422), portal trouble is a bad gateway (502) except for a
// dead session (401), anything else is a 500.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	re, ok := gsterrors.AsReconError(err)
	if !ok {
		re = gsterrors.InternalError(gsterrors.CodeUnexpectedError, "request", err)
	}

	status := http.StatusInternalServerError
	switch re.Category {
	case gsterrors.CategoryConfiguration:
		status = http.StatusBadRequest
	case gsterrors.CategoryValidation, gsterrors.CategoryParse, gsterrors.CategoryFile:
		status = http.StatusUnprocessableEntity
	case gsterrors.CategoryPortal:
		if re.Code == gsterrors.CodeSessionExpired {
			status = http.StatusUnauthorized
		} else {
			status = http.StatusBadGateway
		}
	}

	var body errorBody
	body.Status = "error"
	body.Error.Category = string(re.Category)
	body.Error.Code = string(re.Code)
	body.Error.Message = re.Message
	body.Error.Suggestion = re.Suggestion
	h.writeJSON(w, status, body)
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "gst-reconciliation-service",
	})
}

// ListPeriods returns the selectable financial years, newest first.
func (h *Handlers) ListPeriods(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"data":   fiscal.FYOptions(time.Now(), 5),
	})
}

// requestFromForm reads the shared period/tolerance fields from a parsed
// multipart form.
func requestFromForm(r *http.Request) reconciler.Request {
	return reconciler.Request{
		SelectedFY:   r.FormValue("selected_fy"),
		PeriodType:   r.FormValue("period_type"),
		PeriodValue:  r.FormValue("selected_period_val"),
		Tolerance:    r.FormValue("tolerance"),
		ForceRefresh: r.FormValue("force_refresh") == "true",
	}
}

func credentialFrom(r *http.Request) portal.Credential {
	return portal.Credential{
		SessionID: r.Header.Get("X-Session-ID"),
		GSTIN:     r.FormValue("gstin"),
	}
}

func formFile(r *http.Request, field string) (multipart.File, error) {
	f, _, err := r.FormFile(field)
	if err != nil {
		return nil, gsterrors.ValidationError(gsterrors.CodeMissingField, field, nil, err).
			WithSuggestion("attach the file as multipart field '" + field + "'")
	}
	return f, nil
}

// Reconcile2BManual handles the fully offline file-vs-file run.
func (h *Handlers) Reconcile2BManual(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, gsterrors.ValidationError(gsterrors.CodeInvalidFormat, "body", nil, err))
		return
	}

	file2B, err := formFile(r, "file_2b")
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer file2B.Close()

	fileBooks, err := formFile(r, "file_books")
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer fileBooks.Close()

	result, err := h.svc.Reconcile2BManual(r.Context(), reconciler.ManualRequest{
		Request: requestFromForm(r),
		FileA:   file2B,
		FileB:   fileBooks,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Reconcile1VsBooks reconciles filed GSTR-1 data against an uploaded
// books file.
func (h *Handlers) Reconcile1VsBooks(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, gsterrors.ValidationError(gsterrors.CodeInvalidFormat, "body", nil, err))
		return
	}

	fileBooks, err := formFile(r, "file_books")
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer fileBooks.Close()

	result, err := h.svc.Reconcile1VsBooks(r.Context(), credentialFrom(r), reconciler.BooksRequest{
		Request:   requestFromForm(r),
		FileBooks: fileBooks,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Reconcile3BVsBooks reconciles 3B summary figures against an uploaded
// books file, month by month.
func (h *Handlers) Reconcile3BVsBooks(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, gsterrors.ValidationError(gsterrors.CodeInvalidFormat, "body", nil, err))
		return
	}

	fileBooks, err := formFile(r, "file_books")
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer fileBooks.Close()

	result, err := h.svc.Reconcile3BVsBooks(r.Context(), credentialFrom(r), reconciler.BooksRequest{
		Request:   requestFromForm(r),
		FileBooks: fileBooks,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ReconcileComprehensive runs the whole-FY multi-return cross-check.
func (h *Handlers) ReconcileComprehensive(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, gsterrors.ValidationError(gsterrors.CodeInvalidFormat, "body", nil, err))
		return
	}

	result, err := h.svc.ReconcileComprehensive(r.Context(), credentialFrom(r), requestFromForm(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}
