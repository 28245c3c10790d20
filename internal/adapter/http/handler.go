package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/simaogato/tldpricing-backend/internal/adapter/presenter"
	"github.com/simaogato/tldpricing-backend/internal/domain"
	"github.com/simaogato/tldpricing-backend/internal/usecase/importer"
	"github.com/simaogato/tldpricing-backend/internal/usecase/pricesync"
	"github.com/simaogato/tldpricing-backend/internal/usecase/report"
)

// Handler serves the admin API on top of the usecase services
type Handler struct {
	syncService   *pricesync.SyncService
	reportService *report.ReportService
	importer      *importer.CatalogImporter
	policy        domain.PricingPolicy
}

// NewHandler creates a new Handler. policy is applied to every sync and live comparison.
func NewHandler(
	syncService *pricesync.SyncService,
	reportService *report.ReportService,
	catalogImporter *importer.CatalogImporter,
	policy domain.PricingPolicy,
) *Handler {
	return &Handler{
		syncService:   syncService,
		reportService: reportService,
		importer:      catalogImporter,
		policy:        policy,
	}
}

type syncRequest struct {
	Mode string `json:"mode"`
}

type extensionsRequest struct {
	Extensions []string `json:"extensions"`
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !decodeOptional(w, r, &req) {
		return
	}

	mode, err := pricesync.ParseMode(req.Mode)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if mode == pricesync.ModeSelected {
		writeError(w, r, http.StatusBadRequest, "invalid_input", "use /v1/sync/selected for selected mode")
		return
	}

	result, err := h.syncService.Sync(r.Context(), mode, h.policy, nil)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presenter.Sync(result))
}

func (h *Handler) syncSelected(w http.ResponseWriter, r *http.Request) {
	var req extensionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	result, err := h.syncService.SyncSelected(r.Context(), h.policy, req.Extensions)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presenter.Sync(result))
}

func (h *Handler) importExtensions(w http.ResponseWriter, r *http.Request) {
	var req extensionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	result, err := h.importer.Import(r.Context(), req.Extensions)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if len(result.Imported) > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, presenter.Import(result))
}

// listPricing compares the store with the cache, or with a fresh snapshot when source=live
func (h *Handler) listPricing(w http.ResponseWriter, r *http.Request) {
	var (
		rows []report.ComparisonRow
		err  error
	)
	switch strings.ToLower(r.URL.Query().Get("source")) {
	case "live":
		rows, err = h.reportService.Compare(r.Context(), h.policy)
	case "", "cache":
		rows, err = h.reportService.CompareCached(r.Context())
	default:
		writeError(w, r, http.StatusBadRequest, "invalid_input", "source must be live or cache")
		return
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": presenter.Comparison(rows)})
}

func (h *Handler) getPricing(w http.ResponseWriter, r *http.Request) {
	detail, err := h.reportService.Show(r.Context(), domain.NormalizeExtension(chi.URLParam(r, "extension")))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if len(detail.Rows) == 0 && detail.Cached == nil {
		writeError(w, r, http.StatusNotFound, "not_found", "extension "+detail.Extension+" not found")
		return
	}
	writeJSON(w, http.StatusOK, presenter.Detail(detail))
}

func (h *Handler) statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reportService.Statistics(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, presenter.Statistics(stats))
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.reportService.ExportCSV(r.Context(), &buf); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="tld-pricing.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// decodeOptional decodes a JSON body when one is present. An empty body leaves dst untouched.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, r, http.StatusBadRequest, "invalid_json", err.Error())
	return false
}
