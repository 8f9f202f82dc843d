package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/belgiumluv/docker-cont/internal/domain"
	rerrors "github.com/belgiumluv/docker-cont/internal/errors"
	"github.com/belgiumluv/docker-cont/internal/store"
	"github.com/belgiumluv/docker-cont/pkg/logger"
)

// DistributionHandler serves the latest rotation results to clients
type DistributionHandler struct {
	reader domain.DecoyReader
	logger *logger.Logger
}

// NewDistributionHandler creates a new distribution handler
func NewDistributionHandler(reader domain.DecoyReader, log *logger.Logger) *DistributionHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &DistributionHandler{reader: reader, logger: log.APILogger()}
}

// PublicKeyResponse is the body of GET /api/v1/reality/public-key
type PublicKeyResponse struct {
	PublicKey string    `json:"public_key"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// DecoysResponse is the body of GET /api/v1/decoys
type DecoysResponse struct {
	Reality   string    `json:"reality"`
	ShadowTLS string    `json:"shadowtls"`
	Hysteria  string    `json:"hysteria"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse represents error responses
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      int       `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// PublicKeyHandler handles GET /api/v1/reality/public-key
func (h *DistributionHandler) PublicKeyHandler(w http.ResponseWriter, r *http.Request) {
	key, err := h.reader.LatestPublicKey()
	if err != nil {
		h.writeStoreError(w, err, "no public key recorded")
		return
	}

	writeJSON(w, http.StatusOK, PublicKeyResponse{
		PublicKey: key.Key,
		Version:   key.Version,
		CreatedAt: key.CreatedAt,
	})
}

// DecoysHandler handles GET /api/v1/decoys
func (h *DistributionHandler) DecoysHandler(w http.ResponseWriter, r *http.Request) {
	sel, err := h.reader.LatestDomainSelection()
	if err != nil {
		h.writeStoreError(w, err, "no decoy selection recorded")
		return
	}

	writeJSON(w, http.StatusOK, DecoysResponse{
		Reality:   sel.Reality,
		ShadowTLS: sel.ShadowTLS,
		Hysteria:  sel.Hysteria,
		Version:   sel.Version,
		CreatedAt: sel.CreatedAt,
	})
}

func (h *DistributionHandler) writeStoreError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		writeErrorResponse(w, notFound, http.StatusNotFound)
		return
	}

	h.logger.WithError(err).WithField("error_code", string(rerrors.GetErrorCode(err))).
		Error("Store read failed")
	writeErrorResponse(w, "store unavailable", http.StatusServiceUnavailable)
}

// writeErrorResponse writes a standardized error response
func writeErrorResponse(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, ErrorResponse{
		Error:     message,
		Code:      code,
		Timestamp: time.Now().UTC(),
	})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
