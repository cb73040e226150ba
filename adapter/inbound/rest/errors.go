package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/evnchn/3D-Print-Me/domain/model"
	"github.com/evnchn/3D-Print-Me/domain/port/outbound"
)

// statusFor maps every error kind to its HTTP status
func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindNullUserField, model.KindInsecurePassword, model.KindMalformedToken, model.KindInvalidID:
		return http.StatusBadRequest
	case model.KindWrongCredentials, model.KindInvalidToken:
		return http.StatusUnauthorized
	case model.KindExpiredToken, model.KindNotAdmin, model.KindNotOwner:
		return http.StatusForbidden
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindUsernameExists, model.KindInvalidJobState:
		return http.StatusConflict
	case model.KindFileTypeRejected:
		return http.StatusUnsupportedMediaType
	case model.KindFieldsIncomplete:
		return http.StatusUnprocessableEntity
	case model.KindUnexpected:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError answers with the sentinel message, internal faults never leak their detail
func writeError(w http.ResponseWriter, r *http.Request, logger outbound.Logger, err error) {
	kind := model.KindOf(err)
	status := statusFor(kind)

	var detail string
	if kind == model.KindUnexpected {
		detail = "internal server error"
		logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		detail = sentinelMessage(err)
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	writeJSON(w, status, errorResponse{Detail: detail, Kind: kind.String()})
}

// sentinelMessage hides wrapping context such as oops codes from known errors
func sentinelMessage(err error) string {
	for _, sentinel := range []error{
		model.ErrNullUserField, model.ErrWrongCredentials, model.ErrUsernameExists,
		model.ErrInsecurePassword, model.ErrMalformedToken, model.ErrInvalidToken,
		model.ErrExpiredToken, model.ErrNotAdmin, model.ErrNotFound, model.ErrNotOwner,
		model.ErrInvalidID, model.ErrFieldsIncomplete, model.ErrInvalidJobState,
		model.ErrFileTypeRejected,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

func badRequest(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Detail: detail, Kind: "bad_request"})
}
