package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/zoner/backend/internal/accounts"
	"github.com/zoner/backend/internal/apperr"
	"github.com/zoner/backend/internal/auth"
	"github.com/zoner/backend/internal/logging"
)

const (
	maxJSONBytes      = 1 << 20
	maxMultipartBytes = 32 << 20
	multipartMemory   = 8 << 20
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	writeJSON(ctx, w, status, payload)

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondOK(ctx context.Context, w http.ResponseWriter, status int, message string, data any) {
	respondJSON(ctx, w, status, envelope{Success: true, Message: message, Data: data})
}

// respondError maps err onto its HTTP status. Only classified messages reach
// the client.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	body := envelope{Message: apperr.PublicMessage(err)}

	var conflict *accounts.UsernameConflictError
	if errors.As(err, &conflict) {
		body.Data = map[string][]string{"suggestions": conflict.Suggestions}
	}

	logger := logging.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "kind", kind.String(), slog.Any("error", err))
	} else {
		logger.Warn("request rejected", "status", status, "kind", kind.String(), "error", err.Error())
	}
	writeJSON(ctx, w, status, body)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("upload is too large")
		}
		return apperr.Validation("invalid multipart form")
	}
	return nil
}

// formFile reads an uploaded part. A missing optional part yields nil data.
func formFile(r *http.Request, field string, required bool) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) && !required {
			return nil, "", nil
		}
		return nil, "", apperr.Validation(field + " is required")
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", apperr.Validation("failed to read " + field)
	}
	if required && len(data) == 0 {
		return nil, "", apperr.Validation(field + " is empty")
	}
	return data, header.Filename, nil
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation(name + " must be an integer")
	}
	return v, nil
}

func paging(r *http.Request, defaultSize int) (int, int, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	size, err := queryInt(r, "pageSize", defaultSize)
	if err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

func principal(r *http.Request) (auth.Principal, error) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		return auth.Principal{}, apperr.Authentication("authentication required")
	}
	return p, nil
}
