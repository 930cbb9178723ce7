// TruthLens - Media Authenticity Analysis Service
// Copyright 2026 TruthLens Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/truthlens/truthlens

// Package api provides the HTTP surface: upload, results retrieval,
// registry lookup, health and metrics. Handlers are thin plumbing
// around the analysis service.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/truthlens/truthlens/internal/logging"
)

// APIResponse is the envelope every endpoint writes.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
	Meta    *APIMeta  `json:"meta,omitempty"`
}

// APIError carries a machine-readable code and a human message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// APIMeta is response metadata.
type APIMeta struct {
	Timestamp time.Time `json:"timestamp"`
	// Pagination is set on list responses.
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

// PaginationMeta describes a page of a list response.
type PaginationMeta struct {
	Count   int  `json:"count"`
	Offset  int  `json:"offset,omitempty"`
	Limit   int  `json:"limit"`
	HasMore bool `json:"has_more"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeUnsupportedMedia   = "UNSUPPORTED_MEDIA"
	ErrCodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	ErrCodeNoSignal           = "NO_SIGNAL"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

func writeJSON(w http.ResponseWriter, statusCode int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC()},
	})
}

func writePage(w http.ResponseWriter, data any, pagination *PaginationMeta) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: time.Now().UTC(), Pagination: pagination},
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    &APIMeta{Timestamp: time.Now().UTC()},
	})
}

func writeValidationError(w http.ResponseWriter, message string, details any) {
	writeJSON(w, http.StatusBadRequest, APIResponse{
		Success: false,
		Error:   &APIError{Code: ErrCodeValidationFailed, Message: message, Details: details},
		Meta:    &APIMeta{Timestamp: time.Now().UTC()},
	})
}
