// Package handler provides the admin HTTP handlers of vos-server.
package handler

import (
	"time"

	"github.com/yndnr/vos-go/internal/core/domain"
	"github.com/yndnr/vos-go/internal/service/reclaimer"
	"github.com/yndnr/vos-go/internal/vos"
)

// Codes produced by the HTTP layer itself.
const (
	CodeOK           = "OK"
	CodeBadRequest   = "VOS-HTTP-4000"
	CodeUnauthorized = "VOS-HTTP-4010"
	CodeForbidden    = "VOS-HTTP-4030"
	CodeTooMany      = "VOS-HTTP-4290"
	CodeInternal     = "VOS-HTTP-5000"
	CodeUnavailable  = "VOS-HTTP-5030"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      CodeOK,
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// ContainerListResponse is the body of GET /admin/v1/containers.
type ContainerListResponse struct {
	Items []vos.ContSummary `json:"items"`
	Total int               `json:"total"`
}

// SnapshotListResponse is the body of GET /admin/v1/containers/{uuid}/snapshots.
type SnapshotListResponse struct {
	Items []domain.Snapshot `json:"items"`
}

// DiscardRequest is the body of POST /admin/v1/containers/{uuid}/discard.
// A missing Hi means every epoch from Lo on. Async hands the job to the
// reclaimer instead of discarding in the request.
type DiscardRequest struct {
	Lo     domain.Epoch  `json:"lo"`
	Hi     *domain.Epoch `json:"hi,omitempty"`
	Cookie string        `json:"cookie"`
	Async  bool          `json:"async,omitempty"`
}

// DiscardResponse reports a synchronous discard, or the queueing of an
// asynchronous one.
type DiscardResponse struct {
	Epr    domain.EpochRange `json:"epr"`
	Queued bool              `json:"queued"`
	Stats  *vos.DiscardStats `json:"stats,omitempty"`
}

// ReclaimerResponse is the body of GET /admin/v1/reclaimer.
type ReclaimerResponse struct {
	Stats   reclaimer.Stats  `json:"stats"`
	Pending []vos.DiscardJob `json:"pending"`
}
