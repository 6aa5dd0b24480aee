package api

import "time"

const requestBodyMaxSize = 64 * 1024 // 64 KiB

// Idempotency-Key request header for the two schedule mutations.
const headerIdempotencyKey = "Idempotency-Key"

type errorResponse struct {
	Error string `json:"error"`
}

// PATCH /api/tasks/:id/progress request body.
type progressRequest struct {
	Progress *int `json:"progress"`
}

// PATCH /api/tasks/:id/schedule request body.
type scheduleRequest struct {
	StartDate *time.Time `json:"startDate"`
	EndDate   *time.Time `json:"endDate"`
}
