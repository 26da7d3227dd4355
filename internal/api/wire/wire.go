// Package wire holds the JSON bodies exchanged by the REST API and its
// clients.
package wire

import (
	"fpoadmin/pkg/domain"
	"fpoadmin/pkg/domain/attribute"
)

// Route prefix shared by server and client.
const Prefix = "/api/v1"

// CreateRequest is the body of POST /organizations/{parentID}/facilities.
type CreateRequest struct {
	ParentID string        `json:"parent_id"`
	Category string        `json:"category" validate:"required"`
	Details  attribute.Bag `json:"details"`
}

// CreateResponse is returned by a successful create.
type CreateResponse struct {
	ID string `json:"id"`
}

// ListResponse wraps the records of one organization.
type ListResponse struct {
	Records []domain.Record `json:"records"`
}

// ErrorResponse is the error envelope of every non-2xx response.
type ErrorResponse struct {
	Message    string      `json:"message"`
	Violations []Violation `json:"violations,omitempty"`
}

// Violation is one entry of ErrorResponse.Violations: a schema field or a
// store rule.
type Violation struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}
