package inbound

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin/binding"

	"github.com/nhle/inbox-clarity/internal/model"
)

// ClassifyRequest is the inbound form of model.ClassificationRequest.
// Counters are pointers so a missing value is told apart from zero.
type ClassifyRequest struct {
	Subject              string   `json:"subject" binding:"required"`
	Snippet              string   `json:"snippet" binding:"required"`
	FullBody             string   `json:"fullBody"`
	From                 string   `json:"from" binding:"required,email"`
	To                   []string `json:"to" binding:"omitempty,dive,email"`
	Cc                   []string `json:"cc" binding:"omitempty,dive,email"`
	Labels               []string `json:"labels"`
	IsNewsletter         bool     `json:"isNewsletter"`
	UserEmail            string   `json:"userEmail" binding:"required,email"`
	UserWasLastSender    bool     `json:"userWasLastSender"`
	DaysSinceLastMessage *int     `json:"daysSinceLastMessage" binding:"required,min=0"`
	ThreadLength         *int     `json:"threadLength" binding:"required,min=1"`
}

// ToModel converts a validated request.
func (r ClassifyRequest) ToModel() model.ClassificationRequest {
	return model.ClassificationRequest{
		Subject:              r.Subject,
		Snippet:              r.Snippet,
		FullBody:             r.FullBody,
		From:                 r.From,
		To:                   orEmpty(r.To),
		Cc:                   orEmpty(r.Cc),
		Labels:               orEmpty(r.Labels),
		IsNewsletter:         r.IsNewsletter,
		UserEmail:            r.UserEmail,
		UserWasLastSender:    r.UserWasLastSender,
		DaysSinceLastMessage: *r.DaysSinceLastMessage,
		ThreadLength:         *r.ThreadLength,
	}
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// ValidationError reports a request rejected before classification.
type ValidationError struct {
	Details []FieldError
	Err     error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+" "+d.Message)
	}
	return fmt.Sprintf("invalid request: %s", strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Decode parses and validates a JSON request with the same rules the HTTP
// API applies. Nothing is defaulted: a rejected request is returned as a
// *ValidationError.
func Decode(data []byte) (model.ClassificationRequest, error) {
	UseJSONFieldNames()

	var req ClassifyRequest
	if err := binding.JSON.BindBody(data, &req); err != nil {
		return model.ClassificationRequest{}, &ValidationError{Details: Details(err), Err: err}
	}
	return req.ToModel(), nil
}
