package api

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/dseinapp/dsein-server/internal/errors"
	"github.com/dseinapp/dsein-server/internal/store"
)

// Problem is the error body every route returns:
//
//	{"code": "NOT_FOLLOWING", "message": "...", "details": ...}
type Problem struct {
	status  int
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

func (p *Problem) Error() string { return p.Message }

// GetStatus implements huma.StatusError.
func (p *Problem) GetStatus() int { return p.status }

// ContentType implements huma.ContentTypeFilter.
func (p *Problem) ContentType(string) string { return "application/json" }

// codeForStatus names errors huma raises on its own, before a handler runs.
var codeForStatus = map[int]domainerrors.Code{
	http.StatusBadRequest:          domainerrors.CodeValidation,
	http.StatusUnprocessableEntity: domainerrors.CodeValidation,
	http.StatusUnauthorized:        domainerrors.CodeUnauthorized,
	http.StatusForbidden:           domainerrors.CodeForbidden,
	http.StatusNotFound:            domainerrors.CodeNotFound,
	http.StatusConflict:            domainerrors.CodeConflict,
	http.StatusTooManyRequests:     domainerrors.CodeRateLimited,
	http.StatusServiceUnavailable:  domainerrors.CodeTransientStore,
}

// RegisterErrorHandler routes every huma error through newProblem. It must
// run before operations are registered.
func RegisterErrorHandler() {
	huma.NewError = newProblem
}

// newProblem picks the most specific description among errs: a domain
// error, then a store sentinel that escaped unmapped, then huma's own
// status with any per-field validation details.
func newProblem(status int, message string, errs ...error) huma.StatusError {
	var fields []string
	for _, err := range errs {
		if err == nil {
			continue
		}
		var de *domainerrors.Error
		if errors.As(err, &de) {
			return problemFrom(de)
		}
		if errors.Is(err, store.ErrNotFound) {
			return problemFrom(domainerrors.NotFound("not found"))
		}
		if errors.Is(err, store.ErrTransient) || errors.Is(err, store.ErrConflict) {
			return problemFrom(domainerrors.TransientStore(err))
		}
		var d *huma.ErrorDetail
		if errors.As(err, &d) {
			fields = append(fields, d.Error())
		}
	}

	code, ok := codeForStatus[status]
	if !ok {
		code = domainerrors.CodeInternal
	}
	p := &Problem{status: status, Code: string(code), Message: message}
	if len(fields) > 0 {
		p.Details = fields
	}
	return p
}

// problemFrom renders a domain error. The wrapped cause is never exposed.
func problemFrom(err *domainerrors.Error) *Problem {
	return &Problem{
		status:  err.HTTPStatus(),
		Code:    string(err.Code),
		Message: err.Message,
		Details: err.Details,
	}
}
