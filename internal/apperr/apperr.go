// Package apperr holds the error kinds shared by every request flow and maps
// them onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

type Kind string

const (
	KindAuthRequired    Kind = "auth_required"
	KindValidation      Kind = "validation_error"
	KindPaymentDeclined Kind = "payment_declined"
	KindNetwork         Kind = "network_error"
	KindNotFound        Kind = "not_found"
	KindAccessDenied    Kind = "access_denied"
	KindConflict        Kind = "conflict"
)

type Error struct {
	Kind    Kind
	Message string
	// Fields carries per-field messages for validation errors.
	Fields map[string]string
	// Redirect is a hint for the website (login, signup, membership page).
	Redirect string
	Err      error
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(parts, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, apperr.ErrNotFound) match on kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && t.Message == ""
	}
	return false
}

// Sentinels for errors.Is checks on kind.
var (
	ErrAuthRequired    = &Error{Kind: KindAuthRequired}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrPaymentDeclined = &Error{Kind: KindPaymentDeclined}
	ErrNetwork         = &Error{Kind: KindNetwork}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrAccessDenied    = &Error{Kind: KindAccessDenied}
	ErrConflict        = &Error{Kind: KindConflict}
)

func AuthRequired(msg string) *Error {
	return &Error{Kind: KindAuthRequired, Message: msg, Redirect: "/login"}
}

func AccessDenied(msg, redirect string) *Error {
	return &Error{Kind: KindAccessDenied, Message: msg, Redirect: redirect}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

func Field(field, msg string) *Error {
	return Validation(map[string]string{field: msg})
}

func PaymentDeclined(msg string, err error) *Error {
	if msg == "" {
		msg = "payment declined"
	}
	return &Error{Kind: KindPaymentDeclined, Message: msg, Err: err}
}

func Network(msg string, err error) *Error {
	if msg == "" {
		msg = "payment could not be processed, please try again"
	}
	return &Error{Kind: KindNetwork, Message: msg, Err: err}
}

// KindOf returns the kind of err, or "" for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Status(kind Kind) int {
	switch kind {
	case KindAuthRequired:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindPaymentDeclined:
		return http.StatusPaymentRequired
	case KindNetwork:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Respond writes err as JSON. Errors outside the taxonomy become a 500 with
// fallback as the message so internals never leak to the client.
func Respond(c *gin.Context, err error, fallback string) {
	var e *Error
	if !errors.As(err, &e) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
		return
	}

	body := gin.H{"error": e.Message, "kind": e.Kind}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	if e.Redirect != "" {
		body["redirect"] = e.Redirect
	}
	c.JSON(Status(e.Kind), body)
}
