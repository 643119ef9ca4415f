// Package apperr defines the tagged error taxonomy shared by Agora's gateway
// clients, stores and orchestrators.
//
// Every failure that can reach a client is classified once, close to where it
// happens, as an [*Error] carrying a [Kind]. The HTTP layer translates the kind
// into a status code with [HTTPStatus] and renders the human-readable message.
// Upstream rate-limit and quota failures keep their 429 and 402 status codes;
// every other kind collapses to 500.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the class of an application error.
type Kind int

const (
	// KindUnknown is reported for errors that were never classified.
	KindUnknown Kind = iota
	KindAuthRequired
	KindNotFound
	KindRateLimited
	KindQuotaExceeded
	KindUpstream
	KindTranscription
	KindSynthesis
	KindTranscoding
	KindGenerationParse
	KindGenerationValidation
	KindStore
)

// String returns the stable identifier of k. It is also used as the value of
// the X-Error-Kind response header.
func (k Kind) String() string {
	switch k {
	case KindAuthRequired:
		return "auth_required"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindUpstream:
		return "upstream_error"
	case KindTranscription:
		return "transcription_error"
	case KindSynthesis:
		return "synthesis_error"
	case KindTranscoding:
		return "transcoding_error"
	case KindGenerationParse:
		return "generation_parse_error"
	case KindGenerationValidation:
		return "generation_validation_error"
	case KindStore:
		return "store_error"
	default:
		return "unknown"
	}
}

// HeaderKind is the response header carrying [Kind.String] on failed API
// responses.
const HeaderKind = "X-Error-Kind"

// Messages returned to clients for upstream billing failures.
const (
	MsgRateLimited   = "Rate limits exceeded, please try again later."
	MsgQuotaExceeded = "Payment required, please add funds to your Lovable AI workspace."
)

// Error is a classified application error.
type Error struct {
	// Kind is the error class.
	Kind Kind

	// Status is the upstream HTTP status for KindUpstream, KindTranscription and
	// KindSynthesis errors. Zero when unknown or not applicable.
	Status int

	// Message is the client-facing text. When empty, the wrapped error's text
	// is used instead. The cause never reaches clients otherwise.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// ClientMessage returns the text shown to API clients. Rate-limit and quota
// errors always use their fixed messages. The wrapped cause is only exposed
// when the error has no message of its own, so upstream response bodies stay
// in the logs.
func (e *Error) ClientMessage() string {
	switch e.Kind {
	case KindRateLimited:
		return MsgRateLimited
	case KindQuotaExceeded:
		return MsgQuotaExceeded
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error()
}

// New returns an [*Error] of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap returns an [*Error] of the given kind wrapping err. It returns nil when
// err is nil.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// AuthRequired reports that the request carries no authenticated identity.
func AuthRequired() *Error { return New(KindAuthRequired, "Not authenticated") }

// NotFound reports a missing conversation, material or quiz.
func NotFound(what string) *Error { return New(KindNotFound, what+" not found") }

// RateLimited reports an upstream HTTP 429.
func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Status: http.StatusTooManyRequests, Message: MsgRateLimited}
}

// QuotaExceeded reports an upstream HTTP 402.
func QuotaExceeded() *Error {
	return &Error{Kind: KindQuotaExceeded, Status: http.StatusPaymentRequired, Message: MsgQuotaExceeded}
}

// Upstream reports any other upstream failure. status is the HTTP status code
// when one was received and zero for transport failures.
func Upstream(status int, err error) *Error {
	msg := "AI API error"
	if status != 0 {
		msg = fmt.Sprintf("AI API error: %d", status)
	}
	return &Error{Kind: KindUpstream, Status: status, Message: msg, Err: err}
}

// FromStatus maps a non-2xx completion gateway status to the taxonomy:
// 429 → RateLimited, 402 → QuotaExceeded, anything else → Upstream.
func FromStatus(status int, err error) *Error {
	switch status {
	case http.StatusTooManyRequests:
		e := RateLimited()
		e.Err = err
		return e
	case http.StatusPaymentRequired:
		e := QuotaExceeded()
		e.Err = err
		return e
	default:
		return Upstream(status, err)
	}
}

// Transcription reports a failed speech-to-text call.
func Transcription(status int, err error) *Error {
	return &Error{Kind: KindTranscription, Status: status, Message: "STT failed", Err: err}
}

// Synthesis reports a failed text-to-speech call.
func Synthesis(status int, err error) *Error {
	return &Error{Kind: KindSynthesis, Status: status, Message: "TTS failed", Err: err}
}

// Transcoding reports a base64 or media decoding failure.
func Transcoding(msg string, err error) *Error {
	return &Error{Kind: KindTranscoding, Message: msg, Err: err}
}

// GenerationParse reports a model response that is not the requested JSON.
func GenerationParse(err error) *Error {
	return &Error{Kind: KindGenerationParse, Message: "failed to parse generated content", Err: err}
}

// GenerationValidation reports a model response that parsed but violates the
// requested shape.
func GenerationValidation(msg string) *Error {
	return New(KindGenerationValidation, msg)
}

// Store reports a persistence failure.
func Store(op string, err error) *Error {
	return &Error{Kind: KindStore, Message: op, Err: err}
}

// KindOf returns the [Kind] of the first [*Error] in err's chain, or
// [KindUnknown].
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err's chain contains an [*Error] of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to the status code returned to API clients.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindQuotaExceeded:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.ClientMessage()
	}
	return err.Error()
}
