package remote

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"github.com/agora-dev/agora/internal/errors"
)

// OutcomeKind classifies a response before any business logic sees it.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeAuthRequired
	OutcomeForbidden
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeAuthRequired:
		return "auth_required"
	case OutcomeForbidden:
		return "forbidden"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Outcome is a classified response.
type Outcome struct {
	Kind   OutcomeKind
	Status int

	// Payload is the unwrapped envelope payload. Set only on success; it is
	// nil for empty bodies.
	Payload json.RawMessage

	// ServerCode and ServerMessage come from the envelope when present.
	ServerCode    string
	ServerMessage string

	// Malformed is set when a 2xx body could not be decoded.
	Malformed bool
}

// Err converts a non-success outcome into an *Error. It returns nil on
// success.
func (o Outcome) Err() error {
	var e *errors.Error
	switch o.Kind {
	case OutcomeSuccess:
		return nil
	case OutcomeAuthRequired:
		e = errors.New("A101")
	case OutcomeForbidden:
		e = errors.New("A102")
	default:
		if o.Malformed {
			e = errors.New("A105")
		} else {
			e = errors.New("A103")
		}
	}
	return e.WithStatus(o.Status).WithServer(o.ServerCode, o.ServerMessage)
}

// envelope is the backend's wrapper: {isSuccess, code, message, result|data}.
type envelope struct {
	IsSuccess *bool           `json:"isSuccess"`
	Code      json.RawMessage `json:"code"`
	Message   string          `json:"message"`
	Result    json.RawMessage `json:"result"`
	Data      json.RawMessage `json:"data"`
}

// Decode classifies a response:
//   - 403: Forbidden
//   - 401, a redirect, or an HTML body on a 2xx: AuthRequired (the backend
//     sends anonymous users to its login page)
//   - other non-2xx (HTML error pages included), isSuccess:false, or an
//     undecodable body: Failure
//   - otherwise Success, with the payload taken from "result", then "data",
//     then the body itself
func Decode(status int, header http.Header, body []byte) Outcome {
	o := Outcome{Status: status}
	env, isEnvelope := parseEnvelope(body)
	if isEnvelope {
		o.ServerCode = serverCode(env.Code)
		o.ServerMessage = env.Message
	}

	switch {
	case status == http.StatusForbidden:
		o.Kind = OutcomeForbidden
		return o
	case status == http.StatusUnauthorized, isRedirect(status):
		o.Kind = OutcomeAuthRequired
		return o
	case status >= 200 && status < 300 && isHTML(header):
		o.Kind = OutcomeAuthRequired
		return o
	case status < 200 || status >= 300:
		o.Kind = OutcomeFailure
		return o
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		o.Kind = OutcomeSuccess
		return o
	}
	if !json.Valid(body) {
		o.Kind = OutcomeFailure
		o.Malformed = true
		return o
	}
	if !isEnvelope {
		o.Kind = OutcomeSuccess
		o.Payload = json.RawMessage(body)
		return o
	}
	if env.IsSuccess != nil && !*env.IsSuccess {
		o.Kind = OutcomeFailure
		return o
	}

	o.Kind = OutcomeSuccess
	switch {
	case present(env.Result):
		o.Payload = env.Result
	case present(env.Data):
		o.Payload = env.Data
	default:
		o.Payload = json.RawMessage(body)
	}
	return o
}

func parseEnvelope(body []byte) (envelope, bool) {
	var env envelope
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env, false
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return env, false
	}
	return env, true
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// serverCode accepts both "POST_404" and 404 style codes.
func serverCode(raw json.RawMessage) string {
	if !present(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func isHTML(header http.Header) bool {
	ct := header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(ct), "text/html")
	}
	return mt == "text/html"
}
