// Package httpx provides HTTP response utilities.
package httpx

import (
	"net/http"

	"github.com/cockroachdb/errors"
)

// ErrorBody is the payload returned for a failed operation.
type ErrorBody struct {
	Error string `json:"error"`
}

// RespondError writes err as {"error": message}. The status stays 200 so callers
// inspect the payload rather than the transport status.
func RespondError(w http.ResponseWriter, err error) {
	JSON(w, http.StatusOK, ErrorBody{Error: Message(err)})
}

// Message returns the text shown to the user for err. A hint attached with
// errors.WithHint takes precedence over the error chain.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		return hints[0]
	}
	return err.Error()
}
