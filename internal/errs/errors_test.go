package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("send message: %w", Forbidden("not a chat member"))

	assert.Equal(t, KindPermissionDenied, KindOf(err))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(err))
}

func TestUnclassifiedErrorsAreInternal(t *testing.T) {
	err := errors.New("pq: connection refused")

	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))

	msg, fields := Public(err)
	assert.Equal(t, "internal server error", msg)
	assert.Nil(t, fields)
}

func TestPublicHidesInternalCause(t *testing.T) {
	err := Internal("load chat", errors.New("dial tcp 10.0.0.5:5432: timeout"))

	msg, _ := Public(err)
	assert.Equal(t, "internal server error", msg)
	assert.Contains(t, err.Error(), "dial tcp")
}

func TestPublicKeepsFieldDetails(t *testing.T) {
	err := InvalidFields("Validation failed", []FieldError{{Field: "chatId", Message: "chatId must be a valid UUID"}})

	msg, fields := Public(err)
	assert.Equal(t, "Validation failed", msg)
	assert.Len(t, fields, 1)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestHTTPStatusPerKind(t *testing.T) {
	cases := map[error]int{
		Unauthenticated("x"): http.StatusUnauthorized,
		Invalid("x"):         http.StatusBadRequest,
		Conflict("x"):        http.StatusConflict,
		NotFound("x"):        http.StatusNotFound,
	}
	for err, status := range cases {
		assert.Equal(t, status, HTTPStatus(err), err.Error())
	}
}
