package errorbank

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  *AppError
		http int
		grpc codes.Code
	}{
		{BadRequest("bad"), http.StatusBadRequest, codes.InvalidArgument},
		{Unauthorized("sig"), http.StatusUnauthorized, codes.Unauthenticated},
		{Conflict("dup"), http.StatusConflict, codes.AlreadyExists},
		{NotFound("missing"), http.StatusNotFound, codes.NotFound},
		{Unprocessable("nope"), http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{Unavailable("gateway down"), http.StatusServiceUnavailable, codes.Unavailable},
		{Internal("boom"), http.StatusInternalServerError, codes.Internal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.http, tc.err.StatusCode(), tc.err.Kind())
		assert.Equal(t, tc.grpc, tc.err.GRPCCode(), tc.err.Kind())
	}
}

func TestFromWrapsPlainErrors(t *testing.T) {
	cause := errors.New("db closed")
	appErr := From(cause)
	assert.Equal(t, KindInternal, appErr.Kind())
	assert.ErrorIs(t, appErr, cause)

	wrapped := fmt.Errorf("handler: %w", NotFound("order not found"))
	assert.Equal(t, KindNotFound, From(wrapped).Kind())
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.False(t, IsKind(cause, KindNotFound))
	assert.Nil(t, From(nil))
	assert.Equal(t, Kind(""), KindOf(cause))
}

func TestUnknownKindAndTemporary(t *testing.T) {
	odd := New(Kind("teapot"), "")
	assert.Equal(t, "teapot", odd.Message())
	assert.Equal(t, http.StatusInternalServerError, odd.StatusCode())
	assert.Equal(t, codes.Internal, odd.GRPCCode())

	assert.True(t, Unavailable("gateway down").Temporary())
	assert.False(t, NotFound("missing").Temporary())

	var nilErr *AppError
	assert.Equal(t, http.StatusInternalServerError, nilErr.StatusCode())
}
