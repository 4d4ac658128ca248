package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gravitrone/kgeditor/internal/api"
)

func TestItemErrorClassification(t *testing.T) {
	cases := []struct {
		code int
		kind ErrorKind
	}{
		{404, ErrorNotFound},
		{403, ErrorNotFound},
		{410, ErrorNotFound},
		{0, ErrorNotFound},
		{500, ErrorTransport},
		{429, ErrorTransport},
		{400, ErrorUnexpected},
	}
	for _, tc := range cases {
		err := itemError(&api.ItemError{Code: tc.code, Message: "server says no"})
		assert.Equal(t, tc.kind, err.Kind, "code %d", tc.code)
	}
}

func TestItemErrorMessages(t *testing.T) {
	assert.Equal(t,
		"Instance not found - it either could have been removed or it's not a recognized resource [error 404].",
		itemError(&api.ItemError{Code: 404}).Error())
	assert.Equal(t,
		"Instance not found - it either could have been removed or it's not a recognized resource.",
		itemError(&api.ItemError{}).Error())
	assert.Equal(t, "server says no", itemError(&api.ItemError{Code: 500, Message: "server says no"}).Error())
}

func TestRequestErrorKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := requestError(cause)
	assert.Equal(t, ErrorTransport, err.Kind)
	assert.True(t, err.Retryable())
	assert.ErrorIs(t, err, cause)

	notFound := requestError(&api.Error{StatusCode: 404})
	assert.Equal(t, ErrorNotFound, notFound.Kind)
	assert.Equal(t, 404, notFound.Code)
	assert.False(t, notFound.Retryable())

	var nilErr *FetchError
	assert.False(t, nilErr.Retryable())
}

func TestKindAndStatusStrings(t *testing.T) {
	assert.Equal(t, "not_found", ErrorNotFound.String())
	assert.Equal(t, "transport", ErrorTransport.String())
	assert.Equal(t, "unexpected", ErrorUnexpected.String())
	assert.Equal(t, "fetching", StatusFetching.String())
	assert.Equal(t, "errored", StatusErrored.String())
}
