package errors

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkedErrorsMatchSentinels(t *testing.T) {
	err := NewError("plan has no price").
		WithHint("Configure a price for the plan").
		WithReportableDetails(map[string]any{"plan_id": "plan_1"}).
		Mark(ErrConfiguration)

	assert.True(t, IsConfiguration(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatusFromErr(err))
	assert.Equal(t, ErrCodeConfiguration, CodeFromErr(err))
}

func TestWrappedErrorKeepsMark(t *testing.T) {
	base := NewError("invoice not found").Mark(ErrNotFound)
	wrapped := WithError(base).WithMessage("loading renewal invoice").Mark(ErrNotFound)

	assert.True(t, IsNotFound(wrapped))
	assert.Equal(t, http.StatusNotFound, HTTPStatusFromErr(wrapped))
}

func TestUnmarkedErrorDefaultsToInternal(t *testing.T) {
	err := NewError("boom").Error()
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFromErr(err))
	assert.Equal(t, ErrCodeSystemError, CodeFromErr(err))
}
