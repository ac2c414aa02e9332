package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"authgate/internal/auth"
)

func TestWriteAppErrorLinkRaceIsConflict(t *testing.T) {
	rec := httptest.NewRecorder()
	writeAppError(rec, "oauth callback", fmt.Errorf("create user: %w", auth.ErrSocialLinkExists))
	require.Equal(t, http.StatusConflict, rec.Code)
}
