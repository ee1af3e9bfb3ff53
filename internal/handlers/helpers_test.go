package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/propdesk/propdesk/internal/database"
	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	cases := map[string]bool{
		"Passw0rd1":    true,
		"short1A":      false,
		"alllower1":    false,
		"NoDigitsHere": false,
	}
	for pw, ok := range cases {
		assert.Equal(t, ok, validatePassword(pw) == "", pw)
	}
}

func TestMergeTags(t *testing.T) {
	got := mergeTags([]string{"vip", "investor"}, []string{" investor ", "", "cash"})
	assert.Equal(t, []string{"vip", "investor", "cash"}, got)
	assert.Equal(t, []string{}, mergeTags(nil, nil))
}

func TestWriteStoreError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeStoreError(rec, "lead", database.ErrNotFound)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"lead not found"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	writeStoreError(rec, "lead", errors.New("disk I/O error"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "12 B", formatBytes(12))
}
