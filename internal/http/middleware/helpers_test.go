package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/support-chat-backend/internal/auth"
)

func init() { gin.SetMode(gin.TestMode) }

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func serve(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Error     string `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var b errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return b
}

// tokenTable authenticates fixed tokens.
type tokenTable map[string]auth.Principal

func (tt tokenTable) Authenticate(raw string) (auth.Principal, error) {
	if p, ok := tt[raw]; ok {
		return p, nil
	}
	return auth.Principal{}, auth.ErrInvalidToken
}

type identityTable map[string]string

func (it identityTable) Verify(raw string) (*auth.IdentityClaims, error) {
	if email, ok := it[raw]; ok {
		return &auth.IdentityClaims{Email: email}, nil
	}
	return nil, errors.New("bad identity token")
}
