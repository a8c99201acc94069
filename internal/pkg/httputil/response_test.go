package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var env ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("body is not an error envelope: %v", err)
	}
	return env
}

func TestWorkspaceRequiredEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	WorkspaceRequired(rec)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Code != CodeWorkspaceRequired {
		t.Errorf("code = %q, want %q", env.Code, CodeWorkspaceRequired)
	}
	if env.Error != "workspace id required" {
		t.Errorf("error = %q", env.Error)
	}
}

func TestInternalErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	InternalError(rec, errors.New("pq: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Error("internal error detail leaked to the client")
	}
	if env := decodeEnvelope(t, rec); env.Code != CodeInternal {
		t.Errorf("code = %q, want %q", env.Code, CodeInternal)
	}
}

func TestDecodeEmptyBodyIsDefaults(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/operator/run", nil)

	var dst struct {
		MaxSignals int `json:"max_signals"`
	}
	if !Decode(rec, req, &dst) {
		t.Fatal("empty body should decode as all-defaults")
	}
	if dst.MaxSignals != 0 {
		t.Errorf("max_signals = %d, want 0", dst.MaxSignals)
	}
}

func TestDecodeBadJSONWrites400(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/operator/run", strings.NewReader("{not json"))

	var dst struct{}
	if Decode(rec, req, &dst) {
		t.Fatal("malformed body should not decode")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Code != CodeBadRequest {
		t.Errorf("code = %q, want %q", env.Code, CodeBadRequest)
	}
}
