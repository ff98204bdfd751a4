package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"channel-quiz-service/internal/app"
	"channel-quiz-service/internal/infra/fetch"
	"channel-quiz-service/internal/infra/memory"
	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, admin bool) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "u1",
		"admin": admin,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestImportHandler(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Question,A,B,Answer\nSky color?,Blue,Green,A\nBad row,,,\n"))
	}))
	defer files.Close()

	banks := app.NewBankRegistry(memory.NewBankStore())
	importer := app.NewImporter(app.CallerFlag, fetch.NewHTTPFetcher(time.Second, 0), banks)
	handler := NewImportHandler(importer, testSecret)

	post := func(token string, body any) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader(raw))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}
	body := map[string]string{"group": "g", "url": files.URL + "/uploads/colors.csv"}

	if rec := post("", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := post(signToken(t, "wrong", true), body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}
	if rec := post(signToken(t, testSecret, false), body); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	rec := post(signToken(t, testSecret, true), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res app.ImportResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Name != "colors" || res.Kept != 1 || res.Dropped != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := banks.Get("web:g", "colors"); !ok {
		t.Fatalf("expected bank stored")
	}
}

func TestImportHandlerMapsParseFailures(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("foo,bar\n1,2\n"))
	}))
	defer files.Close()

	banks := app.NewBankRegistry(memory.NewBankStore())
	handler := NewImportHandler(app.NewImporter(app.CallerFlag, fetch.NewHTTPFetcher(time.Second, 0), banks), testSecret)

	raw, _ := json.Marshal(map[string]string{"group": "g", "url": files.URL + "/x.csv"})
	req := httptest.NewRequest(http.MethodPost, "/import", bytes.NewReader(raw))
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, true))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}
