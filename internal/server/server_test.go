package server

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/docreview/internal/api/generated"
	"github.com/bigkaa/docreview/internal/api/middleware"
)

const (
	testKeyID  = "server-test-key"
	testIssuer = "https://idp.test/realms/school"
)

// stubHandler отвечает 200 на liveness и на чтение заявки.
type stubHandler struct {
	generated.Unimplemented
}

func (stubHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (stubHandler) GetSubmission(w http.ResponseWriter, r *http.Request, _ generated.SubmissionId) {
	if middleware.SubjectFromContext(r.Context()) == "" {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestAuth(t *testing.T) (*middleware.JWTAuth, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	jwks, _ := json.Marshal(map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"kid": testKeyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	})
	kf, err := keyfunc.NewJWKSetJSON(jwks)
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	return middleware.NewJWTAuthWithKeyfunc(kf, testIssuer, []string{"review-admins"}, []string{"students"}, testLogger()), key
}

func signToken(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":    "student-1",
		"iss":    testIssuer,
		"groups": []string{"/students"},
		"exp":    jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	token.Header["kid"] = testKeyID
	s, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRouter_AuthExclusions(t *testing.T) {
	auth, key := newTestAuth(t)
	router := NewRouter(testLogger(), stubHandler{}, auth)
	submissionPath := "/api/v1/submissions/5f0c8a52-3c1e-4a8b-9d55-2a1f7e0c9b11"

	tests := []struct {
		name       string
		path       string
		token      string
		wantStatus int
	}{
		{"health без токена", "/health/live", "", http.StatusOK},
		{"metrics без токена", "/metrics", "", http.StatusNotImplemented},
		{"API без токена", submissionPath, "", http.StatusUnauthorized},
		{"API с токеном", submissionPath, signToken(t, key), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("Статус = %d, ожидался %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

// TestRouter_ParamErrorFormat — ошибки разбора параметров в формате API.
func TestRouter_ParamErrorFormat(t *testing.T) {
	router := NewRouter(testLogger(), stubHandler{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Статус = %d, ожидался 400", rec.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Ответ не разобран: %v", err)
	}
	if body.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("Код = %s, ожидался VALIDATION_ERROR", body.Error.Code)
	}
}
