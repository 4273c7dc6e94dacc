package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sifterhq/sifter/internal/detect"
	"github.com/sifterhq/sifter/internal/store/memory"
)

type stubScorer struct {
	textFn func(ctx context.Context, text string) (float64, error)
	urlFn  func(ctx context.Context, url string) (float64, error)
}

func (s *stubScorer) ScoreText(ctx context.Context, text string) (float64, error) {
	if s.textFn == nil {
		return 0.1, nil
	}
	return s.textFn(ctx, text)
}

func (s *stubScorer) ScoreURL(ctx context.Context, url string) (float64, error) {
	if s.urlFn == nil {
		return 0.9, nil
	}
	return s.urlFn(ctx, url)
}

type testServer struct {
	handler http.Handler
}

func newTestServer(t *testing.T, scorer detect.Scorer) *testServer {
	t.Helper()

	pool := detect.NewPool(4)
	t.Cleanup(pool.Close)

	srv := NewServer(
		memory.NewOrganizationStore(),
		memory.NewUserStore(),
		detect.NewOrchestrator(scorer, pool),
	)

	return &testServer{
		handler: srv.Handler(zerolog.Nop(), []string{"*"}, nil),
	}
}

func (ts *testServer) do(t *testing.T, method, path, apiKey string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(data))
	} else {
		reader = strings.NewReader("")
	}

	r := httptest.NewRequest(method, path, reader)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+apiKey)
	}

	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func (ts *testServer) registerOrg(t *testing.T, email, license string, userLimit int) string {
	t.Helper()

	w, body := ts.do(t, http.MethodPost, "/org/register", "", map[string]any{
		"email": email, "userLimit": userLimit, "licenseType": license,
	})
	require.Equal(t, http.StatusCreated, w.Code, body)
	require.NotEmpty(t, body["id"])

	apiKey, _ := body["apiKey"].(string)
	require.True(t, strings.HasPrefix(apiKey, "org_"), apiKey)
	return apiKey
}

func (ts *testServer) createUser(t *testing.T, orgKey, username string) string {
	t.Helper()

	w, body := ts.do(t, http.MethodPost, "/org/users", orgKey, map[string]any{"username": username})
	require.Equal(t, http.StatusCreated, w.Code, body)

	apiKey, _ := body["apiKey"].(string)
	require.True(t, strings.HasPrefix(apiKey, "usr_"), apiKey)
	return apiKey
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, &stubScorer{})

	w, body := ts.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "running", body["status"])
}

func TestOrgRegister(t *testing.T) {
	ts := newTestServer(t, &stubScorer{})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		ts.registerOrg(t, "dup@example.com", "spamDetection", 5)
		w, _ := ts.do(t, http.MethodPost, "/org/register", "", map[string]any{
			"email": "dup@example.com", "userLimit": 5, "licenseType": "spamDetection",
		})
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid license rejected", func(t *testing.T) {
		w, _ := ts.do(t, http.MethodPost, "/org/register", "", map[string]any{
			"email": "bad@example.com", "userLimit": 5, "licenseType": "everythingDetection",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing email rejected", func(t *testing.T) {
		w, _ := ts.do(t, http.MethodPost, "/org/register", "", map[string]any{
			"userLimit": 5, "licenseType": "spamDetection",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestUserProvisioning(t *testing.T) {
	ts := newTestServer(t, &stubScorer{})
	orgKey := ts.registerOrg(t, "acme@example.com", "spamAndPhishingDetection", 2)

	t.Run("provisioning honors the user limit", func(t *testing.T) {
		ts.createUser(t, orgKey, "alice")
		ts.createUser(t, orgKey, "bob")

		w, _ := ts.do(t, http.MethodPost, "/org/users", orgKey, map[string]any{"username": "carol"})
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("duplicate username conflicts", func(t *testing.T) {
		w, _ := ts.do(t, http.MethodPost, "/org/users", orgKey, map[string]any{"username": "alice"})
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("user credential cannot manage users", func(t *testing.T) {
		ts2 := newTestServer(t, &stubScorer{})
		orgKey2 := ts2.registerOrg(t, "two@example.com", "spamAndPhishingDetection", 5)
		userKey := ts2.createUser(t, orgKey2, "alice")

		w, _ := ts2.do(t, http.MethodPost, "/org/users", userKey, map[string]any{"username": "eve"})
		require.Equal(t, http.StatusForbidden, w.Code)

		w, _ = ts2.do(t, http.MethodGet, "/org/users", userKey, nil)
		require.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestAuthentication(t *testing.T) {
	ts := newTestServer(t, &stubScorer{})

	t.Run("missing credential", func(t *testing.T) {
		w, _ := ts.do(t, http.MethodPost, "/predict/spam", "", map[string]any{"text": "hello"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("unknown credential", func(t *testing.T) {
		w, _ := ts.do(t, http.MethodPost, "/predict/spam", "usr_1111111111111111111111111111111111111111", map[string]any{"text": "hello"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bad prefix", func(t *testing.T) {
		w, _ := ts.do(t, http.MethodPost, "/predict/spam", "tok_1111111111111111111111111111111111111111", map[string]any{"text": "hello"})
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("org credential cannot run detections", func(t *testing.T) {
		orgKey := ts.registerOrg(t, "rbac@example.com", "spamAndPhishingDetection", 5)
		w, _ := ts.do(t, http.MethodPost, "/predict/spam", orgKey, map[string]any{"text": "hello"})
		require.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestLicenseGating(t *testing.T) {
	ts := newTestServer(t, &stubScorer{
		textFn: func(ctx context.Context, text string) (float64, error) { return 0.2, nil },
	})
	orgKey := ts.registerOrg(t, "spamonly@example.com", "spamDetection", 5)
	userKey := ts.createUser(t, orgKey, "alice")

	t.Run("licensed capability allowed", func(t *testing.T) {
		w, _ := ts.do(t, http.MethodPost, "/predict/spam", userKey, map[string]any{"text": "hello there"})
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unlicensed capability denied", func(t *testing.T) {
		w, _ := ts.do(t, http.MethodPost, "/predict/phishing", userKey, map[string]any{"text": "http://example.com"})
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("combined endpoint needs the full license", func(t *testing.T) {
		w, _ := ts.do(t, http.MethodPost, "/predict/spam-phishing", userKey, map[string]any{"text": "hello"})
		require.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestPredictSpamValidation(t *testing.T) {
	ts := newTestServer(t, &stubScorer{})
	orgKey := ts.registerOrg(t, "val@example.com", "spamAndPhishingDetection", 5)
	userKey := ts.createUser(t, orgKey, "alice")

	t.Run("empty text", func(t *testing.T) {
		w, _ := ts.do(t, http.MethodPost, "/predict/spam", userKey, map[string]any{"text": "   "})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("url-only text", func(t *testing.T) {
		w, _ := ts.do(t, http.MethodPost, "/predict/spam", userKey, map[string]any{"text": "http://example.com"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("no urls in phishing input", func(t *testing.T) {
		w, body := ts.do(t, http.MethodPost, "/predict/phishing", userKey, map[string]any{"text": "no links here"})
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "No URLs found in text", body["message"])
	})
}

func TestPredictSpamPhishingEndToEnd(t *testing.T) {
	ts := newTestServer(t, &stubScorer{
		textFn: func(ctx context.Context, text string) (float64, error) { return 0.1, nil },
		urlFn:  func(ctx context.Context, url string) (float64, error) { return 0.9, nil },
	})
	orgKey := ts.registerOrg(t, "e2e@example.com", "spamAndPhishingDetection", 5)
	userKey := ts.createUser(t, orgKey, "alice")

	w, body := ts.do(t, http.MethodPost, "/predict/spam-phishing", userKey, map[string]any{
		"text": "Buy now http://example.com free!!!",
	})
	require.Equal(t, http.StatusOK, w.Code, body)

	require.Equal(t, "Buy now free!!!", body["text"])
	require.Equal(t, false, body["spam"])
	require.Equal(t, 10.0, body["spamProbability"])

	urls, ok := body["urls"].([]any)
	require.True(t, ok)
	require.Len(t, urls, 1)

	entry, ok := urls[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "http://example.com", entry["url"])
	require.Equal(t, true, entry["phishing"])
	require.Equal(t, 90.0, entry["phishingProbability"])

	t.Run("counters reflect the batch", func(t *testing.T) {
		w, body := ts.do(t, http.MethodGet, "/org/users", orgKey, nil)
		require.Equal(t, http.StatusOK, w.Code)

		users, ok := body["users"].([]any)
		require.True(t, ok)
		require.Len(t, users, 1)

		summary, ok := users[0].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "alice", summary["username"])
		require.Equal(t, 1.0, summary["spamRequestCount"])
		require.Equal(t, 0.0, summary["spamPositiveCount"])
		require.Equal(t, 1.0, summary["phishingRequestCount"])
		require.Equal(t, 1.0, summary["phishingPositiveCount"])
		require.Equal(t, 0.0, summary["spamPercent"])
		require.Equal(t, 100.0, summary["phishingPercent"])
	})
}

func TestPredictPhishingPartialFailure(t *testing.T) {
	failing := "http://broken.example.com"
	ts := newTestServer(t, &stubScorer{
		urlFn: func(ctx context.Context, url string) (float64, error) {
			if url == failing {
				return 0, errors.New("feature extraction failed")
			}
			return 0.8, nil
		},
	})
	orgKey := ts.registerOrg(t, "partial@example.com", "phishingDetection", 5)
	userKey := ts.createUser(t, orgKey, "alice")

	text := fmt.Sprintf("check http://ok.example.com and %s and http://fine.example.com", failing)
	w, body := ts.do(t, http.MethodPost, "/predict/phishing", userKey, map[string]any{"text": text})
	require.Equal(t, http.StatusOK, w.Code, body)

	urls, ok := body["urls"].([]any)
	require.True(t, ok)
	require.Len(t, urls, 3)

	var failures int
	for _, raw := range urls {
		entry := raw.(map[string]any)
		if msg, ok := entry["error"]; ok {
			failures++
			require.Equal(t, failing, entry["url"])
			require.Contains(t, msg, "feature extraction failed")
			require.NotContains(t, entry, "phishing")
		} else {
			require.Equal(t, true, entry["phishing"])
			require.Equal(t, 80.0, entry["phishingProbability"])
		}
	}
	require.Equal(t, 1, failures)
}

func TestPredictSpamScoringFailure(t *testing.T) {
	ts := newTestServer(t, &stubScorer{
		textFn: func(ctx context.Context, text string) (float64, error) {
			return 0, errors.New("vectorizer exploded")
		},
	})
	orgKey := ts.registerOrg(t, "fail@example.com", "spamDetection", 5)
	userKey := ts.createUser(t, orgKey, "alice")

	w, body := ts.do(t, http.MethodPost, "/predict/spam", userKey, map[string]any{"text": "hello"})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "internal server error", body["detail"])
}
