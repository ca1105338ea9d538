package service

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/curatelabs/tcr-middleware/pkg/voting"
)

func newTestServer(f *fixture) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, f.svc, f.polls, zap.NewNop())
	return r
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response JSON %q: %v", rec.Body.String(), err)
	}
}

func TestHTTPApplyAndGetListing(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 100, 50)
	handler := newTestServer(f)

	rec := doJSON(t, handler, http.MethodPost, "/listings",
		`{"name":"example.com","deposit":"50","applicant":"alice"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var created ListingResponse
	decodeBody(t, rec, &created)
	if created.Owner != "alice" || created.Deposit != "50" {
		t.Fatalf("unexpected listing response: %+v", created)
	}
	if created.Whitelisted {
		t.Fatal("fresh application must not be whitelisted")
	}

	rec = doJSON(t, handler, http.MethodGet, "/listings/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var got ListingResponse
	decodeBody(t, rec, &got)
	if got.ID != created.ID || got.Name != "example.com" {
		t.Fatalf("unexpected listing response: %+v", got)
	}
}

func TestHTTPApplyValidation(t *testing.T) {
	f := newFixture(t)
	handler := newTestServer(f)

	rec := doJSON(t, handler, http.MethodPost, "/listings", "{invalid")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/listings", `{"deposit":"50"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/listings",
		`{"name":"example.com","deposit":"not-a-number","applicant":"alice"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHTTPApplyWithoutFundsReturnsPaymentRequired(t *testing.T) {
	f := newFixture(t)
	handler := newTestServer(f)

	rec := doJSON(t, handler, http.MethodPost, "/listings",
		`{"name":"example.com","deposit":"50","applicant":"alice"}`)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected status %d, got %d: %s", http.StatusPaymentRequired, rec.Code, rec.Body.String())
	}
}

func TestHTTPGetListingNotFound(t *testing.T) {
	f := newFixture(t)
	handler := newTestServer(f)

	rec := doJSON(t, handler, http.MethodGet, "/listings/0xdeadbeef", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestHTTPChallengeLifecycle(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 100, 50)
	f.fund("bob", 100, 50)
	f.ledger.Mint("carol", decimal.NewFromInt(60))
	handler := newTestServer(f)

	rec := doJSON(t, handler, http.MethodPost, "/listings",
		`{"name":"example.com","deposit":"50","applicant":"alice"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("apply failed: %d %s", rec.Code, rec.Body.String())
	}
	var listing ListingResponse
	decodeBody(t, rec, &listing)

	// Let the application window elapse, then whitelist via status update.
	f.clk.Advance(601 * time.Second)
	rec = doJSON(t, handler, http.MethodPost, "/listings/"+listing.ID+"/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status update failed: %d %s", rec.Code, rec.Body.String())
	}
	var status map[string]bool
	decodeBody(t, rec, &status)
	if !status["whitelisted"] {
		t.Fatal("listing should be whitelisted after the application window")
	}

	rec = doJSON(t, handler, http.MethodPost, "/listings/"+listing.ID+"/challenges",
		`{"challenger":"bob"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("challenge failed: %d %s", rec.Code, rec.Body.String())
	}
	var challenged map[string]string
	decodeBody(t, rec, &challenged)
	challengeID := challenged["challenge_id"]
	if challengeID == "" {
		t.Fatal("missing challenge_id in response")
	}

	// A second challenge conflicts.
	rec = doJSON(t, handler, http.MethodPost, "/listings/"+listing.ID+"/challenges",
		`{"challenger":"carol"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, rec.Code)
	}

	// carol votes to keep the listing via the poll endpoints.
	pollID := f.challengeOf(t, challengeID).PollID
	salt := []byte("carol-salt")
	hash := voting.SecretHash(voting.ChoiceFor, salt)
	commitBody := fmt.Sprintf(`{"voter":"carol","secret_hash":"%s","tokens":"60"}`,
		hex.EncodeToString(hash[:]))
	rec = doJSON(t, handler, http.MethodPost, "/polls/"+pollID+"/commits", commitBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("commit failed: %d %s", rec.Code, rec.Body.String())
	}

	f.clk.Advance(101 * time.Second)
	revealBody := fmt.Sprintf(`{"voter":"carol","choice":1,"salt":"%s"}`,
		hex.EncodeToString(salt))
	rec = doJSON(t, handler, http.MethodPost, "/polls/"+pollID+"/reveals", revealBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("reveal failed: %d %s", rec.Code, rec.Body.String())
	}

	// Revealing twice conflicts.
	rec = doJSON(t, handler, http.MethodPost, "/polls/"+pollID+"/reveals", revealBody)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d on double reveal, got %d", http.StatusConflict, rec.Code)
	}

	f.clk.Advance(100 * time.Second)
	rec = doJSON(t, handler, http.MethodPost, "/listings/"+listing.ID+"/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status update failed: %d %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &status)
	if !status["whitelisted"] {
		t.Fatal("listing should survive a failed challenge")
	}

	// The winning voter claims their reward over HTTP.
	rec = doJSON(t, handler, http.MethodPost, "/challenges/"+challengeID+"/claims",
		`{"voter":"carol"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim failed: %d %s", rec.Code, rec.Body.String())
	}
	var claim map[string]string
	decodeBody(t, rec, &claim)
	if claim["amount"] != "20" {
		t.Fatalf("claim amount: got %q want %q", claim["amount"], "20")
	}

	rec = doJSON(t, handler, http.MethodPost, "/challenges/"+challengeID+"/claims",
		`{"voter":"carol"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d on repeat claim, got %d", http.StatusConflict, rec.Code)
	}
}

func TestHTTPCommitRejectsMalformedHash(t *testing.T) {
	f := newFixture(t)
	handler := newTestServer(f)

	rec := doJSON(t, handler, http.MethodPost, "/polls/some-poll/commits",
		`{"voter":"carol","secret_hash":"zzzz","tokens":"10"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestHTTPDepositWithdrawExit(t *testing.T) {
	f := newFixture(t)
	f.fund("alice", 100, 80)
	handler := newTestServer(f)

	rec := doJSON(t, handler, http.MethodPost, "/listings",
		`{"name":"example.com","deposit":"50","applicant":"alice"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("apply failed: %d %s", rec.Code, rec.Body.String())
	}
	var listing ListingResponse
	decodeBody(t, rec, &listing)

	f.clk.Advance(601 * time.Second)
	doJSON(t, handler, http.MethodPost, "/listings/"+listing.ID+"/status", "")

	rec = doJSON(t, handler, http.MethodPost, "/listings/"+listing.ID+"/deposit",
		`{"owner":"alice","amount":"30"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit failed: %d %s", rec.Code, rec.Body.String())
	}

	// Withdrawing below the minimum is rejected.
	rec = doJSON(t, handler, http.MethodPost, "/listings/"+listing.ID+"/withdraw",
		`{"owner":"alice","amount":"75"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/listings/"+listing.ID+"/withdraw",
		`{"owner":"alice","amount":"30"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw failed: %d %s", rec.Code, rec.Body.String())
	}

	// Only the owner may exit.
	rec = doJSON(t, handler, http.MethodPost, "/listings/"+listing.ID+"/exit",
		`{"owner":"mallory"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/listings/"+listing.ID+"/exit",
		`{"owner":"alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("exit failed: %d %s", rec.Code, rec.Body.String())
	}
	f.assertBalance(t, "alice", 100)
	f.assertBalance(t, escrowAccount, 0)
}
