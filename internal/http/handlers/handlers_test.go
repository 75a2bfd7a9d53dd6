package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mail-dispatch/internal/auth"
	"github.com/tbourn/go-mail-dispatch/internal/domain"
	"github.com/tbourn/go-mail-dispatch/internal/http/middleware"
	"github.com/tbourn/go-mail-dispatch/internal/services"
)

// ---------- stubs ----------

type stubDispatcher struct {
	calls int
	got   services.DispatchRequest
	res   *services.DispatchResult
	err   error
}

func (s *stubDispatcher) Dispatch(ctx context.Context, req services.DispatchRequest) (*services.DispatchResult, error) {
	s.calls++
	s.got = req
	return s.res, s.err
}

type stubHistory struct {
	user      *domain.User
	lookupErr error
	recs      []domain.SendRecord
	total     int64
	listErr   error
	statsN    int64
	statsTS   *time.Time
	statsErr  error

	gotPage, gotPageSize int
	listCalls            int
}

func (s *stubHistory) Lookup(ctx context.Context, email string) (*domain.User, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return s.user, nil
}

func (s *stubHistory) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.SendRecord, int64, error) {
	s.listCalls++
	s.gotPage, s.gotPageSize = page, pageSize
	return s.recs, s.total, s.listErr
}

func (s *stubHistory) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return s.statsN, s.statsTS, s.statsErr
}

type stubQuota struct {
	gotEmail string
	sum      *services.QuotaSummary
	err      error
}

func (s *stubQuota) Summary(ctx context.Context, email string) (*services.QuotaSummary, error) {
	s.gotEmail = email
	return s.sum, s.err
}

type stubReplays struct {
	stored   map[string]string
	records  map[string]*domain.SendRecord
	held     map[string]bool
	released []string

	reserveErr  error
	completeErr error
}

func newStubReplays() *stubReplays {
	return &stubReplays{stored: map[string]string{}, records: map[string]*domain.SendRecord{}, held: map[string]bool{}}
}

func (s *stubReplays) Replay(ctx context.Context, owner, scope, key string) (*domain.SendRecord, bool) {
	id, ok := s.stored[owner+"|"+scope+"|"+key]
	if !ok {
		return nil, false
	}
	rec, ok := s.records[id]
	return rec, ok
}

func (s *stubReplays) Reserve(ctx context.Context, owner, scope, key string) (bool, error) {
	if s.reserveErr != nil {
		return false, s.reserveErr
	}
	k := owner + "|" + scope + "|" + key
	if s.held[k] {
		return false, nil
	}
	if _, done := s.stored[k]; done {
		return false, nil
	}
	s.held[k] = true
	return true, nil
}

func (s *stubReplays) Complete(ctx context.Context, owner, scope, key, recordID string) error {
	if s.completeErr != nil {
		return s.completeErr
	}
	k := owner + "|" + scope + "|" + key
	delete(s.held, k)
	s.stored[k] = recordID
	return nil
}

func (s *stubReplays) Release(ctx context.Context, owner, scope, key string) error {
	k := owner + "|" + scope + "|" + key
	delete(s.held, k)
	s.released = append(s.released, k)
	return nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

// ---------- helpers ----------

func newRouter(h *Handlers, ident *auth.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	if ident != nil {
		r.Use(func(c *gin.Context) {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), *ident))
			c.Next()
		})
	}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.POST("/send", h.Send)
	r.GET("/history", h.History)
	r.GET("/quota", h.Quota)
	r.GET("/health", h.Health)
	r.GET("/readyz", h.Ready)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatalf("encode: %v", err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	return er
}

func validBody() SendRequest {
	return SendRequest{
		FromName:    "Nova",
		SenderEmail: "hello",
		Recipient:   "bob@example.com",
		Subject:     "Hi",
		Content:     "<p>hi</p>",
		UserEmail:   "claimed@x.com",
	}
}

// ---------- POST /send ----------

func TestSend_Success_DevModeUsesBodyEmail(t *testing.T) {
	d := &stubDispatcher{res: &services.DispatchResult{ProviderMessageID: "re_1", RecordID: "r1", DailyCount: 3, DailyLimit: 10}}
	h := New(d, &stubHistory{}, &stubQuota{}, Options{TrustRequestEmail: true, DailyLimit: 10})
	w := doJSON(t, newRouter(h, nil), http.MethodPost, "/send", validBody(), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp SendResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Success || resp.EmailID != "re_1" || resp.RecordID != "r1" || resp.DailyCount != 3 || resp.DailyLimit != 10 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if d.got.RequesterEmail != "claimed@x.com" || d.got.SenderLocalPart != "hello" || d.got.Content != "<p>hi</p>" {
		t.Fatalf("dispatch request: %+v", d.got)
	}
}

func TestSend_VerifiedIdentityOverridesBodyEmail(t *testing.T) {
	d := &stubDispatcher{res: &services.DispatchResult{ProviderMessageID: "re_1", RecordID: "r1"}}
	h := New(d, &stubHistory{}, &stubQuota{}, Options{TrustRequestEmail: true})
	ident := &auth.Identity{Email: "real@x.com", Name: "Real", Picture: "p", Verified: true}
	w := doJSON(t, newRouter(h, ident), http.MethodPost, "/send", validBody(), nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if d.got.RequesterEmail != "real@x.com" || d.got.RequesterName != "Real" || d.got.RequesterPicture != "p" {
		t.Fatalf("identity not taken from token: %+v", d.got)
	}
}

func TestSend_NoTrust_IgnoresBodyEmail(t *testing.T) {
	d := &stubDispatcher{err: services.ErrUnauthenticated}
	h := New(d, &stubHistory{}, &stubQuota{}, Options{})
	w := doJSON(t, newRouter(h, nil), http.MethodPost, "/send", validBody(), nil)

	if w.Code != http.StatusUnauthorized || d.got.RequesterEmail != "" {
		t.Fatalf("status=%d requester=%q", w.Code, d.got.RequesterEmail)
	}
	if er := decodeError(t, w); er.Code != ErrCodeUnauthorized || er.Success {
		t.Fatalf("unexpected body: %+v", er)
	}
}

func TestSend_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{services.ErrMissingFields, 400, ErrCodeBadRequest, msgMissingFields},
		{services.ErrInvalidRecipient, 400, ErrCodeBadRequest, msgInvalidRecipient},
		{services.ErrUnauthenticated, 401, ErrCodeUnauthorized, msgUnauthenticated},
		{fmt.Errorf("%w: limit is 10 per day", services.ErrQuotaExceeded), 429, ErrCodeQuotaExceeded, "Daily limit of 10 emails reached, please try again tomorrow"},
		{fmt.Errorf("%w: resend: status 500", services.ErrProviderFailure), 500, ErrCodeSendFailed, msgSendFailed},
		{fmt.Errorf("%w: disk full", services.ErrStorage), 500, ErrCodeInternal, msgServerError},
	}
	for _, tc := range cases {
		h := New(&stubDispatcher{err: tc.err}, &stubHistory{}, &stubQuota{}, Options{TrustRequestEmail: true, DailyLimit: 10})
		w := doJSON(t, newRouter(h, nil), http.MethodPost, "/send", validBody(), nil)
		if w.Code != tc.status {
			t.Fatalf("%v: status=%d want %d", tc.err, w.Code, tc.status)
		}
		er := decodeError(t, w)
		if er.Code != tc.code || er.Message != tc.msg || er.RequestID == "" {
			t.Fatalf("%v: body=%+v", tc.err, er)
		}
	}
}

func TestSend_LocalizedRejection(t *testing.T) {
	h := New(&stubDispatcher{err: services.ErrInvalidRecipient}, &stubHistory{}, &stubQuota{}, Options{TrustRequestEmail: true})
	w := doJSON(t, newRouter(h, nil), http.MethodPost, "/send", validBody(), map[string]string{"Accept-Language": "zh-TW"})
	if er := decodeError(t, w); er.Message != "收件人郵箱格式不正確" {
		t.Fatalf("message=%q", er.Message)
	}
}

func TestSend_MalformedJSON(t *testing.T) {
	d := &stubDispatcher{}
	h := New(d, &stubHistory{}, &stubQuota{}, Options{TrustRequestEmail: true})
	w := doJSON(t, newRouter(h, nil), http.MethodPost, "/send", `{"fromName":`, nil)
	if w.Code != http.StatusBadRequest || d.calls != 0 {
		t.Fatalf("status=%d calls=%d", w.Code, d.calls)
	}
}

func TestSend_IdempotentReplay(t *testing.T) {
	d := &stubDispatcher{res: &services.DispatchResult{ProviderMessageID: "re_1", RecordID: "r1", DailyCount: 1, DailyLimit: 10}}
	replays := newStubReplays()
	pid := "re_1"
	replays.records["r1"] = &domain.SendRecord{ID: "r1", ProviderMessageID: &pid, Status: domain.StatusSent}
	q := &stubQuota{sum: &services.QuotaSummary{Count: 1, Limit: 10}}
	h := New(d, &stubHistory{}, q, Options{TrustRequestEmail: true, Replays: replays, DailyLimit: 10})
	r := newRouter(h, nil)
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "key-123"}

	first := doJSON(t, r, http.MethodPost, "/send", validBody(), hdr)
	second := doJSON(t, r, http.MethodPost, "/send", validBody(), hdr)

	if first.Code != 200 || second.Code != 200 {
		t.Fatalf("status %d/%d", first.Code, second.Code)
	}
	if d.calls != 1 {
		t.Fatalf("replay must not dispatch again, calls=%d", d.calls)
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("missing replay header")
	}
	var resp SendResponse
	_ = json.Unmarshal(second.Body.Bytes(), &resp)
	if resp.RecordID != "r1" || resp.EmailID != "re_1" || resp.DailyCount != 1 || resp.DailyLimit != 10 {
		t.Fatalf("replayed response: %+v", resp)
	}
	if q.gotEmail != "claimed@x.com" {
		t.Fatalf("replay summary for %q", q.gotEmail)
	}
}

func TestSend_CompleteFailureIsNotFatal(t *testing.T) {
	d := &stubDispatcher{res: &services.DispatchResult{ProviderMessageID: "re_1", RecordID: "r1"}}
	replays := newStubReplays()
	replays.completeErr = errors.New("db down")
	h := New(d, &stubHistory{}, &stubQuota{}, Options{TrustRequestEmail: true, Replays: replays})
	w := doJSON(t, newRouter(h, nil), http.MethodPost, "/send", validBody(), map[string]string{middleware.HeaderIdempotencyKey: "k"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestSend_ReserveFailureSendsWithoutKey(t *testing.T) {
	d := &stubDispatcher{res: &services.DispatchResult{ProviderMessageID: "re_1", RecordID: "r1"}}
	replays := newStubReplays()
	replays.reserveErr = errors.New("db down")
	h := New(d, &stubHistory{}, &stubQuota{}, Options{TrustRequestEmail: true, Replays: replays})
	w := doJSON(t, newRouter(h, nil), http.MethodPost, "/send", validBody(), map[string]string{middleware.HeaderIdempotencyKey: "k"})
	if w.Code != http.StatusOK || d.calls != 1 {
		t.Fatalf("status=%d calls=%d", w.Code, d.calls)
	}
	if len(replays.stored) != 0 {
		t.Fatalf("unreserved key must not be completed: %v", replays.stored)
	}
}

func TestSend_KeyInFlightConflicts(t *testing.T) {
	d := &stubDispatcher{res: &services.DispatchResult{ProviderMessageID: "re_1", RecordID: "r1"}}
	replays := newStubReplays()
	replays.held["claimed@x.com|send|k"] = true
	h := New(d, &stubHistory{}, &stubQuota{}, Options{TrustRequestEmail: true, Replays: replays})
	w := doJSON(t, newRouter(h, nil), http.MethodPost, "/send", validBody(), map[string]string{middleware.HeaderIdempotencyKey: "k"})
	if w.Code != http.StatusConflict || d.calls != 0 {
		t.Fatalf("status=%d calls=%d", w.Code, d.calls)
	}
	if er := decodeError(t, w); er.Code != ErrCodeIdempotencyInUse {
		t.Fatalf("code=%q", er.Code)
	}
}

func TestSend_FailedDispatchReleasesKey(t *testing.T) {
	d := &stubDispatcher{err: fmt.Errorf("%w: boom", services.ErrProviderFailure)}
	replays := newStubReplays()
	h := New(d, &stubHistory{}, &stubQuota{}, Options{TrustRequestEmail: true, Replays: replays})
	r := newRouter(h, nil)
	hdr := map[string]string{middleware.HeaderIdempotencyKey: "k"}

	if w := doJSON(t, r, http.MethodPost, "/send", validBody(), hdr); w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	if len(replays.released) != 1 || replays.held["claimed@x.com|send|k"] {
		t.Fatalf("reservation not released: released=%v held=%v", replays.released, replays.held)
	}

	d.err, d.res = nil, &services.DispatchResult{ProviderMessageID: "re_2", RecordID: "r2"}
	if w := doJSON(t, r, http.MethodPost, "/send", validBody(), hdr); w.Code != http.StatusOK || d.calls != 2 {
		t.Fatalf("retry status=%d calls=%d", w.Code, d.calls)
	}
	if replays.stored["claimed@x.com|send|k"] != "r2" {
		t.Fatalf("stored=%v", replays.stored)
	}
}

// ---------- GET /history ----------

func TestHistory_Unauthenticated(t *testing.T) {
	h := New(&stubDispatcher{}, &stubHistory{}, &stubQuota{}, Options{})
	w := doJSON(t, newRouter(h, nil), http.MethodGet, "/history?email=a@x.com", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
	h = New(&stubDispatcher{}, &stubHistory{}, &stubQuota{}, Options{TrustRequestEmail: true})
	w = doJSON(t, newRouter(h, nil), http.MethodGet, "/history", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing email: status=%d", w.Code)
	}
}

func TestHistory_UnknownUserAndStorageError(t *testing.T) {
	h := New(&stubDispatcher{}, &stubHistory{lookupErr: services.ErrUserNotFound}, &stubQuota{}, Options{TrustRequestEmail: true})
	w := doJSON(t, newRouter(h, nil), http.MethodGet, "/history?email=a@x.com", nil, nil)
	if w.Code != http.StatusNotFound || decodeError(t, w).Code != ErrCodeNotFound {
		t.Fatalf("status=%d", w.Code)
	}

	hist := &stubHistory{user: &domain.User{ID: "u1"}, listErr: fmt.Errorf("%w: boom", services.ErrStorage)}
	h = New(&stubDispatcher{}, hist, &stubQuota{}, Options{TrustRequestEmail: true})
	w = doJSON(t, newRouter(h, nil), http.MethodGet, "/history?email=a@x.com", nil, nil)
	if w.Code != http.StatusInternalServerError || decodeError(t, w).Code != ErrCodeListFailed {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestHistory_ListsRecordsWithOriginalFieldNames(t *testing.T) {
	pid := "re_9"
	at := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	hist := &stubHistory{
		user: &domain.User{ID: "u1", Email: "a@x.com"},
		recs: []domain.SendRecord{
			{ID: "r2", Subject: "s2", Recipient: "b@y.com", FromName: "N", SenderLocalPart: "hello", Content: "<b>2</b>", Status: domain.StatusSent, ProviderMessageID: &pid, SentAt: at, CreatedAt: at},
			{ID: "r1", Subject: "s1", Recipient: "b@y.com", FromName: "N", SenderLocalPart: "hello", Content: "<b>1</b>", Status: domain.StatusFailed, SentAt: at, CreatedAt: at},
		},
		total: 2,
	}
	h := New(&stubDispatcher{}, hist, &stubQuota{}, Options{TrustRequestEmail: true})
	w := doJSON(t, newRouter(h, nil), http.MethodGet, "/history?email=a@x.com", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}

	var raw map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &raw)
	if raw["success"] != true || raw["totalCount"].(float64) != 2 {
		t.Fatalf("unexpected envelope: %v", raw)
	}
	if _, present := raw["pagination"]; present {
		t.Fatalf("pagination should be omitted without page_size")
	}
	emails := raw["emails"].([]any)
	first := emails[0].(map[string]any)
	for _, k := range []string{"id", "subject", "recipient", "fromName", "senderEmail", "content", "status", "sentAt", "createdAt", "emailId"} {
		if _, ok := first[k]; !ok {
			t.Fatalf("missing field %q in %v", k, first)
		}
	}
	if first["emailId"] != "re_9" || first["senderEmail"] != "hello" {
		t.Fatalf("record fields: %v", first)
	}
	if second := emails[1].(map[string]any); second["emailId"] != nil || second["status"] != "failed" {
		t.Fatalf("failed record: %v", second)
	}
	if hist.gotPageSize != 0 {
		t.Fatalf("expected unpaged listing, got page_size=%d", hist.gotPageSize)
	}
}

func TestHistory_PaginationAndETag(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	hist := &stubHistory{
		user:    &domain.User{ID: "u1"},
		recs:    []domain.SendRecord{{ID: "r3"}, {ID: "r2"}},
		total:   5,
		statsN:  5,
		statsTS: &ts,
	}
	h := New(&stubDispatcher{}, hist, &stubQuota{}, Options{TrustRequestEmail: true})
	r := newRouter(h, nil)

	w := doJSON(t, r, http.MethodGet, "/history?email=a@x.com&page=2&page_size=2", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp HistoryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Pagination == nil || resp.Pagination.Page != 2 || resp.Pagination.TotalPages != 3 || !resp.Pagination.HasNext {
		t.Fatalf("pagination: %+v", resp.Pagination)
	}
	if hist.gotPage != 2 || hist.gotPageSize != 2 {
		t.Fatalf("service got page=%d size=%d", hist.gotPage, hist.gotPageSize)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	calls := hist.listCalls
	w = doJSON(t, r, http.MethodGet, "/history?email=a@x.com&page=2&page_size=2", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified || hist.listCalls != calls {
		t.Fatalf("expected 304 without listing, status=%d", w.Code)
	}

	// Stats failure skips the ETag but still serves the page.
	hist.statsErr = errors.New("stats down")
	w = doJSON(t, r, http.MethodGet, "/history?email=a@x.com", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK || w.Header().Get("ETag") != "" {
		t.Fatalf("status=%d etag=%q", w.Code, w.Header().Get("ETag"))
	}
}

func TestHistory_EmptyListIsArray(t *testing.T) {
	hist := &stubHistory{user: &domain.User{ID: "u1"}}
	h := New(&stubDispatcher{}, hist, &stubQuota{}, Options{TrustRequestEmail: true})
	w := doJSON(t, newRouter(h, nil), http.MethodGet, "/history?email=a@x.com", nil, nil)
	if !bytes.Contains(w.Body.Bytes(), []byte(`"emails":[]`)) {
		t.Fatalf("expected empty array, got %s", w.Body.String())
	}
}

// ---------- GET /quota ----------

func TestQuota(t *testing.T) {
	q := &stubQuota{sum: &services.QuotaSummary{Day: "2025-06-10", Count: 4, Limit: 10, Remaining: 6}}
	h := New(&stubDispatcher{}, &stubHistory{}, q, Options{})
	ident := &auth.Identity{Email: "real@x.com", Verified: true}
	w := doJSON(t, newRouter(h, ident), http.MethodGet, "/quota?email=other@x.com", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp QuotaResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.DailyCount != 4 || resp.DailyLimit != 10 || resp.Remaining != 6 || resp.Day != "2025-06-10" {
		t.Fatalf("unexpected: %+v", resp)
	}
	if q.gotEmail != "real@x.com" {
		t.Fatalf("verified identity should win, got %q", q.gotEmail)
	}

	q.err = services.ErrUserNotFound
	if w := doJSON(t, newRouter(h, ident), http.MethodGet, "/quota", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	q.err = errors.New("boom")
	if w := doJSON(t, newRouter(h, ident), http.MethodGet, "/quota", nil, nil); w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	if w := doJSON(t, newRouter(h, nil), http.MethodGet, "/quota", nil, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
}

// ---------- health ----------

func TestHealthAndReady(t *testing.T) {
	h := New(&stubDispatcher{}, &stubHistory{}, &stubQuota{}, Options{Ready: stubPinger{}})
	r := newRouter(h, nil)
	if w := doJSON(t, r, http.MethodGet, "/health", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("health status=%d", w.Code)
	}
	if w := doJSON(t, r, http.MethodGet, "/readyz", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("ready status=%d", w.Code)
	}

	h = New(&stubDispatcher{}, &stubHistory{}, &stubQuota{}, Options{Ready: stubPinger{err: errors.New("db down")}})
	w := doJSON(t, newRouter(h, nil), http.MethodGet, "/readyz", nil, nil)
	if w.Code != http.StatusServiceUnavailable || decodeError(t, w).Code != ErrCodeUnavailable {
		t.Fatalf("ready status=%d", w.Code)
	}
}
