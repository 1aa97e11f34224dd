package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/wellchat-backend/internal/domain/assessment"
	httpH "github.com/yungbote/wellchat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/wellchat-backend/internal/http/middleware"
	"github.com/yungbote/wellchat-backend/internal/http/response"
	"github.com/yungbote/wellchat-backend/internal/observability"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
	"github.com/yungbote/wellchat-backend/internal/services"
)

const routerSecret = "router-secret"

type fakeEngine struct {
	last services.TurnInput
}

func (f *fakeEngine) ProcessTurn(_ context.Context, in services.TurnInput) services.TurnOutcome {
	f.last = in
	q := "¿Has tenido poco interés en hacer cosas?"
	return services.TurnOutcome{Action: services.TurnActionAsked, QuestionToInject: &q, QuestionNumber: 1}
}

func (f *fakeEngine) DiscardStaged(uuid.UUID) {}

type fakeControl struct {
	cancelErr error
	history   services.HistoryQuery
	completed []*assessment.Record
}

func (f *fakeControl) GetStatus(_ context.Context, userID uuid.UUID) (services.AssessmentStatus, error) {
	return services.AssessmentStatus{HasActive: true, Total: 9, CompletedCount: 3, ProgressPct: 33.3}, nil
}

func (f *fakeControl) GetHistory(_ context.Context, _ uuid.UUID, q services.HistoryQuery) ([]*assessment.Record, error) {
	f.history = q
	out := f.completed
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	if out == nil {
		out = []*assessment.Record{}
	}
	return out, nil
}

func (f *fakeControl) Cancel(_ context.Context, userID uuid.UUID) (*assessment.Record, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &assessment.Record{ID: uuid.New(), UserID: userID, State: assessment.StateCancelled}, nil
}

func (f *fakeControl) GetSummary(_ context.Context, userID uuid.UUID) (*assessment.MentalHealthSummary, error) {
	return &assessment.MentalHealthSummary{UserID: userID, OverallRiskLevel: assessment.RiskUnknown}, nil
}

func (f *fakeControl) GetRiskAlert(context.Context, uuid.UUID) (services.RiskAlert, error) {
	return services.RiskAlert{RiskLevel: assessment.RiskUnknown, Message: "No hay datos suficientes"}, nil
}

func (f *fakeControl) ListDetections(context.Context, uuid.UUID, int, bool) ([]*assessment.DepressionDetection, error) {
	return nil, assessment.Wrap(assessment.CodePersistenceFailure, "op", errors.New("connection refused"))
}

type routerFixture struct {
	router  *gin.Engine
	engine  *fakeEngine
	control *fakeControl
	userID  uuid.UUID
	token   string
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &routerFixture{engine: &fakeEngine{}, control: &fakeControl{}, userID: uuid.New()}
	log := logger.Nop()
	f.router = NewRouter(RouterConfig{
		Log:               log,
		Metrics:           observability.NewMetrics(),
		AuthMiddleware:    httpMW.NewAuthMiddleware(log, routerSecret, ""),
		AssessmentHandler: httpH.NewAssessmentHandler(f.engine, f.control),
		HealthHandler:     httpH.NewHealthHandler(nil),
	})
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   f.userID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(routerSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	f.token = tok
	return f
}

func (f *routerFixture) do(method, path, body string, auth bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) response.APIError {
	t.Helper()
	var env response.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v body=%s", err, rec.Body.String())
	}
	return env.Error
}

func TestRouterRequiresAuth(t *testing.T) {
	f := newRouterFixture(t)
	paths := []struct{ method, path string }{
		{http.MethodPost, "/api/assessment/turns"},
		{http.MethodGet, "/api/assessment/phq9/conversational/status"},
		{http.MethodGet, "/api/assessment/phq9/conversational/history"},
		{http.MethodGet, "/api/assessment/phq9/conversational/latest"},
		{http.MethodDelete, "/api/assessment/phq9/conversational/cancel"},
		{http.MethodGet, "/api/assessment/summary"},
		{http.MethodGet, "/api/assessment/risk-alert"},
		{http.MethodGet, "/api/assessment/detections"},
	}
	for _, p := range paths {
		rec := f.do(p.method, p.path, "", false)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: status=%d want 401", p.method, p.path, rec.Code)
		}
		if got := decodeError(t, rec).Code; got != "unauthorized" {
			t.Fatalf("%s %s: code=%q", p.method, p.path, got)
		}
	}
}

func TestRouterPostTurn(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodPost, "/api/assessment/turns", `{"message_id":"m-1","text":"  no tengo ganas de nada "}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var out services.TurnOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Action != services.TurnActionAsked || out.QuestionToInject == nil {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if f.engine.last.UserID != f.userID || f.engine.last.Text != "no tengo ganas de nada" || f.engine.last.MessageID != "m-1" {
		t.Fatalf("engine saw %+v", f.engine.last)
	}

	rec = f.do(http.MethodPost, "/api/assessment/turns", `{"text":"   "}`, true)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Code != "validation" {
		t.Fatalf("blank text: status=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = f.do(http.MethodPost, "/api/assessment/turns", `{`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: status=%d", rec.Code)
	}

	long := strings.Repeat("a", 9000)
	rec = f.do(http.MethodPost, "/api/assessment/turns", `{"message_id":"m-2","text":"`+long+`"}`, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("long text: status=%d body=%s", rec.Code, rec.Body.String())
	}
	if f.engine.last.Text != long {
		t.Fatalf("long text reached engine with %d bytes", len(f.engine.last.Text))
	}
}

func TestRouterLatestAssessment(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(http.MethodGet, "/api/assessment/phq9/conversational/latest", "", true)
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Code != "not_found" {
		t.Fatalf("empty latest: status=%d body=%s", rec.Code, rec.Body.String())
	}

	newest := &assessment.Record{ID: uuid.New(), UserID: f.userID, State: assessment.StateCompleted}
	older := &assessment.Record{ID: uuid.New(), UserID: f.userID, State: assessment.StateCompleted}
	f.control.completed = []*assessment.Record{newest, older}
	rec = f.do(http.MethodGet, "/api/assessment/phq9/conversational/latest", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("latest: status=%d body=%s", rec.Code, rec.Body.String())
	}
	if f.control.history.Limit != 1 || f.control.history.IncludeCancelled {
		t.Fatalf("latest query %+v", f.control.history)
	}
	if !strings.Contains(rec.Body.String(), newest.ID.String()) || strings.Contains(rec.Body.String(), older.ID.String()) {
		t.Fatalf("latest body %s", rec.Body.String())
	}
}

func TestRouterControlEndpoints(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/api/assessment/phq9/conversational/status", "", true)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"progress_pct":33.3`) {
		t.Fatalf("status: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodGet, "/api/assessment/phq9/conversational/history?limit=5&include_cancelled=true", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d %s", rec.Code, rec.Body.String())
	}
	if f.control.history.Limit != 5 || !f.control.history.IncludeCancelled {
		t.Fatalf("history query %+v", f.control.history)
	}
	rec = f.do(http.MethodGet, "/api/assessment/phq9/conversational/history?limit=abc", "", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/api/assessment/risk-alert", "", true)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "No hay datos suficientes") {
		t.Fatalf("risk-alert: %d %s", rec.Code, rec.Body.String())
	}
}

func TestRouterMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name       string
		cancelErr  error
		wantStatus int
		wantCode   string
	}{
		{name: "ok", wantStatus: http.StatusOK},
		{name: "nothing active", cancelErr: assessment.ErrNoActiveAssessment, wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "busy", cancelErr: assessment.NewError(assessment.CodeConcurrentModification, "op", "user busy", nil), wantStatus: http.StatusConflict, wantCode: "concurrent_modification"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newRouterFixture(t)
			f.control.cancelErr = tc.cancelErr
			rec := f.do(http.MethodDelete, "/api/assessment/phq9/conversational/cancel", "", true)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status=%d want %d body=%s", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if tc.wantCode != "" {
				if got := decodeError(t, rec).Code; got != tc.wantCode {
					t.Fatalf("code=%q want %q", got, tc.wantCode)
				}
			}
		})
	}

	f := newRouterFixture(t)
	rec := f.do(http.MethodGet, "/api/assessment/detections", "", true)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("detections status=%d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("storage detail leaked: %s", rec.Body.String())
	}
}

func TestRouterHealthAndMetrics(t *testing.T) {
	f := newRouterFixture(t)
	if rec := f.do(http.MethodGet, "/healthcheck", "", false); rec.Code != http.StatusOK {
		t.Fatalf("healthcheck status=%d", rec.Code)
	}
	f.do(http.MethodGet, "/api/assessment/summary", "", true)
	rec := f.do(http.MethodGet, "/metrics", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rec.Code)
	}
	f.do(http.MethodGet, "/api/assessment/no-such-route/"+uuid.NewString(), "", true)
	rec = f.do(http.MethodGet, "/metrics", "", false)
	body := rec.Body.String()
	if !strings.Contains(body, "/api/assessment/summary") {
		t.Fatalf("metrics missing api route label")
	}
	if !strings.Contains(body, `route="unmatched"`) {
		t.Fatalf("metrics missing unmatched route label")
	}
	if strings.Contains(body, `route="/healthcheck"`) || strings.Contains(body, `route="/metrics"`) || strings.Contains(body, "no-such-route") {
		t.Fatalf("metrics observed skipped or raw paths:\n%s", body)
	}
}
