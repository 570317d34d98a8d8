package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"bikeshare/internal/handler"
	"bikeshare/internal/idempotency"
	"bikeshare/internal/logging"
	"bikeshare/internal/middleware"
	"bikeshare/internal/payments"
	"bikeshare/internal/repository/memory"
	"bikeshare/internal/routing"
	"bikeshare/internal/seed"
	"bikeshare/internal/service"
)

const testServiceToken = "svc-token"

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := logging.Discard()
	store := memory.NewStore()
	if err := seed.Demo(context.Background(), store, rand.New(rand.NewPCG(1, 2)), logger); err != nil {
		t.Fatalf("seed.Demo() error = %v", err)
	}

	notifier := service.NopNotifier{}
	guard := idempotency.NewGuard(nil, logger)
	router := routing.NewRouter(routing.NewLoader(), "../../graphs", "toy", 4.5, logger)
	pricing := service.NewPricingService(store, notifier, logger)
	tokens := middleware.NewTokenManager("test-secret", time.Hour)

	engine := NewRouter(RouterDeps{
		AuthHandler:    handler.NewAuthHandler(service.NewAuthService(store, logger), tokens, time.Hour),
		RideHandler:    handler.NewRideHandler(service.NewRideService(store, guard, pricing, router, notifier, nil, service.DefaultRideConfig(), logger)),
		PaymentHandler: handler.NewPaymentHandler(service.NewPaymentService(store, guard, payments.NewMockPSP(), "sgd", notifier, logger)),
		BikeHandler:    handler.NewBikeHandler(service.NewBikeService(store, nil, notifier, logger)),
		PricingHandler: handler.NewPricingHandler(pricing),
		RouteHandler:   handler.NewRouteHandler(service.NewRouteService(router)),
		Tokens:         tokens,
		ServiceToken:   testServiceToken,
		AllowedOrigins: []string{"*"},
		Logger:         logger,
	})
	return &testServer{t: t, engine: engine}
}

func (s *testServer) do(method, path, token, key string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if key != "" {
		req.Header.Set(middleware.IdempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(email, password string) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/v1/auth/login", "", "", service.LoginRequest{Email: email, Password: password})
	if w.Code != http.StatusOK {
		s.t.Fatalf("login %s: status %d body %s", email, w.Code, w.Body.String())
	}
	var resp handler.TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		s.t.Fatalf("decode token: %v", err)
	}
	return resp.AccessToken
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	if w := s.do(http.MethodGet, "/health", "", "", nil); w.Code != http.StatusOK {
		t.Errorf("/health status = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/metrics", "", "", nil); w.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/v1/bikes", "", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated /v1/bikes status = %d", w.Code)
	}
	if w := s.do(http.MethodPost, "/v1/auth/login", "", "", service.LoginRequest{Email: seed.UserEmail, Password: "bad"}); w.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d", w.Code)
	}
}

func TestRouter_RideFlow(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	user := s.login(seed.UserEmail, seed.UserPassword)

	unlock := service.UnlockRequest{QRPublicID: "SG-BIKE-000"}
	if w := s.do(http.MethodPost, "/v1/unlock", user, "", unlock); w.Code != http.StatusBadRequest {
		t.Fatalf("unlock without key: status %d", w.Code)
	}

	first := s.do(http.MethodPost, "/v1/unlock", user, "flow-unlock", unlock)
	if first.Code != http.StatusOK {
		t.Fatalf("unlock: status %d body %s", first.Code, first.Body.String())
	}
	replay := s.do(http.MethodPost, "/v1/unlock", user, "flow-unlock", unlock)
	if replay.Code != http.StatusOK || !bytes.Equal(first.Body.Bytes(), replay.Body.Bytes()) {
		t.Errorf("replay differs: %s vs %s", first.Body.String(), replay.Body.String())
	}
	if replay.Header().Get(handler.ReplayedHeader) != "true" {
		t.Errorf("replay not flagged")
	}
	if w := s.do(http.MethodPost, "/v1/unlock", user, "flow-unlock", service.UnlockRequest{QRPublicID: "SG-BIKE-001"}); w.Code != http.StatusConflict {
		t.Errorf("key reuse status = %d", w.Code)
	}

	var started service.UnlockResponse
	if err := json.Unmarshal(first.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode unlock: %v", err)
	}
	rideID := started.Ride.ID

	tel := service.TelemetryRequest{Lat: 1.2865, Lon: 103.8525, SpeedMps: 3, TS: 1_700_000_000}
	if w := s.do(http.MethodPost, "/v1/rides/"+rideID+"/telemetry", user, "", tel); w.Code != http.StatusOK {
		t.Fatalf("telemetry: status %d body %s", w.Code, w.Body.String())
	}

	w := s.do(http.MethodPost, "/v1/lock", user, "flow-lock-np", service.LockRequest{RideID: rideID, Lat: 1.2865, Lon: 103.8525})
	if w.Code != http.StatusConflict {
		t.Fatalf("no-park lock: status %d body %s", w.Code, w.Body.String())
	}
	var noPark handler.NoParkResponse
	if err := json.Unmarshal(w.Body.Bytes(), &noPark); err != nil {
		t.Fatalf("decode no-park body: %v", err)
	}
	if noPark.Error != "Cannot lock in no-park zone" || noPark.NearestParkingRoute == nil {
		t.Errorf("no-park body = %s", w.Body.String())
	}

	w = s.do(http.MethodPost, "/v1/lock", user, "flow-lock", service.LockRequest{RideID: rideID, Lat: 1.2970, Lon: 103.8460})
	if w.Code != http.StatusOK {
		t.Fatalf("lock: status %d body %s", w.Code, w.Body.String())
	}
	var locked service.LockResponse
	if err := json.Unmarshal(w.Body.Bytes(), &locked); err != nil {
		t.Fatalf("decode lock: %v", err)
	}
	if locked.ParkingStatus != "parking" || locked.Ride.State != "ended" {
		t.Errorf("lock response = %+v", locked)
	}

	if w := s.do(http.MethodGet, "/v1/rides/"+rideID, user, "", nil); w.Code != http.StatusOK {
		t.Errorf("get ride status = %d", w.Code)
	}
	if w := s.do(http.MethodGet, "/v1/rides/missing", user, "", nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing ride status = %d", w.Code)
	}

	// Payments are admin-only.
	pay := service.AuthorizeRequest{RideID: rideID, AmountCents: locked.Ride.FareCents}
	if w := s.do(http.MethodPost, "/v1/payments/authorize", user, "flow-pay", pay); w.Code != http.StatusForbidden {
		t.Errorf("user authorize status = %d", w.Code)
	}
	admin := s.login(seed.AdminEmail, seed.AdminPassword)
	if w := s.do(http.MethodPost, "/v1/payments/authorize", admin, "flow-pay", pay); w.Code != http.StatusOK {
		t.Errorf("admin authorize status = %d body %s", w.Code, w.Body.String())
	}
}

func TestRouter_BikesAndInternal(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	user := s.login(seed.UserEmail, seed.UserPassword)

	w := s.do(http.MethodGet, "/v1/bikes", user, "", nil)
	var all []service.BikeView
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil || len(all) == 0 {
		t.Fatalf("list = %s, %v", w.Body.String(), err)
	}

	path := fmt.Sprintf("/v1/bikes?near_lat=%f&near_lon=%f&radius_m=25", all[7].Lat, all[7].Lon)
	w = s.do(http.MethodGet, path, user, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("near list status = %d", w.Code)
	}
	var bikes []service.BikeView
	if err := json.Unmarshal(w.Body.Bytes(), &bikes); err != nil || len(bikes) == 0 || bikes[0].ID != all[7].ID {
		t.Fatalf("near list = %s, %v", w.Body.String(), err)
	}
	if w := s.do(http.MethodGet, "/v1/bikes?near_lat=1.2975", user, "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("partial near query status = %d", w.Code)
	}

	status := "offline"
	if w := s.do(http.MethodPatch, "/v1/bikes/"+bikes[0].ID, user, "", service.BikePatch{Status: &status}); w.Code != http.StatusForbidden {
		t.Errorf("user patch status = %d", w.Code)
	}

	notice := service.LowBatteryNotice{BikeID: bikes[0].ID, BatteryPct: 9, Threshold: 15}
	if w := s.do(http.MethodPost, "/v1/internal/battery/low-battery", "", "", notice); w.Code != http.StatusUnauthorized {
		t.Errorf("low battery without token status = %d", w.Code)
	}

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(notice)
	req := httptest.NewRequest(http.MethodPost, "/v1/internal/battery/low-battery", &buf)
	req.Header.Set(middleware.ServiceTokenHeader, testServiceToken)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("low battery status = %d body %s", rec.Code, rec.Body.String())
	}

	w = s.do(http.MethodGet, "/v1/bikes/"+bikes[0].ID, user, "", nil)
	var bike service.BikeView
	_ = json.Unmarshal(w.Body.Bytes(), &bike)
	if bike.Status != "maintenance" || bike.BatteryPct != 9 {
		t.Errorf("bike after low battery = %+v", bike)
	}
}

func TestRouter_PricingAndRoutes(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	user := s.login(seed.UserEmail, seed.UserPassword)
	admin := s.login(seed.AdminEmail, seed.AdminPassword)

	weather := "rain"
	upd := service.PricingConfigUpdate{Weather: &weather}
	if w := s.do(http.MethodPut, "/v1/pricing/config", user, "", upd); w.Code != http.StatusForbidden {
		t.Errorf("user config update status = %d", w.Code)
	}
	if w := s.do(http.MethodPut, "/v1/pricing/config", admin, "", upd); w.Code != http.StatusOK {
		t.Errorf("admin config update status = %d body %s", w.Code, w.Body.String())
	}
	for _, path := range []string{"/v1/pricing/config", "/v1/pricing/current", "/v1/pricing/plans"} {
		if w := s.do(http.MethodGet, path, user, "", nil); w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d", path, w.Code)
		}
	}

	route := map[string]any{
		"from":    map[string]float64{"lat": 1.2860, "lon": 103.8450},
		"to":      map[string]float64{"lat": 1.2990, "lon": 103.8590},
		"variant": "safest",
	}
	if w := s.do(http.MethodPost, "/v1/routes", user, "", route); w.Code != http.StatusOK {
		t.Errorf("route status = %d body %s", w.Code, w.Body.String())
	}
	route["graph"] = "atlantis"
	if w := s.do(http.MethodPost, "/v1/routes", user, "", route); w.Code != http.StatusNotFound {
		t.Errorf("unknown graph status = %d", w.Code)
	}
}
