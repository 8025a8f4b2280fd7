package routes

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/digital-fulfillment/internal/admin"
	"github.com/angelmondragon/digital-fulfillment/internal/events"
	"github.com/angelmondragon/digital-fulfillment/internal/inventory"
	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	"github.com/angelmondragon/digital-fulfillment/pkg/db"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/dbtest"
	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
	"github.com/angelmondragon/digital-fulfillment/pkg/metrics"
)

func newTestRouter(t *testing.T) (http.Handler, *db.Client) {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	conn := dbtest.Open(t)
	client := db.NewFromConn(conn)

	cfg := &config.Config{
		App:         config.AppConfig{Env: "test"},
		Marketplace: config.MarketplaceConfig{NotificationName: "digital-shop"},
		Admin: config.AdminConfig{
			Password:          "letmein",
			JWTSecret:         "jwt",
			JWTIssuer:         "digital-fulfillment",
			ExpirationMinutes: 10,
			CORSOrigins:       []string{"http://localhost:3000"},
		},
	}

	ingestor, err := events.NewIngestor(events.NewRepository(conn), logg)
	require.NoError(t, err)
	adminSvc, err := admin.NewService(inventory.NewRepository(conn), cfg.Admin, logg)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics.NewFulfillmentMetrics(reg).IncEvent(metrics.EventProcessed)

	return NewRouter(RouterParams{
		Config:   cfg,
		Logger:   logg,
		DB:       client,
		Ingestor: ingestor,
		Admin:    adminSvc,
		Gatherer: reg,
	}), client
}

func serve(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNotificationRoundTrip(t *testing.T) {
	router, client := newTestRouter(t)
	path := "/api/v1/marketplace/notification"
	body := `{"event":"ORDER_STATUS_UPDATED","order":{"id":555},"updateTime":"2026-03-01T10:00:00Z"}`

	rec := serve(router, http.MethodPost, path, body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"message":"Event stored"}`, rec.Body.String())

	rec = serve(router, http.MethodPost, path, body, nil)
	assert.JSONEq(t, `{"ok":true,"message":"Already processed"}`, rec.Body.String())

	var count int64
	require.NoError(t, client.DB().Model(&models.MarketplaceEvent{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec = serve(router, method, path, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var doc map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Equal(t, "digital-shop", doc["name"])
		assert.Equal(t, "OK", doc["status"])
	}
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := serve(router, http.MethodGet, "/api/admin/v1/stock", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(router, http.MethodGet, "/api/admin/v1/stock", "", map[string]string{"X-Admin-Password": "letmein"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodPost, "/api/admin/v1/auth/login", `{"password":"letmein"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Data admin.LoginResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.Data.Token)

	auth := map[string]string{"Authorization": "Bearer " + login.Data.Token}
	rec = serve(router, http.MethodPost, "/api/admin/v1/products", `{"title":"Star Game","productKey":"star"}`, auth)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Data admin.ProductView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = serve(router, http.MethodPost, "/api/admin/v1/products/"+created.Data.ID.String()+"/codes", `{"codes":["S-1","S-2"]}`, auth)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(router, http.MethodPost, "/api/admin/v1/offers", `{"offerId":"SKU-STAR","productId":"`+created.Data.ID.String()+`"}`, auth)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = serve(router, http.MethodPost, "/api/admin/v1/offers", `{"offerId":"SKU-STAR","productId":"`+created.Data.ID.String()+`"}`, auth)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(router, http.MethodGet, "/api/admin/v1/stock", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":2`)
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live", "", nil).Code)

	rec := serve(router, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"skipped"`)

	rec = serve(router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fulfillment_events_total")
}
