package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/item-catalog/internal/adapter/profile"
	"github.com/rl1809/item-catalog/internal/adapter/storage"
	"github.com/rl1809/item-catalog/internal/core/identity"
	"github.com/rl1809/item-catalog/internal/core/service"
	"github.com/rl1809/item-catalog/internal/observability"
)

const testSecret = "handler-secret"

const (
	merchant      = "42"
	otherMerchant = "99"
	customer      = "7"
	flaky         = "500"
)

type fixture struct {
	store       *storage.MemoryStore
	itemService *service.ItemService
	resolver    *identity.Resolver
	metrics     *observability.Metrics
	router      http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var role string
		switch strings.TrimPrefix(r.URL.Path, "/") {
		case merchant, otherMerchant:
			role = "merchant"
		case customer:
			role = "customer"
		default:
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"role": role}})
	}))
	t.Cleanup(users.Close)

	cache, err := storage.NewMemoryCache(100, nil)
	require.NoError(t, err)

	metrics := observability.NewMetrics("test")
	client := profile.NewClient(users.URL, time.Second, profile.DefaultBreakerConfig(), zap.NewNop())
	resolver, err := identity.NewResolver(identity.Config{
		SecretKey:    testSecret,
		Algorithm:    "HS256",
		SubjectClaim: "user_id",
		CacheTTL:     time.Minute,
	}, cache, client, zap.NewNop(), metrics)
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	itemService := service.NewItemService(store, zap.NewNop(), metrics)

	return &fixture{
		store:       store,
		itemService: itemService,
		resolver:    resolver,
		metrics:     metrics,
		router:      NewRouter(NewHTTPHandler(itemService, zap.NewNop()), resolver, metrics, zap.NewNop()),
	}
}

func token(t *testing.T, subject any) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": subject,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func mustSign(t *testing.T, claims map[string]any) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims)).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}
