package restapi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andreyxaxa/Notify-Router/config"
	"github.com/andreyxaxa/Notify-Router/internal/dto"
	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/pkg/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type statsOnly struct{}

func (statsOnly) PublishEvent(context.Context, dto.PublishEvent) (dto.PublishResult, error) {
	return dto.PublishResult{}, nil
}
func (statsOnly) GetEvent(context.Context, uuid.UUID) (*entity.Event, error) { return nil, nil }
func (statsOnly) ListDeliveries(context.Context, uuid.UUID) ([]*entity.Delivery, error) {
	return nil, nil
}
func (statsOnly) GetDelivery(context.Context, uuid.UUID) (*entity.Delivery, error) { return nil, nil }
func (statsOnly) Stats(context.Context) (entity.DeliveryStats, error) {
	return entity.DeliveryStats{entity.DeliveryDelivered: 1}, nil
}
func (statsOnly) RetryDelivery(context.Context, uuid.UUID) (*entity.Delivery, error) { return nil, nil }
func (statsOnly) CancelDelivery(context.Context, uuid.UUID) (*entity.Delivery, error) {
	return nil, nil
}

func TestNewRouter(t *testing.T) {
	t.Parallel()

	app := fiber.New()
	cfg := &config.Config{Metrics: config.Metrics{Enabled: true}}
	NewRouter(app, cfg, statsOnly{}, logger.NewWithZap(zap.NewNop()))

	for path, want := range map[string]int{
		"/healthz":             http.StatusOK,
		"/metrics":             http.StatusOK,
		"/v1/deliveries/stats": http.StatusOK,
		"/swagger/index.html":  http.StatusNotFound,
	} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		require.NoError(t, err, path)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
}
