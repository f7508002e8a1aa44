package v1

import (
	"github.com/andreyxaxa/Notify-Router/internal/usecase"
	"github.com/andreyxaxa/Notify-Router/pkg/logger"
)

type V1 struct {
	n      usecase.NotificationUseCase
	logger logger.Interface
}
