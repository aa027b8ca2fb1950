package webhook

import (
	"log/slog"

	"github.com/khaledhikmat/vs-counter/service/config"
	"github.com/khaledhikmat/vs-counter/service/lgr"
)

type fakeService struct {
	CfgSvc config.IService
}

// NewFake logs payloads instead of posting them.
func NewFake(cfgsvc config.IService) IService {
	return &fakeService{
		CfgSvc: cfgsvc,
	}
}

func (svc *fakeService) Post(payload map[string]interface{}) error {
	lgr.Logger.Debug("webhook payload", slog.Any("payload", payload))
	return nil
}
