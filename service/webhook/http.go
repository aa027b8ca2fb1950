package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/khaledhikmat/vs-counter/service/config"
)

const postTimeout = 5 * time.Second

type httpService struct {
	CfgSvc config.IService
	client *http.Client
}

// NewHTTP posts JSON payloads to the configured webhook URL.
func NewHTTP(cfgsvc config.IService) IService {
	return &httpService{
		CfgSvc: cfgsvc,
		client: &http.Client{Timeout: postTimeout},
	}
}

func (svc *httpService) Post(payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := svc.client.Post(svc.CfgSvc.GetWebhookURL(), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: unexpected status %d", svc.CfgSvc.GetWebhookURL(), resp.StatusCode)
	}
	return nil
}
