package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/khaledhikmat/vs-counter/model"
	"github.com/khaledhikmat/vs-counter/service/config"
)

// filesDBService keeps one JSON array file per entity kind. Every write
// rewrites the whole file, so it suits development volumes only.
type filesDBService struct {
	CfgSvc config.IService
	mu     sync.Mutex
	folder string
}

func NewFilesDB(cfgsvc config.IService) (IService, error) {
	folder := cfgsvc.GetDataPath()
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("creating data folder: %w", err)
	}
	return &filesDBService{
		CfgSvc: cfgsvc,
		folder: folder,
	}, nil
}

func (svc *filesDBService) NewCrossingRecord(rec model.LedgerRecord) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return newEntity(rec, "crossings", svc.folder)
}

func (svc *filesDBService) RetrieveCrossings(limit int) ([]model.LedgerRecord, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	records, err := retrieveEntities[model.LedgerRecord]("crossings", svc.folder)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

func (svc *filesDBService) NewError(err interface{}) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return newEntity(toErrorRecord(err, time.Now().Unix()), "errors", svc.folder)
}

func (svc *filesDBService) NewPipelineStats(stats model.PipelineStats) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, "pipeline-stats", svc.folder)
}

func (svc *filesDBService) NewStreamStats(stats model.StreamStats) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, "stream-stats", svc.folder)
}

func (svc *filesDBService) NewRecorderStats(stats model.RecorderStats) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	stats.Timestamp = time.Now().Unix()
	return newEntity(stats, "recorder-stats", svc.folder)
}

func (svc *filesDBService) Close() error {
	return nil
}

func newEntity[T any](entity T, name, folder string) error {
	entities, err := retrieveEntities[T](name, folder)
	if err != nil {
		return err
	}
	entities = append(entities, entity)

	data, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(entityFile(name, folder), data, 0644)
}

func retrieveEntities[T any](name, folder string) ([]T, error) {
	entities := []T{}

	data, err := os.ReadFile(entityFile(name, folder))
	if os.IsNotExist(err) {
		return entities, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return entities, nil
}

func entityFile(name, folder string) string {
	return filepath.Join(folder, name+".json")
}
