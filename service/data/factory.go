package data

import (
	"fmt"

	"github.com/khaledhikmat/vs-counter/service/config"
)

// New opens the backend named by the configuration.
func New(cfgsvc config.IService) (IService, error) {
	switch cfgsvc.GetDataBackend() {
	case SqliteBackend, "":
		return NewSqlite(cfgsvc)
	case FilesBackend:
		return NewFilesDB(cfgsvc)
	}
	return nil, fmt.Errorf("unknown data backend %q", cfgsvc.GetDataBackend())
}
