package source

import (
	"errors"

	"github.com/khaledhikmat/vs-counter/model"
	"gocv.io/x/gocv"
)

var ErrSourceUnavailable = errors.New("video source unavailable")

// Source is an open frame producer. Read fills img and reports whether a
// frame was produced; a false return is transient and the caller retries.
type Source interface {
	Read(img *gocv.Mat) bool
	Properties() model.Properties
	Close() error
}

type IService interface {
	// Open resolves spec into a source. An empty spec means the configured
	// camera.
	Open(spec string) (Source, error)
}
