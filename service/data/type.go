package data

import "github.com/khaledhikmat/vs-counter/model"

type IService interface {
	NewCrossingRecord(rec model.LedgerRecord) error
	// RetrieveCrossings returns up to limit of the most recent records in
	// insertion order. A non-positive limit returns everything.
	RetrieveCrossings(limit int) ([]model.LedgerRecord, error)

	NewError(err interface{}) error
	NewPipelineStats(stats model.PipelineStats) error
	NewStreamStats(stats model.StreamStats) error
	NewRecorderStats(stats model.RecorderStats) error

	Close() error
}

const (
	SqliteBackend = "sqlite"
	FilesBackend  = "files"
)

type errorRecord struct {
	Timestamp  int64                  `json:"timestamp"`
	Processor  string                 `json:"processor"`
	Inner      string                 `json:"innerError"`
	Message    string                 `json:"message"`
	StackTrace string                 `json:"stackTrace"`
	Misc       map[string]interface{} `json:"misc"`
}

func toErrorRecord(err interface{}, now int64) errorRecord {
	var customErr model.CustomError
	switch e := err.(type) {
	case model.CustomError:
		customErr = e
	case error:
		customErr = model.CustomError{Processor: "N/A", Inner: e, Message: e.Error(), StackTrace: "N/A"}
	default:
		customErr = model.CustomError{Processor: "N/A", Message: "unknown error", StackTrace: "N/A"}
	}

	rec := errorRecord{
		Timestamp:  now,
		Processor:  customErr.Processor,
		Message:    customErr.Message,
		StackTrace: customErr.StackTrace,
		Misc:       customErr.Misc,
	}
	if customErr.Inner != nil {
		rec.Inner = customErr.Inner.Error()
	}
	return rec
}
