package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type Video struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// IService lays files out in one folder per day, e.g. Monday_2026-02-07.
type IService interface {
	DayFolder(at time.Time) (string, error)
	VideoPath(at time.Time) (string, error)
	CountsPath(at time.Time, ext string) (string, error)
	ListDays() ([]string, error)
	ListVideos(day string) ([]Video, error)
	// Resolve returns the path of file inside day, refusing anything that
	// escapes the storage root.
	Resolve(day, file string) (string, error)
}
