package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/khaledhikmat/vs-counter/service/config"
)

var dayPattern = regexp.MustCompile(`^[A-Z][a-z]+day_\d{4}-\d{2}-\d{2}$`)

type dayService struct {
	CfgSvc config.IService
}

func NewDays(cfgsvc config.IService) IService {
	return &dayService{
		CfgSvc: cfgsvc,
	}
}

func DayName(at time.Time) string {
	return at.Format("Monday_2006-01-02")
}

func (svc *dayService) DayFolder(at time.Time) (string, error) {
	folder := filepath.Join(svc.CfgSvc.GetStorageRoot(), DayName(at))
	if err := os.MkdirAll(folder, 0755); err != nil {
		return "", fmt.Errorf("creating day folder: %w", err)
	}
	return folder, nil
}

func (svc *dayService) VideoPath(at time.Time) (string, error) {
	folder, err := svc.DayFolder(at)
	if err != nil {
		return "", err
	}
	return filepath.Join(folder, at.Format("annotated_2006-01-02_15-04-05.mp4")), nil
}

func (svc *dayService) CountsPath(at time.Time, ext string) (string, error) {
	folder, err := svc.DayFolder(at)
	if err != nil {
		return "", err
	}
	ext = strings.TrimPrefix(ext, ".")
	return filepath.Join(folder, at.Format("counts_2006-01-02_15-04-05")+"."+ext), nil
}

// ListDays returns day folder names, newest first.
func (svc *dayService) ListDays() ([]string, error) {
	entries, err := os.ReadDir(svc.CfgSvc.GetStorageRoot())
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	days := []string{}
	for _, e := range entries {
		if e.IsDir() && dayPattern.MatchString(e.Name()) {
			days = append(days, e.Name())
		}
	}
	// Weekday prefixes make names unsortable; order by the date suffix
	sort.Slice(days, func(i, j int) bool {
		return dayDate(days[i]) > dayDate(days[j])
	})
	return days, nil
}

func dayDate(day string) string {
	return day[strings.IndexByte(day, '_')+1:]
}

// ListVideos returns the mp4 files of a day, most recently modified first.
func (svc *dayService) ListVideos(day string) ([]Video, error) {
	if !dayPattern.MatchString(day) {
		return nil, fmt.Errorf("day %q: %w", day, ErrNotFound)
	}
	entries, err := os.ReadDir(filepath.Join(svc.CfgSvc.GetStorageRoot(), day))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("day %q: %w", day, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	videos := []Video{}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".mp4") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		videos = append(videos, Video{Name: e.Name(), Size: info.Size(), Modified: info.ModTime()})
	}
	sort.Slice(videos, func(i, j int) bool {
		return videos[i].Modified.After(videos[j].Modified)
	})
	return videos, nil
}

func (svc *dayService) Resolve(day, file string) (string, error) {
	if !dayPattern.MatchString(day) || file == "" || file != filepath.Base(file) || strings.HasPrefix(file, ".") {
		return "", fmt.Errorf("%s/%s: %w", day, file, ErrNotFound)
	}
	path := filepath.Join(svc.CfgSvc.GetStorageRoot(), day, file)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%s/%s: %w", day, file, ErrNotFound)
	}
	return path, nil
}
