package service

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dhowden/tag"

	"github.com/primalradio/primalradio/internal/domain"
	"github.com/primalradio/primalradio/internal/ports"
)

// RotationService builds the placeholder rotation from a folder of tagged audio files.
// All operations are thread-safe via sync.RWMutex.
type RotationService struct {
	// Dependencies (injected)
	logger *slog.Logger
	bus    ports.EventBus

	// State
	scanning      bool
	cancelScan    context.CancelFunc
	tracks        []domain.TrackMetadata
	supportedExts []string

	// Concurrency control
	mu sync.RWMutex
}

// NewRotationService creates a rotation service. bus may be nil.
func NewRotationService(logger *slog.Logger, bus ports.EventBus) *RotationService {
	return &RotationService{
		logger: logger.With(slog.String("service", "rotation")),
		bus:    bus,
		supportedExts: []string{
			".mp3", ".m4a", ".m4b", ".mp4", ".aac",
			".ogg", ".oga", ".flac", ".fla",
			".dsf",
		},
	}
}

// ScanFolder walks folderPath recursively and reads the tags of every supported
// file. Files without a title tag are skipped. The result replaces the stored
// rotation only when at least one track was found.
func (s *RotationService) ScanFolder(ctx context.Context, folderPath string) ([]domain.TrackMetadata, error) {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return nil, domain.NewServiceError("RotationService", "ScanFolder", "scan already in progress", nil)
	}
	s.scanning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancelScan = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.scanning = false
		s.cancelScan = nil
		s.mu.Unlock()
	}()

	info, err := os.Stat(folderPath)
	if err != nil {
		return nil, domain.NewServiceError("RotationService", "ScanFolder", "cannot open rotation folder", err)
	}
	if !info.IsDir() {
		return nil, domain.NewServiceError("RotationService", "ScanFolder", "rotation path is not a folder", nil)
	}

	s.publish(domain.NewScanStartedEvent(folderPath))

	files, err := s.collectAudioFiles(ctx, folderPath)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.publish(domain.NewScanCancelledEvent("scan cancelled"))
			return nil, domain.ErrScanCancelled
		}
		return nil, err
	}

	tracks := make([]domain.TrackMetadata, 0, len(files))
	for _, path := range files {
		select {
		case <-ctx.Done():
			s.publish(domain.NewScanCancelledEvent("scan cancelled"))
			return tracks, domain.ErrScanCancelled
		default:
		}

		track, ok := readTrack(path)
		if !ok {
			s.logger.Debug("skipping untagged file", slog.String("path", path))
			continue
		}
		tracks = append(tracks, track)
	}

	if len(tracks) > 0 {
		s.mu.Lock()
		s.tracks = slices.Clone(tracks)
		s.mu.Unlock()
	}

	s.logger.Info("rotation scanned", slog.String("path", folderPath), slog.Int("tracks", len(tracks)))
	s.publish(domain.NewScanCompletedEvent(tracks))
	return tracks, nil
}

// collectAudioFiles returns the supported files below root in lexical order.
func (s *RotationService) collectAudioFiles(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable entries are skipped
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if s.IsFormatSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// readTrack extracts the rotation entry from one file.
func readTrack(path string) (domain.TrackMetadata, bool) {
	file, err := os.Open(path)
	if err != nil {
		return domain.TrackMetadata{}, false
	}
	defer file.Close()

	metadata, err := tag.ReadFrom(file)
	if err != nil || metadata == nil {
		return domain.TrackMetadata{}, false
	}

	title := strings.TrimSpace(metadata.Title())
	if title == "" {
		return domain.TrackMetadata{}, false
	}

	return domain.TrackMetadata{
		Title:  title,
		Artist: strings.TrimSpace(metadata.Artist()),
		Album:  strings.TrimSpace(metadata.Album()),
		Genre:  strings.TrimSpace(metadata.Genre()),
	}, true
}

// CancelScan cancels the scan in progress, if any.
func (s *RotationService) CancelScan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelScan != nil {
		s.cancelScan()
	}
}

// IsScanning returns true if a scan is in progress.
func (s *RotationService) IsScanning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanning
}

// Tracks returns the last non-empty scan result.
func (s *RotationService) Tracks() []domain.TrackMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tracks)
}

// IsFormatSupported checks if a file has a tag-readable audio extension.
func (s *RotationService) IsFormatSupported(path string) bool {
	return slices.Contains(s.supportedExts, strings.ToLower(filepath.Ext(path)))
}

func (s *RotationService) publish(event domain.Event) {
	if s.bus != nil {
		s.bus.Publish(event)
	}
}
