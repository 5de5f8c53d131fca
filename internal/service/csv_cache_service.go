package service

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"healthboard/internal/domain"
	"healthboard/internal/repository"
	"healthboard/pkg/logger"
)

// CSVCacheService avoids re-downloading unchanged remote CSV resources using
// conditional requests, serves the last-known-good copy when the remote is
// unreachable, and verifies cached bytes against a stored content hash so
// corruption is never served to a caller.
type CSVCacheService struct {
	repo      repository.CSVCacheRepository
	client    *http.Client
	cachePath string
	logger    *logger.Logger
}

// NewCSVCacheService creates a new CSV cache service and ensures the cache
// directory exists.
func NewCSVCacheService(repo repository.CSVCacheRepository, client *http.Client, cachePath string, log *logger.Logger) (*CSVCacheService, error) {
	if err := os.MkdirAll(cachePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create csv cache directory: %w", err)
	}

	return &CSVCacheService{
		repo:      repo,
		client:    client,
		cachePath: cachePath,
		logger:    log,
	}, nil
}

type downloadResult struct {
	content      []byte
	lastModified string
	etag         string
	status       int
}

// GetCachedCSV returns the content of the resource at url, preferring the
// local cache. With forceDownload the cache is bypassed entirely.
func (s *CSVCacheService) GetCachedCSV(ctx context.Context, url string, forceDownload bool) (*domain.CSVCacheResult, error) {
	if forceDownload {
		return s.downloadCSV(ctx, url)
	}

	entry, err := s.repo.GetByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		s.cacheMiss(url, "no cache entry found")
		return s.downloadCSV(ctx, url)
	}

	if _, err := os.Stat(entry.LocalPath); err != nil {
		s.cacheMiss(url, "cached file not found")
		return s.downloadCSV(ctx, url)
	}

	if !s.validateFileIntegrity(entry.LocalPath, entry.LocalFileHash) {
		s.cacheMiss(url, "file integrity check failed")
		return s.downloadCSV(ctx, url)
	}

	// The entry survived the local checks; revalidate against the remote.
	result, err := s.downloadWithHeaders(ctx, url, entry.RemoteLastModified, entry.RemoteETag)
	switch {
	case err == nil && result.status == http.StatusNotModified:
		s.cacheHit(url, entry.RemoteLastModified)
		if touchErr := s.repo.TouchLastChecked(ctx, url, time.Now().UTC()); touchErr != nil {
			s.logger.WithError(touchErr).Warn("Failed to bump csv cache last_checked")
		}
		content, readErr := os.ReadFile(entry.LocalPath)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read cached csv: %w", readErr)
		}
		return &domain.CSVCacheResult{
			Data:         string(content),
			Filename:     entry.Filename,
			FromCache:    true,
			LastModified: entry.RemoteLastModified,
		}, nil

	case err == nil && result.status >= 200 && result.status < 300:
		s.cacheMiss(url, fmt.Sprintf("remote content updated (HTTP %d)", result.status))
		return s.saveDownloadedCSV(ctx, url, result, entry.DownloadCount+1)

	default:
		// Network failure or an unexpected status: serve the cached copy.
		if err == nil {
			err = fmt.Errorf("HTTP %d: failed to download CSV", result.status)
		}
		s.logger.WithFields(map[string]interface{}{
			"url": url,
		}).WithError(err).Warn("Failed to download updated CSV, using cached version")

		content, readErr := os.ReadFile(entry.LocalPath)
		if readErr != nil {
			return nil, fmt.Errorf("failed to read cached csv: %w", readErr)
		}
		return &domain.CSVCacheResult{
			Data:         string(content),
			Filename:     entry.Filename,
			FromCache:    true,
			LastModified: entry.RemoteLastModified,
		}, nil
	}
}

// downloadCSV performs an unconditional fetch. With no valid cache entry there
// is nothing to fall back to, so failures propagate.
func (s *CSVCacheService) downloadCSV(ctx context.Context, url string) (*domain.CSVCacheResult, error) {
	result, err := s.downloadWithHeaders(ctx, url, "", "")
	if err != nil {
		s.logger.WithField("url", url).WithError(err).Error("Failed to download CSV")
		return nil, fmt.Errorf("failed to download csv from %s: %w", url, err)
	}

	if result.status < 200 || result.status >= 300 {
		err := fmt.Errorf("HTTP %d: failed to download CSV", result.status)
		s.logger.WithField("url", url).WithError(err).Error("Failed to download CSV")
		return nil, err
	}

	return s.saveDownloadedCSV(ctx, url, result, 1)
}

// saveDownloadedCSV writes the bytes to a freshly named file and upserts the
// metadata row. File first, then row: a crash in between leaves a row-less
// file, which the next lookup treats as a plain cache miss.
func (s *CSVCacheService) saveDownloadedCSV(ctx context.Context, url string, result *downloadResult, downloadCount int) (*domain.CSVCacheResult, error) {
	filename := s.generateFilename(url)
	localPath := filepath.Join(s.cachePath, filename)

	if err := os.WriteFile(localPath, result.content, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write cached csv file: %w", err)
	}

	entry := &domain.CSVCacheEntry{
		URL:                url,
		Filename:           filename,
		LocalPath:          localPath,
		RemoteLastModified: result.lastModified,
		RemoteETag:         result.etag,
		LocalFileHash:      hashContent(result.content),
		DownloadCount:      downloadCount,
	}

	if err := s.repo.Upsert(ctx, entry); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"url":           url,
		"filename":      filename,
		"last_modified": result.lastModified,
		"etag":          result.etag,
	}).Info("CSV downloaded and cached")

	return &domain.CSVCacheResult{
		Data:         string(result.content),
		Filename:     filename,
		FromCache:    false,
		LastModified: result.lastModified,
	}, nil
}

// downloadWithHeaders fetches url, sending conditional headers when the
// caller knows a previous generation.
func (s *CSVCacheService) downloadWithHeaders(ctx context.Context, url, lastModified, etag string) (*downloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	result := &downloadResult{
		lastModified: resp.Header.Get("Last-Modified"),
		etag:         resp.Header.Get("ETag"),
		status:       resp.StatusCode,
	}

	if resp.StatusCode != http.StatusNotModified {
		content, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		result.content = content
	}

	return result, nil
}

// ClearCache removes all cached files and metadata rows.
func (s *CSVCacheService) ClearCache(ctx context.Context) error {
	files, err := os.ReadDir(s.cachePath)
	if err != nil {
		return fmt.Errorf("failed to read csv cache directory: %w", err)
	}

	for _, file := range files {
		if err := os.Remove(filepath.Join(s.cachePath, file.Name())); err != nil {
			return fmt.Errorf("failed to remove cached file %s: %w", file.Name(), err)
		}
	}

	if err := s.repo.DeleteAll(ctx); err != nil {
		return err
	}

	s.logger.Info("CSV cache cleared")
	return nil
}

// GetCacheStats reports entry count, on-disk size and entry age bounds.
func (s *CSVCacheService) GetCacheStats(ctx context.Context) (*domain.CSVCacheStats, error) {
	count, oldest, newest, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}

	var totalSize int64
	files, err := os.ReadDir(s.cachePath)
	if err == nil {
		for _, file := range files {
			if info, err := file.Info(); err == nil {
				totalSize += info.Size()
			}
		}
	}

	return &domain.CSVCacheStats{
		TotalEntries: count,
		TotalSize:    totalSize,
		OldestEntry:  oldest,
		NewestEntry:  newest,
	}, nil
}

// validateFileIntegrity recomputes the file's hash and compares it against
// the stored value.
func (s *CSVCacheService) validateFileIntegrity(path, expectedHash string) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return hashContent(content) == expectedHash
}

// generateFilename derives a collision-resistant name traceable to the source
// URL: a stable URL hash plus a timestamp component, so repeated downloads of
// the same URL never overwrite each other mid-flight.
func (s *CSVCacheService) generateFilename(url string) string {
	urlHash := md5.Sum([]byte(url))
	timestamp := strings.ReplaceAll(time.Now().UTC().Format("2006-01-02T15:04:05.000Z"), ":", "-")
	timestamp = strings.ReplaceAll(timestamp, ".", "-")
	return fmt.Sprintf("%s-%s.csv", hex.EncodeToString(urlHash[:]), timestamp)
}

// hashContent digests raw bytes for integrity detection.
func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func (s *CSVCacheService) cacheHit(url, lastModified string) {
	s.logger.WithFields(map[string]interface{}{
		"event":         "csv_cache_hit",
		"url":           url,
		"last_modified": lastModified,
	}).Info("CSV cache hit")
}

func (s *CSVCacheService) cacheMiss(url, reason string) {
	s.logger.WithFields(map[string]interface{}{
		"event":  "csv_cache_miss",
		"url":    url,
		"reason": reason,
	}).Info("CSV cache miss")
}
