// Package firmware serves over-the-air update images to sticks.
package firmware

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const objectName = "firmware.bin"

var ErrNotFound = errors.New("firmware not found")

// Image is an open firmware binary. The caller closes Body.
type Image struct {
	Version string
	Name    string
	Size    int64
	Body    io.ReadCloser
}

type Service struct {
	storage Storage
	latest  string
}

func NewService(storage Storage, latestVersion string) *Service {
	return &Service{storage: storage, latest: latestVersion}
}

func (s *Service) LatestVersion() string {
	return s.latest
}

// UpToDate reports whether a device on version needs nothing.
func (s *Service) UpToDate(version string) bool {
	return version != "" && version == s.latest
}

func ObjectKey(version string) string {
	return fmt.Sprintf("%s/%s", version, objectName)
}

// Latest opens the newest image. ErrNotFound means nothing is published for
// the configured version or no storage is configured.
func (s *Service) Latest(ctx context.Context) (*Image, error) {
	if s.storage == nil {
		return nil, ErrNotFound
	}
	body, size, err := s.storage.Open(ctx, ObjectKey(s.latest))
	if err != nil {
		return nil, err
	}
	return &Image{
		Version: s.latest,
		Name:    objectName,
		Size:    size,
		Body:    body,
	}, nil
}
