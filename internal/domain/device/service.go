// Package device provides the per-install device identity. The catalog
// API associates sessions and playback history with a device, so the
// identifier must survive restarts and reinstalls of the shell.
package device

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Info contains the device identity.
type Info struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Service manages the persisted device identity.
type Service struct {
	mu         sync.RWMutex
	configPath string
	info       Info
}

// NewService loads the device identity from configPath, generating and
// persisting a new one when none exists.
func NewService(configPath string) (*Service, error) {
	svc := &Service{configPath: configPath}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := svc.load(); err != nil {
		log.Debug().Err(err).Msg("No existing device identity, generating a new one")
		svc.info.UUID = uuid.New().String()
		svc.info.Name = defaultDeviceName()

		if err := svc.save(); err != nil {
			return nil, fmt.Errorf("failed to save device identity: %w", err)
		}
	}

	log.Info().
		Str("uuid", svc.info.UUID).
		Str("name", svc.info.Name).
		Msg("Device identity initialized")

	return svc, nil
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.configPath)
	if err != nil {
		return err
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("invalid identity format: %w", err)
	}
	if info.UUID == "" {
		return fmt.Errorf("identity missing UUID")
	}
	if info.Name == "" {
		info.Name = defaultDeviceName()
	}

	s.info = info
	return nil
}

func (s *Service) save() error {
	data, err := json.MarshalIndent(s.info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.configPath, data, 0644)
}

// Identity returns the current device identity.
func (s *Service) Identity() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// UUID returns just the device UUID.
func (s *Service) UUID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info.UUID
}

// SetName updates the device name and persists it.
func (s *Service) SetName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info.Name = name
	return s.save()
}

// defaultDeviceName falls back to the application name when the host
// has no usable hostname.
func defaultDeviceName() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "Chorale"
	}
	return hostname
}
