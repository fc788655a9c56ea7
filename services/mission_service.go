package services

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/open-teleop/airscan/pkg/config"
	customlog "github.com/open-teleop/airscan/pkg/log"
	"gopkg.in/yaml.v3"
)

// ErrInvalidMission marks updates rejected before anything was written.
var ErrInvalidMission = errors.New("invalid mission")

// MissionPublisher announces mission changes, e.g. on the message bus.
type MissionPublisher interface {
	PublishMissionUpdatedNotification(m *config.Mission) error
}

// MissionService defines the interface for managing the survey mission.
type MissionService interface {
	LoadMission() error
	GetCurrentMission() *config.Mission
	GetCurrentMissionYAML() ([]byte, error)
	UpdateMission(newMissionYAML []byte) error
	PersistMission(yamlData []byte) error
	SetPublisher(p MissionPublisher)
}

// missionService implements the MissionService interface.
type missionService struct {
	missionPath string
	logger      customlog.Logger
	publisher   MissionPublisher
	current     *config.Mission
	mu          sync.RWMutex
}

// NewMissionService creates a MissionService backed by missionPath. When the
// file is missing or invalid the built-in grid is used until a mission is
// uploaded.
func NewMissionService(missionPath string, logger customlog.Logger) (MissionService, error) {
	if missionPath == "" {
		return nil, fmt.Errorf("mission path cannot be empty")
	}
	if logger == nil {
		logger = customlog.Must("info", "")
	}

	service := &missionService{
		missionPath: missionPath,
		logger:      logger,
	}

	if err := service.LoadMission(); err != nil {
		logger.Warnf("Initial load of mission '%s' failed: %v. Using the default grid.", missionPath, err)
		service.current = config.DefaultMission()
		return service, nil
	}

	logger.Infof("MissionService initialized for path: %s", missionPath)
	return service, nil
}

// LoadMission reads the mission file from disk and makes it current. The
// current mission is kept when the file cannot be used.
func (s *missionService) LoadMission() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Infof("Loading mission from: %s", s.missionPath)
	m, err := config.LoadMission(s.missionPath)
	if err != nil {
		return fmt.Errorf("error loading mission '%s': %w", s.missionPath, err)
	}

	s.current = m
	s.logger.Infof("Loaded mission %s with %d waypoints", m.Name, len(m.Waypoints))
	return nil
}

// GetCurrentMission returns the current mission. Callers must not modify it;
// changes go through UpdateMission.
func (s *missionService) GetCurrentMission() *config.Mission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// GetCurrentMissionYAML returns the mission file as stored, or the current
// mission encoded as YAML when there is no file yet.
func (s *missionService) GetCurrentMissionYAML() ([]byte, error) {
	s.mu.RLock()
	path := s.missionPath
	current := s.current
	s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading mission file '%s': %w", path, err)
	}
	s.logger.Debugf("Mission file '%s' does not exist, encoding current mission", path)
	return yaml.Marshal(current)
}

// UpdateMission validates, persists and applies a mission given as YAML,
// then notifies the publisher without waiting for it.
func (s *missionService) UpdateMission(newMissionYAML []byte) error {
	m, err := config.ParseMission(newMissionYAML)
	if err != nil {
		s.logger.Errorf("Rejected mission update: %v", err)
		return fmt.Errorf("%w: %v", ErrInvalidMission, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistMissionUnlocked(newMissionYAML); err != nil {
		return err
	}

	oldName := "N/A"
	if s.current != nil {
		oldName = s.current.Name
	}
	s.current = m
	s.logger.Infof("Mission updated: %s -> %s (%d waypoints)", oldName, m.Name, len(m.Waypoints))

	if s.publisher != nil {
		go func(publisher MissionPublisher) {
			if err := publisher.PublishMissionUpdatedNotification(m); err != nil {
				s.logger.Warnf("Failed to publish mission update notification: %v", err)
			}
		}(s.publisher)
	}
	return nil
}

// PersistMission writes yamlData to the mission file.
func (s *missionService) PersistMission(yamlData []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistMissionUnlocked(yamlData)
}

func (s *missionService) persistMissionUnlocked(yamlData []byte) error {
	if err := os.WriteFile(s.missionPath, yamlData, 0644); err != nil {
		s.logger.Errorf("Error writing mission file '%s': %v", s.missionPath, err)
		return fmt.Errorf("error writing mission file '%s': %w", s.missionPath, err)
	}
	s.logger.Debugf("Persisted mission to %s", s.missionPath)
	return nil
}

// SetPublisher allows injecting the publisher after initialization.
func (s *missionService) SetPublisher(p MissionPublisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}
