// Package persona – file.go implements the JSON file-backed Store.
package persona

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists persona records as JSON files:
//
//	<dataDir>/<session>/defaultAssistant.json
//	<dataDir>/<session>/owner.json
//	<dataDir>/<session>/offlineReason.json
//
// plus a single shared status file mapping session name -> online flag.
// Records are read through on every access, so a session always observes
// its own latest write.
type FileStore struct {
	dataDir    string
	statusFile string
	logger     *slog.Logger

	// statusMu serializes read-modify-write cycles on the shared status
	// file; the per-session record files are only touched by their own
	// session's goroutine.
	statusMu sync.Mutex
}

// NewFileStore creates a FileStore rooted at dataDir with the shared
// online-flag record at statusFile.
func NewFileStore(dataDir, statusFile string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		dataDir:    dataDir,
		statusFile: statusFile,
		logger:     logger.With("component", "persona"),
	}
}

type assistantRecord struct {
	Assistant string `json:"assistant"`
}

type ownerRecord struct {
	Owner  string `json:"owner"`
	Gender string `json:"gender,omitempty"`
}

type reasonRecord struct {
	Reason string `json:"reason"`
	Time   string `json:"time"`
}

// AssistantName returns the persisted assistant name, or
// DefaultAssistantName when absent or malformed.
func (s *FileStore) AssistantName(session string) string {
	var rec assistantRecord
	if !s.readRecord(session, "defaultAssistant.json", &rec) || rec.Assistant == "" {
		return DefaultAssistantName
	}
	return rec.Assistant
}

// SetAssistantName persists the assistant name for a session.
func (s *FileStore) SetAssistantName(session, name string) error {
	return s.writeRecord(session, "defaultAssistant.json", assistantRecord{Assistant: name})
}

// Owner returns the persisted owner record with defaults applied.
func (s *FileStore) Owner(session string) Owner {
	var rec ownerRecord
	if !s.readRecord(session, "owner.json", &rec) {
		return Owner{Name: DefaultOwnerName}
	}
	o := Owner{Name: rec.Owner}
	if o.Name == "" {
		o.Name = DefaultOwnerName
	}
	switch Gender(rec.Gender) {
	case GenderMale, GenderFemale:
		o.Gender = Gender(rec.Gender)
	}
	return o
}

// SetOwner persists the owner name, updating the gender only when it is
// exactly male or female. An existing gender survives a name-only update.
func (s *FileStore) SetOwner(session, name string, gender Gender) error {
	var rec ownerRecord
	s.readRecord(session, "owner.json", &rec)

	rec.Owner = name
	if gender == GenderMale || gender == GenderFemale {
		rec.Gender = string(gender)
	}
	return s.writeRecord(session, "owner.json", rec)
}

// OfflineReason returns the persisted offline reason with defaults applied.
func (s *FileStore) OfflineReason(session string) OfflineReason {
	var rec reasonRecord
	s.readRecord(session, "offlineReason.json", &rec)

	r := OfflineReason{Reason: rec.Reason, Time: rec.Time}
	if r.Reason == "" {
		r.Reason = DefaultOfflineReason
	}
	if r.Time == "" {
		r.Time = DefaultOfflineTime
	}
	return r
}

// SetOfflineReason persists the offline reason and the formatted time it
// was set.
func (s *FileStore) SetOfflineReason(session, reason, formattedTime string) error {
	return s.writeRecord(session, "offlineReason.json", reasonRecord{Reason: reason, Time: formattedTime})
}

// OnlineFlag reports the persisted online flag, defaulting to true.
func (s *FileStore) OnlineFlag(session string) bool {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	status := s.loadStatusLocked()
	online, ok := status[session]
	if !ok {
		return true
	}
	return online
}

// SetOnlineFlag persists the online flag for one session, leaving other
// sessions' entries intact.
func (s *FileStore) SetOnlineFlag(session string, online bool) error {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	status := s.loadStatusLocked()
	status[session] = online

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status file: %w", err)
	}
	if err := os.WriteFile(s.statusFile, data, 0o644); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	return nil
}

// loadStatusLocked reads the shared status file. Malformed or missing
// content yields an empty map. Caller must hold statusMu.
func (s *FileStore) loadStatusLocked() map[string]bool {
	status := make(map[string]bool)
	data, err := os.ReadFile(s.statusFile)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("unreadable status file, using defaults", "path", s.statusFile, "error", err)
		}
		return status
	}
	if err := json.Unmarshal(data, &status); err != nil {
		s.logger.Warn("malformed status file, using defaults", "path", s.statusFile, "error", err)
		return make(map[string]bool)
	}
	return status
}

// readRecord loads one per-session record file into out. Returns false
// when the file is absent or malformed; malformed records are logged.
func (s *FileStore) readRecord(session, file string, out any) bool {
	path := filepath.Join(s.dataDir, session, file)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("unreadable persona record, using defaults",
				"session", session, "record", file, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("malformed persona record, using defaults",
			"session", session, "record", file, "error", err)
		return false
	}
	return true
}

// writeRecord persists one per-session record file, creating the session
// directory when needed.
func (s *FileStore) writeRecord(session, file string, rec any) error {
	dir := filepath.Join(s.dataDir, session)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating persona dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", file, err)
	}
	if err := os.WriteFile(filepath.Join(dir, file), data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", file, err)
	}
	return nil
}
