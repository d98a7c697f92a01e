package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "nudgebot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.audit.jsonl                 (append-only JSON Lines)
//   - <prefix>.obligations.snapshot.json   (periodic snapshot)
//   - <prefix>.obligations.journal.jsonl   (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditFile *os.File

	snapshotPath string
	journalFile  *os.File
	obligations  map[string]Obligation

	journalWrites int
}

type journalRecord struct {
	Op         string      `json:"op"` // "put", "del", "clear"
	Key        string      `json:"key,omitempty"`
	Obligation *Obligation `json:"obligation,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, unavailable(err)
	}

	auditPath := prefix + ".audit.jsonl"
	snapPath := prefix + ".obligations.snapshot.json"
	journalPath := prefix + ".obligations.journal.jsonl"

	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, unavailable(err)
	}

	// Load obligations from snapshot + journal.
	obligations := map[string]Obligation{}
	_ = loadSnapshot(snapPath, obligations)
	_ = replayJournal(journalPath, obligations)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, unavailable(err)
	}

	return &fileStore{
		log:          log,
		auditFile:    af,
		snapshotPath: snapPath,
		journalFile:  jf,
		obligations:  obligations,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.auditFile != nil {
		err1 = s.auditFile.Close()
		s.auditFile = nil
	}
	if s.journalFile != nil {
		// Final compact so restarts replay a short journal.
		_ = s.compactLocked()
		err2 = s.journalFile.Close()
		s.journalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) UpsertObligation(ctx context.Context, o Obligation) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return unavailable(errors.New("obligation journal closed"))
	}
	s.obligations[o.Key()] = o
	return s.appendLocked(journalRecord{Op: "put", Key: o.Key(), Obligation: &o})
}

func (s *fileStore) DeleteObligation(ctx context.Context, userID, threadID string) error {
	_ = ctx
	key := obligationKey(userID, threadID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return unavailable(errors.New("obligation journal closed"))
	}
	if _, ok := s.obligations[key]; !ok {
		return nil
	}
	delete(s.obligations, key)
	return s.appendLocked(journalRecord{Op: "del", Key: key})
}

func (s *fileStore) GetObligation(ctx context.Context, userID, threadID string) (Obligation, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.obligations[obligationKey(userID, threadID)]
	return o, ok, nil
}

func (s *fileStore) ListObligations(ctx context.Context) ([]Obligation, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Obligation, 0, len(s.obligations))
	for _, o := range s.obligations {
		out = append(out, o)
	}
	return out, nil
}

func (s *fileStore) DeleteAllObligations(ctx context.Context) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return 0, unavailable(errors.New("obligation journal closed"))
	}
	n := len(s.obligations)
	if n == 0 {
		return 0, nil
	}
	s.obligations = map[string]Obligation{}
	return n, s.appendLocked(journalRecord{Op: "clear"})
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return unavailable(errors.New("audit file closed"))
	}
	if err := json.NewEncoder(s.auditFile).Encode(e); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if err := json.NewEncoder(s.journalFile).Encode(r); err != nil {
		return unavailable(err)
	}
	s.journalWrites++
	if s.journalWrites%256 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("obligation journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.obligations); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]Obligation) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]Obligation
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]Obligation) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Op {
		case "put":
			if r.Obligation != nil {
				out[r.Obligation.Key()] = *r.Obligation
			}
		case "del":
			delete(out, r.Key)
		case "clear":
			for k := range out {
				delete(out, k)
			}
		}
	}
	return sc.Err()
}
