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

	logx "tgproxy/pkg/logx"
)

// fileStore keeps the journal in <prefix>.deliveries.jsonl and the last Keep
// records per channel in memory. The file is compacted down to the retained
// records once it holds compactFactor times more lines.
type fileStore struct {
	log  logx.Logger
	keep int
	text bool
	path string

	mu     sync.Mutex
	f      *os.File
	recent map[string][]DeliveryRecord // oldest first
	lines  int
}

const compactFactor = 4

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:    log,
		keep:   cfg.Keep,
		text:   cfg.RecordText,
		path:   filepath.Join(dir, base) + ".deliveries.jsonl",
		recent: map[string][]DeliveryRecord{},
	}
	if err := s.replay(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("delivery journal replay failed", logx.String("path", s.path), logx.Err(err))
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.f = f
	return s, nil
}

func (s *fileStore) replay() error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		var r DeliveryRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Channel == "" {
			continue
		}
		s.remember(r)
		s.lines++
	}
	return sc.Err()
}

func (s *fileStore) remember(r DeliveryRecord) {
	list := append(s.recent[r.Channel], r)
	if len(list) > s.keep {
		list = append(list[:0:0], list[len(list)-s.keep:]...)
	}
	s.recent[r.Channel] = list
}

func (s *fileStore) retained() int {
	n := 0
	for _, l := range s.recent {
		n += len(l)
	}
	return n
}

func (s *fileStore) AppendDelivery(_ context.Context, r DeliveryRecord) error {
	r.Text = recordedText(s.text, r.Text)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.f).Encode(r); err != nil {
		return err
	}
	s.remember(r)
	s.lines++
	if s.lines > compactFactor*max(s.retained(), s.keep) {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("delivery journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentDeliveries(_ context.Context, channel string, limit int) ([]DeliveryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil, ErrClosed
	}
	list := s.recent[channel]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]DeliveryRecord, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

// compactLocked rewrites the file with the retained records only.
func (s *fileStore) compactLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	n := 0
	for _, list := range s.recent {
		for _, r := range list {
			if err := enc.Encode(r); err != nil {
				_ = f.Close()
				return err
			}
			n++
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}

	nf, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	_ = s.f.Close()
	s.f = nf
	s.lines = n
	s.log.Debug("delivery journal compacted", logx.Int("records", n))
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
