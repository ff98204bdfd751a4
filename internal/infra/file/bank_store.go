// Package file stores question banks as JSON files, one per (group, bank):
//
//	<dir>/<group key>/<bank key>.json
//
// Keys are domain.StorageKey values. Each file holds the unsanitized group and
// bank names next to the questions, so names survive a reload. Files holding a
// bare question array are still read, named after their path.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"channel-quiz-service/internal/domain"
)

const ext = ".json"

// bankFile is the on-disk envelope of one bank.
type bankFile struct {
	Group string            `json:"group"`
	Name  string            `json:"name"`
	Items []domain.Question `json:"items"`
}

type BankStore struct {
	dir string
}

func NewBankStore(dir string) (*BankStore, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create bank dir: %w", err)
	}
	return &BankStore{dir: dir}, nil
}

// Path returns the file a bank is written to.
func (s *BankStore) Path(groupID, name string) string {
	return filepath.Join(s.dir, segment(groupID), segment(name)+ext)
}

// segment keeps keys like ".." from leaving the bank directory.
func segment(name string) string {
	key := domain.StorageKey(name)
	if strings.Trim(key, ".") == "" {
		return strings.Repeat("_", len(key)+1)
	}
	return key
}

// Put overwrites the bank file; the last writer wins.
func (s *BankStore) Put(_ context.Context, groupID, name string, items []domain.Question) error {
	path := s.Path(groupID, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create group dir: %w", err)
	}
	if items == nil {
		items = []domain.Question{}
	}
	data, err := json.MarshalIndent(bankFile{Group: groupID, Name: name, Items: items}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bank: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".bank-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write bank: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close bank: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace bank: %w", err)
	}
	return nil
}

// ListAll walks the directory; unreadable or malformed files are skipped.
func (s *BankStore) ListAll(_ context.Context) ([]domain.StoredBank, error) {
	groups, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bank dir: %w", err)
	}

	var out []domain.StoredBank
	for _, group := range groups {
		if !group.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.dir, group.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ext {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(s.dir, group.Name(), f.Name()))
			if err != nil {
				continue
			}
			bank, err := decodeBank(raw, group.Name(), strings.TrimSuffix(f.Name(), ext))
			if err != nil {
				continue
			}
			out = append(out, bank)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupID != out[j].GroupID {
			return out[i].GroupID < out[j].GroupID
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// decodeBank reads an envelope, or a bare question array named after its path.
func decodeBank(raw []byte, groupKey, nameKey string) (domain.StoredBank, error) {
	bank := domain.StoredBank{GroupID: groupKey, Name: nameKey}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		err := json.Unmarshal(trimmed, &bank.Items)
		return bank, err
	}
	var f bankFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return bank, err
	}
	if f.Group != "" {
		bank.GroupID = f.Group
	}
	if f.Name != "" {
		bank.Name = f.Name
	}
	bank.Items = f.Items
	return bank, nil
}
