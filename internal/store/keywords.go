package store

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

var ErrEmptyKeyword = errors.New("keyword is empty")

// Keywords is the tracked keyword list. It starts from the configured seed
// and grows through Add; additions are persisted to keywords.json.
type Keywords struct {
	mu   sync.RWMutex
	path string
	list []string
}

type keywordsFileBody struct {
	Keywords []string `json:"keywords"`
}

func loadKeywords(path string, seed []string) (*Keywords, error) {
	k := &Keywords{path: path}
	for _, s := range seed {
		k.push(s)
	}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return k, nil
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var body keywordsFileBody
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for _, s := range body.Keywords {
		k.push(s)
	}
	return k, nil
}

// Tracked returns a copy of the current list.
func (k *Keywords) Tracked() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return slices.Clone(k.list)
}

// Add tracks keyword from the next check on. It reports false when the
// keyword is already tracked, compared case-insensitively.
func (k *Keywords) Add(keyword string) (bool, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return false, ErrEmptyKeyword
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.push(keyword) {
		return false, nil
	}
	if err := writeFileAtomic(k.path, keywordsFileBody{Keywords: k.list}); err != nil {
		k.list = k.list[:len(k.list)-1]
		return false, err
	}
	return true, nil
}

func (k *Keywords) push(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, have := range k.list {
		if strings.EqualFold(have, s) {
			return false
		}
	}
	k.list = append(k.list, s)
	return true
}
