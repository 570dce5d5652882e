package service

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/codebyem/IndiaLimaYankee/internal/models"
)

// DinoStore serves the dinosaur of the day from a static list.
type DinoStore struct {
	dinos  []models.Dino
	byName map[string]int
}

func NewDinoStore(dinos []models.Dino) *DinoStore {
	s := &DinoStore{dinos: dinos, byName: make(map[string]int, len(dinos))}
	for i, d := range dinos {
		s.byName[strings.ToLower(d.Name)] = i
	}
	return s
}

// LoadDinos reads a JSON array of dinos from path.
func LoadDinos(path string) (*DinoStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dino data: %w", err)
	}
	var dinos []models.Dino
	if err := json.Unmarshal(data, &dinos); err != nil {
		return nil, fmt.Errorf("parse dino data %s: %w", path, err)
	}
	return NewDinoStore(dinos), nil
}

func (s *DinoStore) Len() int { return len(s.dinos) }

// Today picks one dino per calendar day in loc, rotating through the list.
func (s *DinoStore) Today(now time.Time, loc *time.Location) (models.Dino, bool) {
	if len(s.dinos) == 0 {
		return models.Dino{}, false
	}
	y, m, d := now.In(loc).Date()
	days := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
	i := int(days % int64(len(s.dinos)))
	if i < 0 {
		i += len(s.dinos)
	}
	return s.dinos[i], true
}

// ByName looks a dino up case-insensitively.
func (s *DinoStore) ByName(name string) (models.Dino, bool) {
	i, ok := s.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return models.Dino{}, false
	}
	return s.dinos[i], true
}
