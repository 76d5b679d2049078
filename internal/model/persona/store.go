package persona

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Store exposes profile retrieval for HTTP handlers and the screen controller.
type Store interface {
	List() []Profile
	FindByID(id string) (Profile, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Profile
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied profiles.
func NewMemoryStore(items []Profile) *MemoryStore {
	return &MemoryStore{items: append([]Profile(nil), items...)}
}

// List returns the configured profiles.
func (s *MemoryStore) List() []Profile {
	return append([]Profile(nil), s.items...)
}

// FindByID looks up a profile by identifier.
func (s *MemoryStore) FindByID(id string) (Profile, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Profile{}, false
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadProfiles 从 YAML 文件读取 persona 模板，同名模板覆盖内置模板。
func LoadProfiles(path string, base []Profile) ([]Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile file: %w", err)
	}
	return ParseProfiles(raw, base)
}

// ParseProfiles 解析 YAML 格式的模板列表并与 base 合并。
func ParseProfiles(raw []byte, base []Profile) ([]Profile, error) {
	var file profileFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse profile file: %w", err)
	}

	merged := append([]Profile(nil), base...)
	for _, p := range file.Profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("profile without id")
		}
		switch p.Backend {
		case BackendCustom, BackendBasic, BackendStock:
		case "":
			p.Backend = BackendCustom
		default:
			return nil, fmt.Errorf("profile %s: unknown backend %q", p.ID, p.Backend)
		}

		replaced := false
		for i := range merged {
			if merged[i].ID == p.ID {
				merged[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, p)
		}
	}
	return merged, nil
}
