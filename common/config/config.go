package config

import (
	"os"

	"gopkg.in/yaml.v3"
	"vincit.fi/image-viewer/api/apitype"
)

// Config holds the viewer core options. Values not present in the
// file keep their defaults.
type Config struct {
	RecursiveScan     bool     `yaml:"recursive_scan"`
	SortKey           string   `yaml:"sort_key"`
	SortReverse       bool     `yaml:"sort_reverse"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	PrefetchForward   int      `yaml:"prefetch_forward"`
	PrefetchBackward  int      `yaml:"prefetch_backward"`
	EvictionDelayMs   int      `yaml:"eviction_delay_ms"`
	FrameRingCapacity int      `yaml:"frame_ring_capacity"`
	ThumbnailMaxEdge  int      `yaml:"thumbnail_max_edge_px"`
}

func Default() *Config {
	return &Config{
		RecursiveScan:     false,
		SortKey:           apitype.SortByName.String(),
		SortReverse:       false,
		AllowedExtensions: []string{"jpg", "jpeg", "png", "gif", "bmp", "webp"},
		PrefetchForward:   2,
		PrefetchBackward:  2,
		EvictionDelayMs:   2000,
		FrameRingCapacity: 20,
		ThumbnailMaxEdge:  256,
	}
}

// LoadFile loads configuration from the given path. A missing file is
// not an error and yields the defaults.
func LoadFile(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}

func (s *Config) ResolvedSortKey() apitype.SortKey {
	return apitype.SortKeyFromString(s.SortKey)
}

func (s *Config) AllowedExtensionSet() map[string]bool {
	extensions := map[string]bool{}
	for _, extension := range s.AllowedExtensions {
		extensions[extension] = true
	}
	return extensions
}
