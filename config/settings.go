package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// ErrNoProjectName is returned when package.json does not declare a name.
var ErrNoProjectName = errors.New("package.json has no name")

// Overlay file names, tried in order. The first one found wins.
const (
	YAMLFile = "themekit.yaml"
	TOMLFile = "themekit.toml"
)

const (
	DefaultProxy  = "http://localhost:8888/"
	DefaultListen = ":3000"
)

// Settings is the project configuration read once at startup.
type Settings struct {
	// ProjectName is the "name" field of package.json.
	ProjectName string
	// Proxy is the URL of the WordPress server the dev server fronts.
	Proxy string
	// Listen is the address the dev server binds.
	Listen string
	// Debounce coalesces watch events per file when positive.
	Debounce time.Duration
	// Queue runs at most one invocation per watch binding at a time.
	Queue bool
	// Paths overrides entries of DefaultEntries.
	Paths map[Category]Entry
	// File is the overlay file that was applied, if any.
	File string
}

// fileConfig is the shape of themekit.yaml and themekit.toml.
type fileConfig struct {
	Proxy  string `yaml:"proxy" toml:"proxy"`
	Listen string `yaml:"listen" toml:"listen"`
	Watch  struct {
		Debounce string `yaml:"debounce" toml:"debounce"`
		Queue    bool   `yaml:"queue" toml:"queue"`
	} `yaml:"watch" toml:"watch"`
	Paths map[string]Entry `yaml:"paths" toml:"paths"`
}

// Load reads package.json and the optional overlay file in root.
func Load(root string) (*Settings, error) {
	name, err := readProjectName(filepath.Join(root, "package.json"))
	if err != nil {
		return nil, err
	}
	s := &Settings{
		ProjectName: name,
		Proxy:       DefaultProxy,
		Listen:      DefaultListen,
	}

	fc, file, err := readOverlay(root)
	if err != nil {
		return nil, err
	}
	if fc == nil {
		return s, nil
	}
	if err := s.apply(fc); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	s.File = file
	return s, nil
}

func readProjectName(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read project metadata: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("%s: invalid JSON", path)
	}
	name := gjson.GetBytes(data, "name")
	if name.Type != gjson.String || name.String() == "" {
		return "", fmt.Errorf("%s: %w", path, ErrNoProjectName)
	}
	return name.String(), nil
}

// readOverlay returns the decoded overlay file, or nil when there is none.
func readOverlay(root string) (*fileConfig, string, error) {
	for _, name := range []string{YAMLFile, TOMLFile} {
		path := filepath.Join(root, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", path, err)
		}

		var fc fileConfig
		switch name {
		case YAMLFile:
			err = yaml.Unmarshal(data, &fc)
		case TOMLFile:
			err = toml.Unmarshal(data, &fc)
		}
		if err != nil {
			return nil, "", fmt.Errorf("parse %s: %w", path, err)
		}
		return &fc, path, nil
	}
	return nil, "", nil
}

func (s *Settings) apply(fc *fileConfig) error {
	if fc.Proxy != "" {
		s.Proxy = fc.Proxy
	}
	if fc.Listen != "" {
		s.Listen = fc.Listen
	}
	if fc.Watch.Debounce != "" {
		d, err := time.ParseDuration(fc.Watch.Debounce)
		if err != nil {
			return fmt.Errorf("watch.debounce: %w", err)
		}
		s.Debounce = d
	}
	s.Queue = fc.Watch.Queue

	if len(fc.Paths) > 0 {
		s.Paths = make(map[Category]Entry, len(fc.Paths))
		for name, e := range fc.Paths {
			s.Paths[Category(name)] = e
		}
	}
	return nil
}

// PathConfig builds the path table for root from these settings.
func (s *Settings) PathConfig(root string) (*PathConfig, error) {
	return NewPathConfig(root, s.ProjectName, s.Paths)
}
