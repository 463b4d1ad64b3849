// Package scene holds the static catalog of interview scenes together with
// the welcome text and canned reply pools keyed by scene id.
package scene

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ashureev/mock-interview/internal/domain"
	"gopkg.in/yaml.v3"
)

// FallbackLabel names sessions whose scene id is not in the catalog.
const FallbackLabel = "Interview"

//go:embed scenes.yaml
var defaultCatalog []byte

var errNoScenes = errors.New("catalog has no scenes")

type catalogFile struct {
	DefaultScene   string       `yaml:"default_scene"`
	GenericWelcome string       `yaml:"generic_welcome"`
	GenericReplies []string     `yaml:"generic_replies"`
	Scenes         []sceneEntry `yaml:"scenes"`
}

type sceneEntry struct {
	domain.InterviewScene `yaml:",inline"`
	Welcome               string   `yaml:"welcome"`
	Replies               []string `yaml:"replies"`
}

// Catalog is an immutable registry of interview scenes.
type Catalog struct {
	scenes         []domain.InterviewScene
	index          map[string]int
	welcome        map[string]string
	replies        map[string][]string
	defaultScene   string
	genericWelcome string
	genericReplies []string
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic("scene: invalid embedded catalog: " + err.Error())
	}
	return c
}

// Load reads a catalog from path. An empty path yields the embedded catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse scene catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if len(f.Scenes) == 0 {
		return nil, errNoScenes
	}
	if strings.TrimSpace(f.GenericWelcome) == "" {
		return nil, errors.New("generic_welcome is required")
	}
	if len(f.GenericReplies) == 0 {
		return nil, errors.New("generic_replies must not be empty")
	}

	c := &Catalog{
		scenes:         make([]domain.InterviewScene, 0, len(f.Scenes)),
		index:          make(map[string]int, len(f.Scenes)),
		welcome:        make(map[string]string, len(f.Scenes)),
		replies:        make(map[string][]string, len(f.Scenes)),
		genericWelcome: f.GenericWelcome,
		genericReplies: f.GenericReplies,
	}
	for i, entry := range f.Scenes {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("scene %d: id is required", i)
		}
		if _, dup := c.index[id]; dup {
			return nil, fmt.Errorf("scene %q: duplicate id", id)
		}
		if entry.Name == "" {
			return nil, fmt.Errorf("scene %q: name is required", id)
		}
		sc := entry.InterviewScene
		sc.ID = id
		c.index[id] = len(c.scenes)
		c.scenes = append(c.scenes, sc)
		if entry.Welcome != "" {
			c.welcome[id] = entry.Welcome
		}
		if len(entry.Replies) > 0 {
			c.replies[id] = entry.Replies
		}
	}

	c.defaultScene = f.DefaultScene
	if c.defaultScene == "" {
		c.defaultScene = c.scenes[0].ID
	}
	if _, ok := c.index[c.defaultScene]; !ok {
		return nil, fmt.Errorf("default_scene %q is not in the catalog", c.defaultScene)
	}
	return c, nil
}

// List returns the scenes in catalog order.
func (c *Catalog) List() []domain.InterviewScene {
	out := make([]domain.InterviewScene, len(c.scenes))
	copy(out, c.scenes)
	return out
}

// Get looks up a scene by id.
func (c *Catalog) Get(id string) (domain.InterviewScene, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.InterviewScene{}, false
	}
	return c.scenes[i], true
}

// Has reports whether id names a scene in the catalog.
func (c *Catalog) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Label returns the display name for id, or FallbackLabel for unknown ids.
func (c *Catalog) Label(id string) string {
	if sc, ok := c.Get(id); ok {
		return sc.Name
	}
	return FallbackLabel
}

// DefaultSceneID returns the scene selected when nothing else is.
func (c *Catalog) DefaultSceneID() string {
	return c.defaultScene
}

// Welcome returns the greeting for a new session in scene id,
// falling back to the generic greeting.
func (c *Catalog) Welcome(id string) string {
	if w, ok := c.welcome[id]; ok {
		return w
	}
	return c.genericWelcome
}

// Replies returns the canned reply pool for scene id, falling back to the
// generic pool. The returned slice must not be modified.
func (c *Catalog) Replies(id string) []string {
	if r, ok := c.replies[id]; ok {
		return r
	}
	return c.genericReplies
}
