// Package i18n serves the bot's message catalogs. Each YAML file holds one
// or more top-level language codes with nested keys addressed as
// "section.name".
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var embedded embed.FS

type catalog map[string]string

// Translator resolves localized strings using dot-separated keys.
type Translator interface {
	T(key string) string
	Tf(key string, args ...any) string
	Has(key string) bool
	Lang() string
}

// Manager stores all available catalogs.
type Manager struct {
	catalogs    map[string]catalog
	defaultLang string
}

// Load loads the catalogs compiled into the binary.
func Load(defaultLang string) (*Manager, error) {
	return LoadFS(embedded, "locales", defaultLang)
}

// LoadFromDir loads catalogs from a directory of YAML files.
func LoadFromDir(dir, defaultLang string) (*Manager, error) {
	return LoadFS(os.DirFS(dir), ".", defaultLang)
}

// LoadFS loads every YAML file in dir of fsys. Files are merged in name
// order, so later files override earlier keys.
func LoadFS(fsys fs.FS, dir, defaultLang string) (*Manager, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("i18n: read dir %s: %w", dir, err)
	}

	m := &Manager{
		catalogs:    make(map[string]catalog),
		defaultLang: normalize(defaultLang),
	}
	if m.defaultLang == "" {
		m.defaultLang = "en"
	}

	files := 0
	for _, entry := range entries {
		ext := strings.ToLower(path.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		files++
		if err := m.loadFile(fsys, path.Join(dir, entry.Name())); err != nil {
			return nil, err
		}
	}

	if files == 0 {
		return nil, fmt.Errorf("i18n: no yaml files found in %s", dir)
	}
	if _, ok := m.catalogs[m.defaultLang]; !ok {
		return nil, fmt.Errorf("i18n: default language %q is missing", m.defaultLang)
	}
	return m, nil
}

func (m *Manager) loadFile(fsys fs.FS, name string) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("i18n: read file %s: %w", name, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("i18n: parse file %s: %w", name, err)
	}

	for lang, tree := range doc {
		lang = normalize(lang)
		section, ok := tree.(map[string]any)
		if lang == "" || !ok {
			continue
		}
		c := m.catalogs[lang]
		if c == nil {
			c = make(catalog)
			m.catalogs[lang] = c
		}
		c.add("", section)
	}
	return nil
}

func (c catalog) add(prefix string, tree map[string]any) {
	for key, value := range tree {
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]any:
			c.add(key, v)
		case nil:
		default:
			c[key] = fmt.Sprint(v)
		}
	}
}

// Translator returns a translator for lang, or for the default language
// when lang has no catalog.
func (m *Manager) Translator(lang string) Translator {
	if m == nil {
		return translator{}
	}

	lang = normalize(lang)
	if _, ok := m.catalogs[lang]; !ok {
		lang = m.defaultLang
	}
	return translator{
		lang:     lang,
		primary:  m.catalogs[lang],
		fallback: m.catalogs[m.defaultLang],
	}
}

// Languages returns the loaded language codes in sorted order.
func (m *Manager) Languages() []string {
	if m == nil {
		return nil
	}

	langs := make([]string, 0, len(m.catalogs))
	for lang := range m.catalogs {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Missing lists the keys of the default catalog that lang lacks.
func (m *Manager) Missing(lang string) []string {
	if m == nil {
		return nil
	}

	have := m.catalogs[normalize(lang)]
	var missing []string
	for key := range m.catalogs[m.defaultLang] {
		if _, ok := have[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

type translator struct {
	lang     string
	primary  catalog
	fallback catalog
}

func (t translator) Lang() string {
	return t.lang
}

func (t translator) T(key string) string {
	if value, ok := t.lookup(key); ok {
		return value
	}
	return strings.TrimSpace(key)
}

// Tf formats the resolved string with fmt verbs.
func (t translator) Tf(key string, args ...any) string {
	value := t.T(key)
	if len(args) == 0 {
		return value
	}
	return fmt.Sprintf(value, args...)
}

func (t translator) Has(key string) bool {
	_, ok := t.lookup(key)
	return ok
}

func (t translator) lookup(key string) (string, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}
	if value, ok := t.primary[key]; ok {
		return value, true
	}
	value, ok := t.fallback[key]
	return value, ok
}

func normalize(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}
