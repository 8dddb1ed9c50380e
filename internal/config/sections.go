package config

import (
	"fmt"
	"os"
	"sort"
	"storm-truck-count/internal/domain"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultSection = "DEFAULT"
	envPrefix      = "STORM_"
	maxDepth       = 10
)

// Sections holds raw key/value pairs per section before interpolation.
// Section and key names are upper-cased; lookups are case-insensitive.
type Sections map[string]map[string]string

// ReadFile decodes a TOML credentials file into raw sections.
func ReadFile(path string) (Sections, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: config file %s: %w", domain.ErrConfig, path, err)
	}

	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse config file %s: %w", domain.ErrConfig, path, err)
	}

	return sectionsFrom(raw)
}

// ParseString decodes TOML text into raw sections.
func ParseString(data string) (Sections, error) {
	var raw map[string]any
	if _, err := toml.Decode(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse config: %w", domain.ErrConfig, err)
	}

	return sectionsFrom(raw)
}

func sectionsFrom(raw map[string]any) (Sections, error) {
	out := make(Sections, len(raw))
	for name, v := range raw {
		table, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: top-level key %q is not inside a section", domain.ErrConfig, name)
		}

		section := make(map[string]string, len(table))
		for key, val := range table {
			s, err := scalarString(val)
			if err != nil {
				return nil, fmt.Errorf("%w: [%s] %s: %w", domain.ErrConfig, name, key, err)
			}
			section[strings.ToUpper(key)] = s
		}
		out[strings.ToUpper(name)] = section
	}

	return out, nil
}

func scalarString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}

// ApplyEnv overrides values with STORM_<SECTION>_<KEY> variables.
// Sections named in known are addressable even when the file omits them.
func (s Sections) ApplyEnv(environ []string, known ...string) {
	names := make([]string, 0, len(s)+len(known))
	for name := range s {
		names = append(names, name)
	}
	for _, name := range known {
		names = append(names, strings.ToUpper(name))
	}
	// Longest section names first.
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envPrefix) {
			continue
		}
		rest := strings.ToUpper(strings.TrimPrefix(name, envPrefix))

		for _, section := range names {
			key, found := strings.CutPrefix(rest, section+"_")
			if !found || key == "" {
				continue
			}
			if s[section] == nil {
				s[section] = map[string]string{}
			}
			s[section][key] = value
			break
		}
	}
}

// Raw returns the uninterpolated value, falling back to [DEFAULT].
func (s Sections) Raw(section, key string) (string, bool) {
	section, key = strings.ToUpper(section), strings.ToUpper(key)
	if v, ok := s[section][key]; ok {
		return v, true
	}
	v, ok := s[defaultSection][key]
	return v, ok
}

// Get returns the interpolated value of section.key.
func (s Sections) Get(section, key string) (string, bool, error) {
	raw, ok := s.Raw(section, key)
	if !ok {
		return "", false, nil
	}

	v, err := s.interpolate(strings.ToUpper(section), raw, 1)
	if err != nil {
		return "", true, fmt.Errorf("%w: [%s] %s: %w", domain.ErrConfig, section, key, err)
	}
	return v, true, nil
}

// interpolate expands ${KEY} and ${SECTION:KEY} references; $$ is a literal dollar.
func (s Sections) interpolate(section, value string, depth int) (string, error) {
	if depth > maxDepth {
		return "", fmt.Errorf("interpolation depth exceeded (reference cycle?) in %q", value)
	}

	var b strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c != '$' {
			b.WriteByte(c)
			continue
		}

		if i+1 >= len(value) {
			return "", fmt.Errorf("'$' must be followed by '$' or '{' in %q", value)
		}

		switch value[i+1] {
		case '$':
			b.WriteByte('$')
			i++
		case '{':
			end := strings.IndexByte(value[i+2:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated reference in %q", value)
			}
			ref := value[i+2 : i+2+end]
			i += 2 + end

			refSection, refKey := section, ref
			if sec, key, ok := strings.Cut(ref, ":"); ok {
				refSection, refKey = strings.ToUpper(sec), key
			}
			if refKey == "" {
				return "", fmt.Errorf("empty reference in %q", value)
			}

			raw, ok := s.Raw(refSection, refKey)
			if !ok {
				return "", fmt.Errorf("bad reference ${%s}: no key %q in section %q", ref, refKey, refSection)
			}
			expanded, err := s.interpolate(refSection, raw, depth+1)
			if err != nil {
				return "", err
			}
			b.WriteString(expanded)
		default:
			return "", fmt.Errorf("'$' must be followed by '$' or '{' in %q", value)
		}
	}

	return b.String(), nil
}
