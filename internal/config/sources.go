package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrSourceExists   = errors.New("source already exists")
	ErrSourceNotFound = errors.New("source not found")
)

// sourceEntry is the YAML written for a source added from the command line.
type sourceEntry struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Strategy string `yaml:"strategy,omitempty"`
}

// AddSource appends a source to the config file at path. The rest of the
// file, comments included, is kept as written. The edited config must still
// validate.
func AddSource(path string, src Source) error {
	src.Name = strings.TrimSpace(src.Name)
	if src.Name == "" {
		return fmt.Errorf("%w: source name is required", ErrInvalid)
	}

	return editSources(path, func(seq *yaml.Node) error {
		if sourceIndex(seq, src.Name) >= 0 {
			return fmt.Errorf("%w: %q", ErrSourceExists, src.Name)
		}
		entry := sourceEntry{Name: src.Name, URL: strings.TrimSpace(src.URL)}
		if src.Strategy != "" && src.Strategy != StrategyFeed {
			entry.Strategy = src.Strategy
		}
		var n yaml.Node
		if err := n.Encode(entry); err != nil {
			return err
		}
		seq.Content = append(seq.Content, &n)
		return nil
	})
}

// RemoveSource deletes the named source from the config file at path.
func RemoveSource(path, name string) error {
	name = strings.TrimSpace(name)
	return editSources(path, func(seq *yaml.Node) error {
		i := sourceIndex(seq, name)
		if i < 0 {
			return fmt.Errorf("%w: %q", ErrSourceNotFound, name)
		}
		seq.Content = append(seq.Content[:i], seq.Content[i+1:]...)
		return nil
	})
}

// editSources applies edit to the sources sequence of the config file,
// validates the result and replaces the file.
func editSources(path string, edit func(seq *yaml.Node) error) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("%w: config root must be a mapping", ErrInvalid)
	}

	seq := sourcesNode(doc.Content[0])
	if err := edit(seq); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	cfg, err := parse(buf.Bytes())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

// sourcesNode returns the sources sequence of root, adding an empty one
// when the key is missing.
func sourcesNode(root *yaml.Node) *yaml.Node {
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "sources" {
			v := root.Content[i+1]
			if v.Kind != yaml.SequenceNode {
				*v = yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			}
			return v
		}
	}
	key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "sources"}
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
	root.Content = append([]*yaml.Node{key, seq}, root.Content...)
	return seq
}

func sourceIndex(seq *yaml.Node, name string) int {
	for i, item := range seq.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(item.Content); j += 2 {
			if item.Content[j].Value == "name" && strings.TrimSpace(item.Content[j+1].Value) == name {
				return i
			}
		}
	}
	return -1
}

func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
