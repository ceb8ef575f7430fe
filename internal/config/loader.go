package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type SourceKind string

const (
	SourceDefault SourceKind = "default"
	// SourceFile marks a key set by the top-level config file.
	SourceFile SourceKind = "file"
	// SourceInclude marks a key set by a file pulled in through include.
	SourceInclude SourceKind = "include"
)

type Source struct {
	Kind   SourceKind
	File   string
	Line   int
	Column int
}

func (s Source) located() bool {
	return s.Kind != SourceDefault && s.File != "" && s.Line > 0
}

type LoadResult struct {
	Config  *Config
	Sources map[string]Source // dotted key -> file that last set it
	Files   []string          // every file read, in merge order
	Path    string
}

func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "wingroup", "config.yaml"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "wingroup", "config.yaml"), nil
}

// Load reads the configuration from the standard location.
func Load() (*Config, error) {
	res, err := LoadWithSources()
	if err != nil {
		return nil, err
	}
	return res.Config, nil
}

// LoadWithSources is Load plus the per-key origin used by `config explain`.
func LoadWithSources() (*LoadResult, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads path and everything it includes. A missing file yields
// the defaults.
//
// Included files are merged in the order listed, then the including file on
// top. Relative socket paths, both the daemon's own and each mesh peer's,
// are taken relative to the directory of the file that names them, so a
// peer fragment in conf.d can sit next to the sockets it points at.
func LoadFromPath(path string) (*LoadResult, error) {
	l := &loader{
		seen:    map[string]bool{},
		sources: map[string]Source{},
	}

	if _, err := os.Stat(path); err == nil {
		if err := l.load(path, SourceFile); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	cfg, err := BuildEffectiveConfig(l.raw)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, l.locate(err)
	}

	return &LoadResult{
		Config:  cfg,
		Sources: l.sources,
		Files:   l.files,
		Path:    path,
	}, nil
}

// loader accumulates one LoadFromPath call. Files are merged depth first so
// that an include always lands beneath the file that asked for it.
type loader struct {
	raw     RawConfig
	sources map[string]Source
	files   []string
	seen    map[string]bool
	stack   []string
}

func (l *loader) load(path string, kind SourceKind) error {
	file, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	if real, err := filepath.EvalSymlinks(file); err == nil {
		file = real
	}

	for _, open := range l.stack {
		if open == file {
			return fmt.Errorf("include cycle detected: %s -> %s", strings.Join(l.stack, " -> "), file)
		}
	}
	// A fragment reachable from two includes is merged once, at its first
	// position.
	if l.seen[file] {
		return nil
	}
	l.seen[file] = true

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("%s: failed to read: %w", file, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%s: failed to parse yaml: %w", file, err)
	}
	var raw RawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && err != io.EOF {
		return fmt.Errorf("%s: %w", file, err)
	}

	root := documentRoot(&doc)

	l.stack = append(l.stack, file)
	for _, inc := range includeNodes(root) {
		paths, err := expandInclude(file, inc.Value)
		if err != nil {
			return fmt.Errorf("%s:%d:%d: include %q: %w", file, inc.Line, inc.Column, inc.Value, err)
		}
		for _, p := range paths {
			if err := l.load(p, SourceInclude); err != nil {
				return err
			}
		}
	}
	l.stack = l.stack[:len(l.stack)-1]

	if err := anchorSockets(&raw, filepath.Dir(file)); err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	l.raw = l.raw.merge(raw)
	recordSources(root, Source{Kind: kind, File: file}, "", l.sources)
	l.files = append(l.files, file)
	return nil
}

// locate attaches the origin of the offending key to a validation error.
func (l *loader) locate(err error) error {
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Path == "" {
		return err
	}
	if src, ok := l.sources[verr.Path]; ok {
		verr.Source = src
	}
	return err
}

// anchorSockets rewrites relative socket paths in raw against dir. Peers
// without a socket keep the empty value so ResolvedPeers can derive one
// from the peer id.
func anchorSockets(raw *RawConfig, dir string) error {
	if raw.Socket != nil && *raw.Socket != "" {
		p, err := resolvePath(dir, *raw.Socket)
		if err != nil {
			return fmt.Errorf("socket: %w", err)
		}
		raw.Socket = &p
	}
	if raw.Mesh == nil {
		return nil
	}
	for i, peer := range raw.Mesh.Peers {
		if peer.Socket == "" {
			continue
		}
		p, err := resolvePath(dir, peer.Socket)
		if err != nil {
			return fmt.Errorf("mesh.peers[%d].socket: %w", i, err)
		}
		raw.Mesh.Peers[i].Socket = p
	}
	return nil
}

// expandInclude turns one include entry into the files it names: a file, a
// directory of *.yaml/*.yml fragments, or a glob. Directory and glob matches
// are merged in lexical order.
func expandInclude(from, entry string) ([]string, error) {
	path, err := resolvePath(filepath.Dir(from), entry)
	if err != nil {
		return nil, err
	}

	if strings.ContainsAny(path, "*?[") {
		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, err
		}
		var files []string
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && !info.IsDir() {
				files = append(files, m)
			}
		}
		sort.Strings(files)
		return files, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(ent.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(path, ent.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func resolvePath(dir, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is empty")
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	return filepath.Join(dir, p), nil
}

func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0]
	}
	return doc
}

// includeNodes returns the scalar entries of the top-level include key.
// Their shape has already been checked by IncludeList.
func includeNodes(root *yaml.Node) []*yaml.Node {
	if root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "include" {
			continue
		}
		val := root.Content[i+1]
		if val.Kind == yaml.ScalarNode {
			return []*yaml.Node{val}
		}
		return val.Content
	}
	return nil
}

// recordSources stores the position of every mapping value under its dotted
// key. Sequences such as mesh.peers are recorded as a whole, matching how
// they merge.
func recordSources(node *yaml.Node, at Source, prefix string, out map[string]Source) {
	if node.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		if prefix == "" && key == "include" {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		src := at
		src.Line, src.Column = val.Line, val.Column
		out[path] = src
		recordSources(val, src, path, out)
	}
}
