package loader

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Discover walks root and returns the canonicalized, deduplicated set of
// GLB paths to load: every `.glb` file found directly, plus every
// `.glb`/`.gltf` URI reachable from a `tileset.json` manifest's recursive
// "uri"/"url" string fields, resolved relative to that manifest's directory.
func Discover(root string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string

	add := func(p string) {
		canon, err := filepath.Abs(p)
		if err != nil {
			canon = p
		}
		if _, ok := seen[canon]; ok {
			return
		}
		if info, err := os.Stat(canon); err != nil || info.IsDir() {
			return
		}
		seen[canon] = struct{}{}
		out = append(out, canon)
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		switch {
		case strings.EqualFold(filepath.Ext(name), ".glb"):
			add(path)
		case isTilesetManifest(name):
			expandTileset(path, add)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func isTilesetManifest(name string) bool {
	lower := strings.ToLower(name)
	return lower == "tileset.json" || strings.HasSuffix(lower, "tileset.json")
}

// expandTileset parses a tileset.json manifest and descends every JSON
// value looking for "uri"/"url" string keys pointing at a .glb/.gltf file.
// Malformed manifests are skipped silently: a bad tileset is an
// InputDiscoveryError at the caller's discretion, not a reason to abort
// discovery of everything else under root.
func expandTileset(manifestPath string, add func(string)) {
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return
	}
	dir := filepath.Dir(manifestPath)
	walkJSON(doc, func(key string, value string) {
		lower := strings.ToLower(key)
		if lower != "uri" && lower != "url" {
			return
		}
		valLower := strings.ToLower(value)
		if !strings.HasSuffix(valLower, ".glb") && !strings.HasSuffix(valLower, ".gltf") {
			return
		}
		resolved := value
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(dir, value)
		}
		add(resolved)
	})
}

// walkJSON recursively descends a decoded JSON value (map/slice/scalar),
// invoking visit for every string-valued object key it finds.
func walkJSON(v any, visit func(key, value string)) {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if s, ok := val.(string); ok {
				visit(k, s)
			} else {
				walkJSON(val, visit)
			}
		}
	case []any:
		for _, elem := range t {
			walkJSON(elem, visit)
		}
	}
}
