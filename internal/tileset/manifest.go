package tileset

import (
	"encoding/json"
	"os"

	"github.com/271586852/instancing-rendering-project/internal/pipelineerr"
)

// manifest is the minimal 3D-Tiles tileset.json shape this pipeline
// produces: one root tile whose content is the GLB this manifest sits
// beside, bounded by the box computed by FromBBox.
type manifest struct {
	Asset          manifestAsset `json:"asset"`
	GeometricError float64       `json:"geometricError"`
	Root           manifestRoot  `json:"root"`
}

type manifestAsset struct {
	Version string `json:"version"`
}

type manifestRoot struct {
	BoundingVolume manifestBoundingVolume `json:"boundingVolume"`
	GeometricError float64                `json:"geometricError"`
	Refine         string                 `json:"refine"`
	Content        manifestContent        `json:"content"`
}

type manifestBoundingVolume struct {
	Box [12]float64 `json:"box"`
}

type manifestContent struct {
	URI string `json:"uri"`
}

// WriteManifest writes a tileset.json at path whose root bounding volume is
// bv and whose root content points at contentURI (the GLB this manifest
// describes, given relative to path's directory).
func WriteManifest(path string, bv BoundingVolume, contentURI string) error {
	m := manifest{
		Asset:          manifestAsset{Version: "1.0"},
		GeometricError: 0,
		Root: manifestRoot{
			BoundingVolume: manifestBoundingVolume{Box: [12]float64(bv)},
			GeometricError: 0,
			Refine:         "REPLACE",
			Content:        manifestContent{URI: contentURI},
		},
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return pipelineerr.IOError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return pipelineerr.IOError{Path: path, Err: err}
	}
	return nil
}
