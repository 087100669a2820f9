package remap

import (
	"github.com/qmuntal/gltf"

	"github.com/271586852/instancing-rendering-project/internal/model"
)

// CopyPrimitive rebuilds a primitive's attribute/indices/material
// references against the output document, copying whatever backing
// resources have not already been copied for this model.
func (c *Copier) CopyPrimitive(doc *gltf.Document, modelID model.ModelId, src *gltf.Primitive) (*gltf.Primitive, error) {
	out := &gltf.Primitive{
		Mode:       src.Mode,
		Attributes: make(gltf.PrimitiveAttributes, len(src.Attributes)),
	}

	for name, accIdx := range src.Attributes {
		newIdx, err := c.CopyAccessor(doc, modelID, accIdx, RoleAttribute)
		if err != nil {
			return nil, err
		}
		out.Attributes[name] = newIdx
	}

	if src.Indices != nil {
		newIdx, err := c.CopyAccessor(doc, modelID, *src.Indices, RoleIndex)
		if err != nil {
			return nil, err
		}
		idx := newIdx
		out.Indices = &idx
	}

	if src.Material != nil {
		newIdx, err := c.CopyMaterial(doc, modelID, *src.Material)
		if err != nil {
			return nil, err
		}
		idx := newIdx
		out.Material = &idx
	}

	if len(src.Targets) > 0 {
		out.Targets = make([]gltf.PrimitiveAttributes, len(src.Targets))
		for i, target := range src.Targets {
			remapped := make(gltf.PrimitiveAttributes, len(target))
			for name, accIdx := range target {
				newIdx, err := c.CopyAccessor(doc, modelID, accIdx, RoleAttribute)
				if err != nil {
					return nil, err
				}
				remapped[name] = newIdx
			}
			out.Targets[i] = remapped
		}
	}

	return out, nil
}

// CopyMesh copies every primitive of src into a new output mesh.
func (c *Copier) CopyMesh(doc *gltf.Document, modelID model.ModelId, src *gltf.Mesh) (*gltf.Mesh, error) {
	out := &gltf.Mesh{
		Name:       src.Name,
		Primitives: make([]*gltf.Primitive, len(src.Primitives)),
	}
	for i, prim := range src.Primitives {
		copied, err := c.CopyPrimitive(doc, modelID, prim)
		if err != nil {
			return nil, err
		}
		out.Primitives[i] = copied
	}
	return out, nil
}
