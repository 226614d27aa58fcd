package assemble

import (
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const maxTreeDepth = 64

// Page attributes a page inherits from its ancestors in the page tree.
var inheritable = []string{"Resources", "MediaBox", "CropBox", "Rotate"}

// moveToFront moves the last n pages of the document to the front. The
// page tree is flattened into a single level; inherited attributes are
// copied onto each page first.
func moveToFront(ctx *model.Context, n int) error {
	rootRef, ok := ctx.RootDict["Pages"].(types.IndirectRef)
	if !ok {
		return errors.New("catalog has no page tree")
	}
	root, err := ctx.DereferenceDict(rootRef)
	if err != nil {
		return err
	}
	if root == nil {
		return errors.New("page tree root is missing")
	}

	leaves, err := collectPages(ctx, rootRef, types.Dict{}, 0)
	if err != nil {
		return err
	}
	if n <= 0 || n >= len(leaves) {
		return fmt.Errorf("cannot move %d of %d pages", n, len(leaves))
	}

	ordered := append(append([]types.IndirectRef{}, leaves[len(leaves)-n:]...), leaves[:len(leaves)-n]...)
	kids := make(types.Array, 0, len(ordered))
	for _, ref := range ordered {
		page, err := ctx.DereferenceDict(ref)
		if err != nil {
			return err
		}
		page["Parent"] = rootRef
		kids = append(kids, ref)
	}

	root["Kids"] = kids
	root["Count"] = types.Integer(len(kids))
	ctx.PageCount = len(kids)
	return nil
}

// collectPages returns the leaf pages below ref in document order and
// pushes inherited attributes down to them.
func collectPages(ctx *model.Context, ref types.IndirectRef, inherited types.Dict, depth int) ([]types.IndirectRef, error) {
	if depth > maxTreeDepth {
		return nil, errors.New("page tree too deep")
	}
	node, err := ctx.DereferenceDict(ref)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, fmt.Errorf("page tree node %s is missing", ref)
	}

	attrs := types.Dict{}
	for k, v := range inherited {
		attrs[k] = v
	}
	for _, k := range inheritable {
		if v, ok := node[k]; ok {
			attrs[k] = v
		}
	}

	if typ, _ := node["Type"].(types.Name); typ == "Page" || node["Kids"] == nil {
		for k, v := range attrs {
			if _, ok := node[k]; !ok {
				node[k] = v
			}
		}
		return []types.IndirectRef{ref}, nil
	}

	kids, err := ctx.DereferenceArray(node["Kids"])
	if err != nil {
		return nil, err
	}
	var leaves []types.IndirectRef
	for _, kid := range kids {
		kidRef, ok := kid.(types.IndirectRef)
		if !ok {
			return nil, errors.New("page tree kid is not an indirect reference")
		}
		sub, err := collectPages(ctx, kidRef, attrs, depth+1)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, sub...)
	}
	return leaves, nil
}
