//go:build cgo

package javascript

import (
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/rocketlyz/rspack/pkg/treesitter"
)

func init() {
	treesitter.Register(Name, func() any {
		return javascript.GetLanguage()
	})
}
