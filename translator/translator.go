package translator

import (
	"context"

	gst "github.com/richinsley/goshadertranslator"
)

var translator *gst.ShaderTranslator

// GetTranslator returns the process-wide shader translator used to
// make the fixed conversion shaders portable across GLSL/ESSL targets.
func GetTranslator() *gst.ShaderTranslator {
	if translator == nil {
		ctx := context.Background()
		translator, _ = gst.NewShaderTranslator(ctx)
	}
	return translator
}
