// Package shaders embeds the GLSL sources for the ray-tracing stages and
// the denoise/post-process compute passes.
package shaders

import (
	_ "embed"
)

//go:embed raygen.rgen
var RaygenGLSL []byte

//go:embed miss.rmiss
var MissGLSL []byte

//go:embed shadow.rmiss
var ShadowMissGLSL []byte

//go:embed intersect.rint
var IntersectGLSL []byte

//go:embed hit.rchit
var ClosestHitGLSL []byte

//go:embed temporal_reproject.comp
var TemporalReprojectGLSL []byte

//go:embed variance.comp
var VarianceGLSL []byte

//go:embed atrous.comp
var AtrousGLSL []byte

//go:embed taa.comp
var TaaGLSL []byte

//go:embed tonemap.comp
var TonemapGLSL []byte

//go:embed sharpen.comp
var SharpenGLSL []byte
