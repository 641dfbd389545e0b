package gpu

// Fixed shader sources for the conversion/draw effect registry. The
// vertex stage and the "Default_Draw" passthrough are adapted from the
// teacher's fullscreen-quad blit shaders; the Convert_* fragment
// sources implement the per-format conversion matrix math the source
// timing contract names (color_matrix, full/limited range min/max).

const vertexShaderSource = `#version 410 core
layout (location = 0) in vec2 in_vert;
out vec2 frag_uv;
uniform mat4 u_transform;
void main() {
	frag_uv = in_vert * 0.5 + 0.5;
	gl_Position = u_transform * vec4(in_vert, 0.0, 1.0);
}
`

const defaultDrawFragmentSource = `#version 410 core
in vec2 frag_uv;
out vec4 fragColor;
uniform sampler2D u_texture;
void main() {
	fragColor = texture(u_texture, frag_uv);
}
`

// planarConvertFragmentSource is compiled unchanged for every Convert_*
// effect (see NewGLContext); the effects differ only in the uniforms
// the compositor sets before each convert draw (plane samplers, color
// matrix, range min/max, plane count, alpha flag).
const planarConvertFragmentSource = `#version 410 core
in vec2 frag_uv;
out vec4 fragColor;
uniform sampler2D u_plane0;
uniform sampler2D u_plane1;
uniform sampler2D u_plane2;
uniform sampler2D u_plane3;
uniform mat4 u_color_matrix;
uniform vec3 u_range_min;
uniform vec3 u_range_max;
uniform int u_plane_count;
uniform int u_has_alpha;

vec3 sample_yuv() {
	float y = texture(u_plane0, frag_uv).r;
	float u = texture(u_plane1, frag_uv).r;
	float v = u_plane_count > 2 ? texture(u_plane2, frag_uv).r : 0.5;
	return vec3(y, u, v);
}

void main() {
	vec3 yuv = sample_yuv();
	vec4 rgba = u_color_matrix * vec4(yuv, 1.0);
	rgba.rgb = clamp((rgba.rgb - u_range_min) / (u_range_max - u_range_min), 0.0, 1.0);
	rgba.a = u_has_alpha == 1 ? texture(u_plane3, frag_uv).r : 1.0;
	fragColor = rgba;
}
`
