package postprocess

// postUniformsWGSL is the shared uniform struct every post-process pass
// binds at group(0) binding(0); each pass only reads the subset of
// fields its stage needs.
const postUniformsWGSL = `
struct PostUniforms {
    threshold: f32,
    rms: f32,
    direction: f32,
    _pad0: f32,
    texel: vec2f,
    bloom_intensity: f32,
    vignette: f32,
    onset: f32,
    flatness: f32,
    target_width: f32,
    target_height: f32,
    _pad1: vec2f,
    _pad2: vec4f,
}

@group(0) @binding(0) var<uniform> u: PostUniforms;
`

// extractShader thresholds the scene's luminance with a soft knee
// modulated by rms (spec §4.7 stage 1).
const extractShader = postUniformsWGSL + `
@group(0) @binding(1) var src_tex: texture_2d<f32>;
@group(0) @binding(2) var samp: sampler;

@fragment
fn fs_main(@builtin(position) frag_coord: vec4f) -> @location(0) vec4f {
    let uv = frag_coord.xy / vec2f(u.target_width, u.target_height);
    let c = textureSample(src_tex, samp, uv);

    let luma = dot(c.rgb, vec3f(0.2126, 0.7152, 0.0722));
    let threshold = u.threshold * (1.0 - 0.3 * u.rms);
    let knee = 0.2;
    let soft = smoothstep(threshold - knee, threshold + knee, luma);

    return vec4f(c.rgb * soft, c.a);
}
`

// blurShader is the nine-tap separable Gaussian blur, run twice: once
// with direction=0 (horizontal) and once with direction=1 (vertical)
// (spec §4.7 stage 2).
const blurShader = postUniformsWGSL + `
@group(0) @binding(1) var src_tex: texture_2d<f32>;
@group(0) @binding(2) var samp: sampler;

const WEIGHTS = array<f32, 5>(0.227027, 0.1945946, 0.1216216, 0.054054, 0.016216);

@fragment
fn fs_main(@builtin(position) frag_coord: vec4f) -> @location(0) vec4f {
    let uv = frag_coord.xy / vec2f(u.target_width, u.target_height);
    let step = select(vec2f(0.0, u.texel.y), vec2f(u.texel.x, 0.0), u.direction < 0.5);

    var acc = textureSample(src_tex, samp, uv) * WEIGHTS[0];
    for (var i = 1; i < 5; i = i + 1) {
        let o = step * f32(i);
        acc = acc + textureSample(src_tex, samp, uv + o) * WEIGHTS[i];
        acc = acc + textureSample(src_tex, samp, uv - o) * WEIGHTS[i];
    }
    return acc;
}
`

// compositeShader applies chromatic aberration (driven by onset), adds
// the bloom target scaled by bloom_intensity (rms is not read here),
// ACES tonemaps, vignettes, and adds grain (driven by flatness) (spec
// §4.7 stage 3).
const compositeShader = postUniformsWGSL + `
@group(0) @binding(1) var scene_tex: texture_2d<f32>;
@group(0) @binding(2) var bloom_tex: texture_2d<f32>;
@group(0) @binding(3) var samp: sampler;

fn aces_tonemap(x: vec3f) -> vec3f {
    let a = 2.51;
    let b = 0.03;
    let c = 2.43;
    let d = 0.59;
    let e = 0.14;
    return clamp((x * (a * x + b)) / (x * (c * x + d) + e), vec3f(0.0), vec3f(1.0));
}

@fragment
fn fs_main(@builtin(position) frag_coord: vec4f) -> @location(0) vec4f {
    let dims = vec2f(u.target_width, u.target_height);
    let uv = frag_coord.xy / dims;
    let dir = uv - vec2f(0.5);

    let aberration = u.onset * 0.01;
    let r = textureSample(scene_tex, samp, uv + dir * aberration).r;
    let g = textureSample(scene_tex, samp, uv).g;
    let b = textureSample(scene_tex, samp, uv - dir * aberration).b;
    let scene_a = textureSample(scene_tex, samp, uv).a;

    let bloom = textureSample(bloom_tex, samp, uv).rgb;
    var color = vec3f(r, g, b) + bloom * u.bloom_intensity;

    color = aces_tonemap(color);

    let vig = clamp(1.0 - u.vignette * dot(dir, dir) * 2.0, 0.0, 1.0);
    color = color * vig;

    let grain = u.flatness * 0.05;
    let n = fract(sin(dot(frag_coord.xy, vec2f(12.9898, 78.233))) * 43758.5453);
    color = color + (n - 0.5) * grain;

    return vec4f(color, scene_a);
}
`
