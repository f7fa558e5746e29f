package effect

// shaderLibrary is prepended to every effect shader's source, ahead of
// the shared fullscreen-triangle vertex stage (spec §4.6): the uniform
// block binding, the feedback texture/sampler bindings, the param() and
// feedback() accessors every effect shader is authored against, and a
// small noise/palette/SDF/tonemap helper set so effects don't each
// reimplement them.
const shaderLibrary = `
struct Uniforms {
    time: f32,
    delta_time: f32,
    resolution: vec2f,
    audio: array<vec4f, 5>,
    params: array<vec4f, 4>,
    feedback_decay: f32,
    frame_index: f32,
}

@group(0) @binding(0) var<uniform> uniforms: Uniforms;
@group(0) @binding(1) var feedback_tex: texture_2d<f32>;
@group(0) @binding(2) var feedback_samp: sampler;

// param returns the i'th of the effect's sixteen user-editable lanes.
fn param(i: u32) -> f32 {
    return uniforms.params[i / 4u][i % 4u];
}

// audio returns the i'th of the twenty normalized audio features, in
// the wire order audio/feature.Audio.Fields publishes.
fn audio(i: u32) -> f32 {
    return uniforms.audio[i / 4u][i % 4u];
}

// feedback samples this pass's previous frame at uv, pre-scaled by the
// configured decay.
fn feedback(uv: vec2f) -> vec4f {
    return textureSample(feedback_tex, feedback_samp, uv) * uniforms.feedback_decay;
}

fn hash21(p: vec2f) -> f32 {
    var p3 = fract(vec3f(p.xyx) * 0.1031);
    p3 = p3 + dot(p3, p3.yzx + 33.33);
    return fract((p3.x + p3.y) * p3.z);
}

fn noise(p: vec2f) -> f32 {
    let i = floor(p);
    let f = fract(p);
    let a = hash21(i);
    let b = hash21(i + vec2f(1.0, 0.0));
    let c = hash21(i + vec2f(0.0, 1.0));
    let d = hash21(i + vec2f(1.0, 1.0));
    let u = f * f * (3.0 - 2.0 * f);
    return mix(mix(a, b, u.x), mix(c, d, u.x), u.y);
}

fn fbm(p: vec2f) -> f32 {
    var v = 0.0;
    var amp = 0.5;
    var q = p;
    for (var i = 0; i < 5; i = i + 1) {
        v = v + amp * noise(q);
        q = q * 2.0;
        amp = amp * 0.5;
    }
    return v;
}

fn palette(t: f32, a: vec3f, b: vec3f, c: vec3f, d: vec3f) -> vec3f {
    return a + b * cos(6.283185307 * (c * t + d));
}

fn sd_circle(p: vec2f, r: f32) -> f32 {
    return length(p) - r;
}

fn sd_box(p: vec2f, half_extent: vec2f) -> f32 {
    let d = abs(p) - half_extent;
    return length(max(d, vec2f(0.0))) + min(max(d.x, d.y), 0.0);
}

fn aces_tonemap(x: vec3f) -> vec3f {
    let a = 2.51;
    let b = 0.03;
    let c = 2.43;
    let d = 0.59;
    let e = 0.14;
    return clamp((x * (a * x + b)) / (x * (c * x + d) + e), vec3f(0.0), vec3f(1.0));
}
`
