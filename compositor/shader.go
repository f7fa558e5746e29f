package compositor

// blendShader is the fragment shader every Compositor.blend pass runs
// (spec §4.4): it samples bg and fg directly and computes all ten blend
// modes' per-channel formula in-branch, selected by the mode uniform, so
// no GPU fixed-function blend state is needed. The math mirrors
// blendChannel/BlendRGBA in blend.go exactly.
const blendShader = `
struct BlendUniforms {
    mode: f32,
    opacity: f32,
    _pad: vec2f,
}

@group(0) @binding(0) var<uniform> u: BlendUniforms;
@group(0) @binding(1) var bg_tex: texture_2d<f32>;
@group(0) @binding(2) var fg_tex: texture_2d<f32>;
@group(0) @binding(3) var samp: sampler;

const HDR_MAX = 4.0;

fn blend_channel(mode: u32, bg: vec3f, fg: vec3f) -> vec3f {
    if (mode == 1u) { // add
        return bg + fg;
    }
    if (mode == 2u) { // screen
        return bg + fg - bg * fg;
    }
    if (mode == 3u) { // color dodge
        let safe = max(vec3f(1.0) - fg, vec3f(1e-4));
        return clamp(bg / safe, vec3f(0.0), vec3f(HDR_MAX));
    }
    if (mode == 4u) { // multiply
        return bg * fg;
    }
    if (mode == 5u) { // overlay: branches on bg
        let lo = 2.0 * bg * fg;
        let hi = vec3f(1.0) - 2.0 * (vec3f(1.0) - bg) * (vec3f(1.0) - fg);
        return select(hi, lo, bg <= vec3f(0.5));
    }
    if (mode == 6u) { // hard light: branches on fg
        let lo = 2.0 * bg * fg;
        let hi = vec3f(1.0) - 2.0 * (vec3f(1.0) - bg) * (vec3f(1.0) - fg);
        return select(hi, lo, fg <= vec3f(0.5));
    }
    if (mode == 7u) { // difference
        return abs(bg - fg);
    }
    if (mode == 8u) { // exclusion
        return bg + fg - 2.0 * bg * fg;
    }
    if (mode == 9u) { // subtract
        return max(bg - fg, vec3f(0.0));
    }
    return fg; // normal
}

@fragment
fn fs_main(@builtin(position) frag_coord: vec4f) -> @location(0) vec4f {
    let dims = vec2f(textureDimensions(bg_tex));
    let uv = frag_coord.xy / dims;

    let bg = textureSample(bg_tex, samp, uv);
    let fg = textureSample(fg_tex, samp, uv);

    let blended = blend_channel(u32(u.mode), bg.rgb, fg.rgb);
    let mix_amt = u.opacity * fg.a;

    var out: vec4f;
    out.r = mix(bg.r, blended.r, mix_amt);
    out.g = mix(bg.g, blended.g, mix_amt);
    out.b = mix(bg.b, blended.b, mix_amt);
    out.a = max(bg.a, fg.a * u.opacity);
    return out;
}
`
