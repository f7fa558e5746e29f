package particle

// computeShader is the built-in simulation kernel every particle system
// dispatches (spec §4.5): force integration for live particles, and an
// atomic emission-claim for dead slots so the frame's emit budget is
// spent exactly once across all 256-wide workgroups.
const computeShader = `
struct Particle {
    pos_vel: vec4f,
    life_info: vec4f, // life, max_life, size, seed
    color: vec4f,
    reserved: vec4f,
}

struct FrameUniforms {
    sub_bass: f32,
    bass: f32,
    mid: f32,
    rms: f32,
    kick: f32,
    onset: f32,
    centroid: f32,
    flux: f32,
    beat: f32,
    phase: f32,
    emit_origin: vec2f,
    emit_budget: f32,
    seed: f32,
    resolution: vec2f,
    delta_time: f32,
    _pad: f32,
}

struct SimParams {
    gravity: vec2f,
    drag: f32,
    turbulence: f32,
    attraction: f32,
    lifetime: f32,
    init_speed: f32,
    init_size: f32,
    end_size: f32,
    max_count: u32,
    emitter_shape: u32,
    emitter_radius: f32,
    _pad: f32,
}

@group(0) @binding(0) var<uniform> frame: FrameUniforms;
@group(0) @binding(1) var<uniform> sim: SimParams;
@group(0) @binding(2) var<storage, read> particles_in: array<Particle>;
@group(0) @binding(3) var<storage, read_write> particles_out: array<Particle>;
@group(0) @binding(4) var<storage, read_write> emit_counter: atomic<u32>;

fn hash(seed: u32) -> f32 {
    var x = seed;
    x = (x ^ 61u) ^ (x >> 16u);
    x = x * 9u;
    x = x ^ (x >> 4u);
    x = x * 0x27d4eb2du;
    x = x ^ (x >> 15u);
    return f32(x) / 4294967295.0;
}

const TAU = 6.283185307;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3u) {
    let i = gid.x;
    if (i >= sim.max_count) {
        return;
    }

    var p = particles_in[i];
    let max_life = p.life_info.y;

    if (p.life_info.x > 0.0) {
        var pos = p.pos_vel.xy;
        var vel = p.pos_vel.zw;

        let turb = vec2f(
            hash(i * 7919u + u32(frame.seed)) - 0.5,
            hash(i * 104729u + u32(frame.seed)) - 0.5,
        ) * sim.turbulence;
        let to_center = frame.emit_origin - pos;

        vel = vel + (sim.gravity + turb + to_center * sim.attraction) * frame.delta_time;
        vel = vel * max(1.0 - sim.drag * frame.delta_time, 0.0);
        pos = pos + vel * frame.delta_time;

        let life = p.life_info.x - frame.delta_time;
        let t = clamp(1.0 - life / max_life, 0.0, 1.0);
        let size = mix(sim.init_size, sim.end_size, t);
        let alpha = clamp(life / max_life, 0.0, 1.0);

        p.pos_vel = vec4f(pos, vel);
        p.life_info = vec4f(life, max_life, size, p.life_info.w);
        p.color = vec4f(p.color.rgb, alpha);
        particles_out[i] = p;
        return;
    }

    let claimed = atomicAdd(&emit_counter, 1u);
    if (f32(claimed) >= frame.emit_budget) {
        particles_out[i] = p;
        return;
    }

    let seed = u32(frame.seed) + i * 2654435761u;
    let r1 = hash(seed);
    let r2 = hash(seed + 1u);
    let r3 = hash(seed + 2u);

    var origin = frame.emit_origin;
    if (sim.emitter_shape == 1u) { // ring
        let angle = r1 * TAU;
        origin = origin + vec2f(cos(angle), sin(angle)) * sim.emitter_radius;
    } else if (sim.emitter_shape == 2u) { // line
        origin = origin + vec2f((r1 - 0.5) * sim.emitter_radius * 2.0, 0.0);
    } else if (sim.emitter_shape == 3u) { // screen
        origin = (vec2f(r1, r2) * 2.0 - 1.0) * frame.resolution * 0.5;
    }

    let angle = r2 * TAU;
    let speed = sim.init_speed * (0.5 + r3 * 0.5);
    let vel = vec2f(cos(angle), sin(angle)) * speed;

    p.pos_vel = vec4f(origin, vel);
    p.life_info = vec4f(sim.lifetime, sim.lifetime, sim.init_size, f32(seed));
    p.color = vec4f(1.0, 1.0, 1.0, 1.0);
    p.reserved = vec4f(0.0);
    particles_out[i] = p;
}
`

// renderShader vertex-pulls each particle's storage record into a
// camera-facing quad (spec §4.5 "vertex-pulling draw"): six vertices per
// instance, no vertex buffer, a procedural soft-circle falloff standing
// in for a sprite texture.
const renderShader = `
struct Particle {
    pos_vel: vec4f,
    life_info: vec4f,
    color: vec4f,
    reserved: vec4f,
}

struct FrameUniforms {
    sub_bass: f32,
    bass: f32,
    mid: f32,
    rms: f32,
    kick: f32,
    onset: f32,
    centroid: f32,
    flux: f32,
    beat: f32,
    phase: f32,
    emit_origin: vec2f,
    emit_budget: f32,
    seed: f32,
    resolution: vec2f,
    delta_time: f32,
    _pad: f32,
}

@group(0) @binding(0) var<storage, read> particles: array<Particle>;
@group(0) @binding(1) var<uniform> frame: FrameUniforms;

struct VSOut {
    @builtin(position) position: vec4f,
    @location(0) color: vec4f,
    @location(1) uv: vec2f,
}

@vertex
fn vs_main(@builtin(vertex_index) vertex_index: u32, @builtin(instance_index) instance_index: u32) -> VSOut {
    var offsets = array<vec2f, 6>(
        vec2f(-1.0, -1.0), vec2f(1.0, -1.0), vec2f(-1.0, 1.0),
        vec2f(-1.0, 1.0), vec2f(1.0, -1.0), vec2f(1.0, 1.0),
    );

    let p = particles[instance_index];
    var out: VSOut;

    if (p.life_info.x <= 0.0) {
        out.position = vec4f(2.0, 2.0, 2.0, 1.0); // clipped, outside NDC
        out.color = vec4f(0.0);
        out.uv = vec2f(0.0);
        return out;
    }

    let offset = offsets[vertex_index];
    let size = p.life_info.z;
    let world_pos = p.pos_vel.xy + offset * size;
    let ndc = world_pos / (frame.resolution * 0.5);

    out.position = vec4f(ndc, 0.0, 1.0);
    out.color = p.color;
    out.uv = offset;
    return out;
}

@fragment
fn fs_main(in: VSOut) -> @location(0) vec4f {
    let d = length(in.uv);
    let falloff = 1.0 - smoothstep(0.6, 1.0, d);
    return vec4f(in.color.rgb, in.color.a * falloff);
}
`
