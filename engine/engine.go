// Package engine ties every component together into the per-frame
// render loop (spec §2, §5, component O): read the latest audio
// snapshot, drain the input router, run each layer's effect pass,
// composite, post-process, and submit, all on a single render thread
// that owns every GPU resource. Nothing in this package presents the
// frame to a window surface.
package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/wgpu/hal"
	"github.com/pkg/errors"

	"github.com/phosphorvj/phosphor/audio"
	"github.com/phosphorvj/phosphor/audio/feature"
	"github.com/phosphorvj/phosphor/compositor"
	"github.com/phosphorvj/phosphor/config"
	"github.com/phosphorvj/phosphor/control"
	"github.com/phosphorvj/phosphor/control/midi"
	"github.com/phosphorvj/phosphor/control/osc"
	"github.com/phosphorvj/phosphor/control/web"
	"github.com/phosphorvj/phosphor/effect"
	"github.com/phosphorvj/phosphor/gpu"
	"github.com/phosphorvj/phosphor/gpu/uniform"
	"github.com/phosphorvj/phosphor/layer"
	"github.com/phosphorvj/phosphor/particle"
	"github.com/phosphorvj/phosphor/postprocess"
	"github.com/phosphorvj/phosphor/preset"
	"github.com/phosphorvj/phosphor/watch"
)

// joinTimeout bounds how long Stop waits, in total, for the producer
// threads to exit (spec §5: "join within a bounded time (<= 500 ms each)").
const joinTimeout = 500 * time.Millisecond

// Config configures an Engine.
type Config struct {
	Device hal.Device
	Queue  hal.Queue
	Log    *slog.Logger

	Width  uint32
	Height uint32

	Audio audio.Config

	OSCAddr    string
	WebAddr    string
	MIDIDevice string
}

// content wraps a layer's effect executor and, if present, its particle
// system, satisfying layer.Content.
type content struct {
	executor  *effect.Executor
	particles *particle.System
}

func (c *content) Render(encoder hal.CommandEncoder, uniforms []byte) error {
	return c.executor.Render(encoder, uniforms)
}

func (c *content) Output() *gpu.RenderTarget { return c.executor.Output() }

// Engine owns every GPU and audio resource and runs the render loop.
type Engine struct {
	cfg Config
	log *slog.Logger

	front *audio.Front

	midiQueue, oscQueue, webQueue *control.Queue
	router                        *control.Router
	oscServer                     *osc.Server
	webServer                     *web.Server
	midiListener                  *midi.Listener
	watcher                       *watch.Watcher
	bindingsPath                  string

	stack       *layer.Stack
	compositor  *compositor.Compositor
	postprocess *postprocess.Chain
	postSettings postprocess.Settings

	frameIndex uint32
	startedAt  time.Time

	stop atomic.Bool
	wg   sync.WaitGroup
}

// New wires up every component (spec MODULE MAP letters A-N) but starts
// nothing yet.
func New(cfg Config) (*Engine, error) {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	stack := layer.NewStack()

	comp, err := compositor.New(cfg.Device, cfg.Queue, cfg.Width, cfg.Height)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create compositor")
	}
	post, err := postprocess.New(cfg.Device, cfg.Queue, cfg.Width, cfg.Height)
	if err != nil {
		comp.Destroy()
		return nil, errors.Wrap(err, "failed to create post-process chain")
	}

	e := &Engine{
		cfg:          cfg,
		log:          cfg.Log,
		front:        audio.New(cfg.Audio),
		midiQueue:    control.NewQueue(),
		oscQueue:     control.NewQueue(),
		webQueue:     control.NewQueue(),
		stack:        stack,
		compositor:   comp,
		postprocess:  post,
		postSettings: postprocess.DefaultSettings(),
	}
	e.router = control.New(e.midiQueue, e.oscQueue, e.webQueue)

	return e, nil
}

// buildContent compiles def's shader passes (and, if declared, its
// particle system) into a layer.Content. It is shared by LoadEffect and
// preset restoration so both build the exact same GPU pipeline set from
// a manifest.
func (e *Engine) buildContent(def *effect.Def) (layer.Content, error) {
	executor, err := effect.New(e.cfg.Device, e.cfg.Queue, e.log, def, e.cfg.Width, e.cfg.Height)
	if err != nil {
		return nil, err
	}

	c := &content{executor: executor}
	if pcfg, ok := def.BuildParticleConfig(); ok {
		sys, err := particle.New(e.cfg.Device, e.cfg.Queue, *pcfg)
		if err != nil {
			executor.Destroy()
			return nil, errors.Wrap(err, "failed to create particle system")
		}
		c.particles = sys
	}
	return c, nil
}

// LoadEffect compiles effectPath onto a fresh layer and pushes it onto
// the stack, making it active.
func (e *Engine) LoadEffect(name, effectPath string) error {
	def, err := effect.Load(effectPath)
	if err != nil {
		return err
	}

	l, err := layer.New(e.cfg.Device, name, e.cfg.Width, e.cfg.Height)
	if err != nil {
		return err
	}
	l.EffectPath = effectPath

	store, err := def.BuildParamStore()
	if err != nil {
		l.Destroy()
		return err
	}
	l.Params = store

	c, err := e.buildContent(def)
	if err != nil {
		l.Destroy()
		return err
	}
	l.Content = c

	if err := e.stack.Push(l); err != nil {
		if cc, ok := c.(*content); ok {
			cc.executor.Destroy()
		}
		l.Destroy()
		return err
	}

	if e.webServer != nil {
		_ = e.webServer.Broadcast("effect_loaded", map[string]any{
			"layer": e.stack.Len() - 1,
			"name":  name,
			"path":  effectPath,
		})
	}
	return nil
}

// LoadEffectOnLayer replaces the effect running on the layer at index
// with the manifest at effectPath, leaving the layer's blend/opacity/
// enabled/locked/pinned flags untouched. It is the target of the
// load_effect control message (spec §6).
func (e *Engine) LoadEffectOnLayer(index int, effectPath string) {
	if index < 0 || index >= e.stack.Len() {
		e.log.Warn("load_effect: layer index out of range", "layer", index)
		return
	}
	def, err := effect.Load(effectPath)
	if err != nil {
		e.log.Warn("load_effect: failed to load manifest", "path", effectPath, "err", err)
		return
	}

	l := e.stack.At(index)
	store, err := def.BuildParamStore()
	if err != nil {
		e.log.Warn("load_effect: failed to build param store", "path", effectPath, "err", err)
		return
	}

	c, err := e.buildContent(def)
	if err != nil {
		e.log.Warn("load_effect: failed to build content", "path", effectPath, "err", err)
		return
	}

	if old, ok := l.Content.(*content); ok {
		old.executor.Destroy()
		old.particles.Destroy()
	}
	l.EffectPath = effectPath
	l.Params = store
	l.Content = c

	if e.webServer != nil {
		_ = e.webServer.Broadcast("effect_loaded", map[string]any{
			"layer": index,
			"name":  l.Name,
			"path":  effectPath,
		})
	}
}

// LoadPreset restores a saved snapshot by name (spec §6 load_preset),
// rebuilding every layer's GPU content from its recorded effect path.
func (e *Engine) LoadPreset(name string) {
	dir, err := config.PresetsDir()
	if err != nil {
		e.log.Warn("load_preset: failed to resolve presets directory", "err", err)
		return
	}
	path := filepath.Join(dir, name+".json")

	p, err := preset.Load(path)
	if err != nil {
		e.log.Warn("load_preset: failed to load preset", "name", name, "err", err)
		return
	}

	if err := preset.Apply(p, e.stack, e.cfg.Device, e.cfg.Width, e.cfg.Height, e.buildContent, presetLogger{e.log}); err != nil {
		e.log.Warn("load_preset: failed to apply preset", "name", name, "err", err)
		return
	}

	if e.webServer != nil {
		_ = e.webServer.Broadcast("presets", map[string]any{"loaded": name})
	}
}

// SavePreset captures the live engine state under name.
func (e *Engine) SavePreset(name string) error {
	dir, err := config.PresetsDir()
	if err != nil {
		return err
	}
	p := preset.Capture(name, e.stack, e.postSettings)
	return preset.Save(filepath.Join(dir, name+".json"), p)
}

// presetLogger adapts *slog.Logger to preset.Logger.
type presetLogger struct{ log *slog.Logger }

func (l presetLogger) Warn(msg string, args ...any) { l.log.Warn(msg, args...) }

// Start opens the audio device and launches the MIDI/OSC/Web/watch
// producer threads. It returns once every subsystem
// is running; Run blocks the caller in the render loop itself.
func (e *Engine) Start(ctx context.Context, effectsDir string) error {
	if err := e.front.Start(ctx); err != nil {
		return errors.Wrap(err, "failed to start audio front")
	}

	if e.cfg.OSCAddr != "" {
		e.oscServer = osc.New(e.log, e.oscQueue, e.cfg.OSCAddr)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.oscServer.ListenAndServe(); err != nil && !e.stop.Load() {
				e.log.Warn("osc server stopped", "err", err)
			}
		}()
	}

	if e.cfg.WebAddr != "" {
		e.webServer = web.New(e.log, e.webQueue, nil)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.webServer.ListenAndServe(e.cfg.WebAddr); err != nil && !e.stop.Load() {
				e.log.Warn("web server stopped", "err", err)
			}
		}()
	}

	var bindings []midi.Binding
	if path, err := config.BindingsPath(); err != nil {
		e.log.Warn("midi: failed to resolve bindings path, starting with no bindings", "err", err)
	} else if bindings, err = midi.LoadBindings(path); err != nil {
		e.log.Warn("midi: failed to load bindings, starting with no bindings", "err", err)
	} else {
		e.bindingsPath = path
	}

	if l, err := midi.Open(e.log, e.midiQueue, bindings, e.cfg.MIDIDevice); err != nil {
		e.log.Warn("midi: no input available, continuing without MIDI", "err", err)
	} else {
		e.midiListener = l
	}

	if effectsDir != "" {
		if w, err := watch.New(e.log, effectsDir); err != nil {
			e.log.Warn("watch: failed to start file watcher", "err", err)
		} else {
			e.watcher = w
		}
	}

	e.startedAt = time.Now()
	return nil
}

// Run executes the render loop until ctx is cancelled or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	lastFrame := time.Now()
	for !e.stop.Load() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		now := time.Now()
		dt := now.Sub(lastFrame).Seconds()
		lastFrame = now

		if err := e.frame(dt); err != nil {
			e.log.Warn("frame failed", "err", err)
		}
	}
	return nil
}

// frame runs one iteration of the loop: drain inputs, apply hot reload,
// render every enabled layer, composite, post-process, and submit. It
// does not present to a surface.
func (e *Engine) frame(dt float64) error {
	snapshot := e.front.Latest()

	e.router.Drain(control.Target{
		Stack:         e.stack,
		PostProcess:   &e.postSettings,
		OnTrigger:     e.onTrigger,
		OnLoadEffect:  e.LoadEffectOnLayer,
		OnSelectLayer: e.selectLayer,
		OnLoadPreset:  e.LoadPreset,
	})

	if e.watcher != nil {
		select {
		case paths := <-e.watcher.Changed:
			e.reload(paths)
		default:
		}
	}

	encoder, err := e.cfg.Device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "engine.frame"})
	if err != nil {
		return errors.Wrap(err, "failed to create command encoder")
	}
	if err := encoder.BeginEncoding("engine.frame"); err != nil {
		return errors.Wrap(err, "failed to begin encoding")
	}

	elapsed := time.Since(e.startedAt).Seconds()
	enabled := e.stack.Enabled()
	for _, l := range enabled {
		e.renderLayer(encoder, l, &snapshot, dt, elapsed)
	}

	if err := e.compositor.Composite(encoder, enabled); err != nil {
		encoder.DiscardEncoding()
		return errors.Wrap(err, "compositor failed")
	}

	scene := e.compositor.Output(enabled)
	if scene != nil {
		if err := e.postprocess.Run(encoder, scene, scene, e.postSettings,
			snapshot.RMS, snapshot.Onset, snapshot.Flatness); err != nil {
			encoder.DiscardEncoding()
			return errors.Wrap(err, "post-process chain failed")
		}
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return errors.Wrap(err, "failed to end encoding")
	}

	fence, err := e.cfg.Device.CreateFence()
	if err != nil {
		return errors.Wrap(err, "failed to create frame fence")
	}
	if err := e.cfg.Queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return errors.Wrap(err, "failed to submit frame")
	}

	e.frameIndex++
	if e.webServer != nil {
		if e.frameIndex%6 == 0 {
			_ = e.webServer.Broadcast("audio", snapshot)
		}
		if e.frameIndex%30 == 0 {
			e.broadcastState()
		}
	}
	return nil
}

// broadcastState pushes a full state snapshot (active layer, per-layer
// blend/opacity/enabled, post-process settings) to every connected web
// client; frame sends it every 30 frames (spec §6 "state").
func (e *Engine) broadcastState() {
	if e.webServer == nil {
		return
	}
	type layerState struct {
		Name    string  `json:"name"`
		Blend   int     `json:"blend"`
		Opacity float64 `json:"opacity"`
		Enabled bool    `json:"enabled"`
	}
	layers := make([]layerState, 0, e.stack.Len())
	for i := 0; i < e.stack.Len(); i++ {
		l := e.stack.At(i)
		layers = append(layers, layerState{Name: l.Name, Blend: int(l.Blend), Opacity: l.Opacity, Enabled: l.Enabled})
	}
	_ = e.webServer.Broadcast("state", map[string]any{
		"active_layer": e.stack.Active(),
		"layers":       layers,
		"postprocess":  e.postSettings,
	})
}

func (e *Engine) renderLayer(encoder hal.CommandEncoder, l *layer.Layer, snapshot *feature.Audio, dt, elapsed float64) {
	block := uniform.Block{
		Time:      float32(elapsed),
		DeltaTime: float32(dt),
		Resolution: [2]float32{float32(e.cfg.Width), float32(e.cfg.Height)},
		FrameIndex: e.frameIndex,
	}
	block.SetAudio(snapshot)
	l.Params.Pack((*[16]float32)(&block.Params))
	packed := block.Pack()

	if l.Content == nil {
		return
	}

	if err := l.Content.Render(encoder, packed[:]); err != nil {
		e.log.Warn("layer render failed", "layer", l.Name, "err", err)
	}

	if c, ok := l.Content.(*content); ok && c.particles != nil {
		pb := uniform.ParticleBlock{
			EmitOrigin: c.particles.Config().Emitter.Origin,
			EmitBudget: float32(c.particles.Config().EmitBudget(dt, snapshot.Beat)),
			Seed:       c.particles.Seed(),
			Resolution: block.Resolution,
			DeltaTime:  block.DeltaTime,
		}
		pb.SetAudio(snapshot)
		particleBytes := pb.Pack()

		if err := c.particles.Simulate(encoder, particleBytes[:]); err != nil {
			e.log.Warn("particle simulate failed", "layer", l.Name, "err", err)
		} else if err := c.particles.Render(encoder, c.executor.Output()); err != nil {
			e.log.Warn("particle render failed", "layer", l.Name, "err", err)
		}
	}
}

func (e *Engine) reload(paths []string) {
	changed := make(map[string]bool, len(paths))
	for _, p := range paths {
		changed[p] = true
	}
	for i := 0; i < e.stack.Len(); i++ {
		if c, ok := e.stack.At(i).Content.(*content); ok {
			c.executor.Reload(changed)
		}
	}
}

// onTrigger dispatches a named global action (spec §6 trigger names).
func (e *Engine) onTrigger(name string) {
	switch name {
	case control.TriggerNextLayer:
		e.stepActiveLayer(1)
	case control.TriggerPrevLayer:
		e.stepActiveLayer(-1)
	case control.TriggerTogglePostProcess:
		e.postSettings.Enabled = !e.postSettings.Enabled
	default:
		e.log.Debug("unhandled trigger", "name", name)
	}
}

func (e *Engine) stepActiveLayer(delta int) {
	n := e.stack.Len()
	if n == 0 {
		return
	}
	next := (e.stack.Active() + delta + n) % n
	e.selectLayer(next)
}

// selectLayer makes index the active layer and, if a web control panel
// is connected, announces the change (spec §6 select_layer / active_layer).
func (e *Engine) selectLayer(index int) {
	if index < 0 || index >= e.stack.Len() {
		return
	}
	if err := e.stack.SetActive(index); err != nil {
		return
	}
	if e.webServer != nil {
		_ = e.webServer.Broadcast("active_layer", map[string]any{"index": index})
	}
}

// SetBindings replaces the running MIDI binding table and persists it to
// the user config directory, so edits made through a control surface
// survive a restart (spec SUPPLEMENTED FEATURES: a binding table keyed by
// channel/controller persisted alongside presets).
func (e *Engine) SetBindings(bindings []midi.Binding) error {
	if e.midiListener != nil {
		e.midiListener.SetBindings(bindings)
	}
	if e.bindingsPath == "" {
		path, err := config.BindingsPath()
		if err != nil {
			return err
		}
		e.bindingsPath = path
	}
	return midi.SaveBindings(e.bindingsPath, bindings)
}

// Stop sets the shared stop flag, drops the audio device, and waits up
// to joinTimeout in total for the producer threads (spec §5 shutdown
// model).
func (e *Engine) Stop() {
	e.stop.Store(true)

	if err := e.front.Stop(); err != nil {
		e.log.Warn("failed to stop audio front", "err", err)
	}
	if e.midiListener != nil {
		_ = e.midiListener.Close()
	}
	if e.oscServer != nil {
		_ = e.oscServer.Close()
	}
	if e.watcher != nil {
		_ = e.watcher.Close()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(joinTimeout):
		e.log.Warn("engine: producer threads did not join within timeout")
	}

	e.stack.Destroy()
	e.compositor.Destroy()
	e.postprocess.Destroy()
}
