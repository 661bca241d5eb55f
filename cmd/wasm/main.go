//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"syscall/js"

	"github.com/inamate/compositor/internal/document"
	"github.com/inamate/compositor/internal/engine"
	"github.com/inamate/compositor/internal/geom"
	"github.com/inamate/compositor/internal/timeline"
)

// viewer runs one scene in the browser. Each tick advances the timeline a
// frame and pulses the engine; the page draws the resulting command buffer.
type viewer struct {
	eng      *engine.Engine
	painter  *engine.CommandPainter
	nodes    map[string]*engine.Node
	timeline *timeline.Timeline
	frame    uint64
	playing  bool
}

var v *viewer

func main() {
	api := js.Global().Get("Object").New()

	api.Set("loadDocument", js.FuncOf(loadDocument))
	api.Set("loadSampleDocument", js.FuncOf(loadSampleDocument))
	api.Set("play", js.FuncOf(func(js.Value, []js.Value) any { setPlaying(true); return nil }))
	api.Set("pause", js.FuncOf(func(js.Value, []js.Value) any { setPlaying(false); return nil }))
	api.Set("setView", js.FuncOf(setView))
	api.Set("tick", js.FuncOf(tick))
	api.Set("render", js.FuncOf(render))
	api.Set("getStats", js.FuncOf(getStats))

	js.Global().Set("compositor", api)
	js.Global().Set("compositorWasmReady", js.ValueOf(true))

	select {}
}

func result(err error) any {
	if err != nil {
		return js.ValueOf(map[string]any{"error": err.Error()})
	}
	return js.ValueOf(map[string]any{"ok": true})
}

func load(doc *document.InDocument) error {
	sc, err := doc.Scene("")
	if err != nil {
		return err
	}
	root, err := engine.Build(doc, sc.ID)
	if err != nil {
		return err
	}
	var tl *timeline.Timeline
	if sc.Timeline != "" {
		if tl, err = timeline.Compile(doc, sc.Timeline); err != nil {
			return err
		}
	}
	p := &engine.CommandPainter{}
	clip := geom.Rect{MaxX: float64(sc.Width), MaxY: float64(sc.Height)}
	v = &viewer{
		eng:      engine.NewEngine(root, clip, p),
		painter:  p,
		nodes:    engine.Index(root),
		timeline: tl,
		playing:  tl != nil,
	}
	return nil
}

func loadDocument(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf(map[string]any{"error": "missing document JSON"})
	}
	doc, err := document.Parse([]byte(args[0].String()), document.FormatJSON)
	if err != nil {
		return result(err)
	}
	return result(load(doc))
}

func loadSampleDocument(_ js.Value, args []js.Value) any {
	id := "scene_sample"
	if len(args) > 0 && args[0].Type() == js.TypeString {
		id = args[0].String()
	}
	return result(load(document.NewSampleDocument(id)))
}

func setPlaying(on bool) {
	if v != nil {
		v.playing = on && v.timeline != nil
	}
}

// setView(scale, tx, ty) zooms and pans the scene.
func setView(_ js.Value, args []js.Value) any {
	if v == nil || len(args) < 3 {
		return nil
	}
	s := args[0].Float()
	v.eng.SetView(geom.Translate(args[1].Float(), args[2].Float()).Multiply(geom.Scale(s, s)))
	return nil
}

// tick runs one pulse and reports whether anything was painted.
func tick(js.Value, []js.Value) any {
	if v == nil {
		return js.ValueOf(false)
	}
	if v.playing {
		sample := v.timeline.Evaluate(v.timeline.Frame(v.frame))
		v.frame++
		v.eng.Submit(func(*engine.Node) {
			v.timeline.Apply(v.nodes, sample)
		})
	}
	stats, err := v.eng.Pulse(context.Background())
	if err != nil {
		return js.ValueOf(false)
	}
	return js.ValueOf(stats.Painted)
}

// render returns the JSON draw commands of the latest painted frame.
func render(js.Value, []js.Value) any {
	if v == nil {
		return js.ValueOf("[]")
	}
	out, _ := engine.DrawCommandsToJSON(v.painter.Take())
	return js.ValueOf(out)
}

func getStats(js.Value, []js.Value) any {
	if v == nil {
		return js.ValueOf("{}")
	}
	data, err := json.Marshal(v.eng.LastStats())
	if err != nil {
		return js.ValueOf("{}")
	}
	return js.ValueOf(string(data))
}
