package nodes

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/sonoptix/photoacoustic-go/internal/errors"
	"github.com/sonoptix/photoacoustic-go/internal/processing"
)

// ScriptedNode hosts a JavaScript hook inside the graph. The script must
// define a function `process(input)` receiving an object with `kind`,
// `samples` (the variant's primary sample vector), `sample_rate` and
// `frame_number`. Returning null or undefined emits Empty for the tick;
// returning `{samples: [...]}` emits the configured output variant with the
// returned samples.
//
// The runtime is single-threaded and owned by the graph's consumer task, so
// no synchronization is needed around the VM.
type ScriptedNode struct {
	id     string
	source string

	acceptKind processing.Kind
	outputKind processing.Kind

	vm      *goja.Runtime
	process goja.Callable
}

// NewScriptedNode compiles the script parameter and resolves its process
// function. Parameters accepts/output name the consumed and produced
// variants and default to SingleChannel.
func NewScriptedNode(id string, params map[string]any) (*ScriptedNode, error) {
	n := &ScriptedNode{
		id:         id,
		source:     paramString(params, "script", ""),
		acceptKind: processing.Kind(paramString(params, "accepts", string(processing.KindSingleChannel))),
		outputKind: processing.Kind(paramString(params, "output", string(processing.KindSingleChannel))),
	}
	if n.source == "" {
		return nil, errors.Newf("scripted node requires a script parameter").
			Component(componentNodes).
			Category(errors.CategoryValidation).
			Context("node_id", id).
			Build()
	}
	if err := n.compile(n.source); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *ScriptedNode) compile(source string) error {
	vm := goja.New()
	if _, err := vm.RunString(source); err != nil {
		return errors.New(err).
			Component(componentNodes).
			Category(errors.CategoryValidation).
			Context("node_id", n.id).
			Context("error", "script compilation failed").
			Build()
	}
	process, ok := goja.AssertFunction(vm.Get("process"))
	if !ok {
		return errors.Newf("script must define a process(input) function").
			Component(componentNodes).
			Category(errors.CategoryValidation).
			Context("node_id", n.id).
			Build()
	}
	n.vm = vm
	n.process = process
	n.source = source
	return nil
}

func (n *ScriptedNode) ID() string       { return n.id }
func (n *ScriptedNode) NodeType() string { return "scripted" }

func (n *ScriptedNode) Accepts(kind processing.Kind) bool {
	return kind == n.acceptKind
}

func (n *ScriptedNode) OutputKind() processing.Kind {
	return n.outputKind
}

func (n *ScriptedNode) Process(input processing.Data) (processing.Data, error) {
	samples := input.PrimarySamples()
	arg := n.vm.NewObject()
	_ = arg.Set("kind", string(input.Kind))
	_ = arg.Set("sample_rate", input.SampleRate)
	_ = arg.Set("frame_number", input.FrameNumber)
	floatSamples := make([]float64, len(samples))
	for i, s := range samples {
		floatSamples[i] = float64(s)
	}
	_ = arg.Set("samples", floatSamples)

	result, err := n.process(goja.Undefined(), arg)
	if err != nil {
		return processing.Data{}, errors.New(err).
			Component(componentNodes).
			Category(errors.CategoryNode).
			Context("node_id", n.id).
			Context("error", "script execution failed").
			Build()
	}
	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return processing.Empty(), nil
	}

	obj := result.ToObject(n.vm)
	rawSamples := obj.Get("samples")
	if rawSamples == nil || goja.IsUndefined(rawSamples) {
		return processing.Empty(), nil
	}
	var exported []float64
	if err := n.vm.ExportTo(rawSamples, &exported); err != nil {
		return processing.Data{}, errors.New(fmt.Errorf("script returned non-numeric samples: %w", err)).
			Component(componentNodes).
			Category(errors.CategoryNode).
			Context("node_id", n.id).
			Build()
	}
	out := make([]float32, len(exported))
	for i, v := range exported {
		out[i] = float32(v)
	}

	switch n.outputKind {
	case processing.KindSingleChannel:
		return processing.NewSingleChannel(&input, out), nil
	case processing.KindDualChannel:
		// A mono script result duplicates onto both channels.
		dup := make([]float32, len(out))
		copy(dup, out)
		return processing.NewDualChannel(&input, out, dup), nil
	case processing.KindPhotoacousticResult:
		return processing.NewResult(&input, out, input.Metadata), nil
	default:
		return processing.NewSingleChannel(&input, out), nil
	}
}

func (n *ScriptedNode) Reset() {
	// Re-running the program drops any state the script accumulated.
	_ = n.compile(n.source)
}

func (n *ScriptedNode) SupportsHotReload() bool { return true }

// UpdateConfig replaces the hosted program. A script that fails to compile
// leaves the running program in place.
func (n *ScriptedNode) UpdateConfig(params map[string]any) (bool, error) {
	source, ok := params["script"].(string)
	if !ok {
		return false, nil
	}
	if source == n.source {
		return true, nil
	}
	if err := n.compile(source); err != nil {
		return false, err
	}
	return true, nil
}

func (n *ScriptedNode) CloneNode() processing.Node {
	clone := &ScriptedNode{
		id:         n.id,
		acceptKind: n.acceptKind,
		outputKind: n.outputKind,
	}
	// Compilation succeeded before; the clone gets a fresh VM.
	_ = clone.compile(n.source)
	return clone
}

func (n *ScriptedNode) Parameters() map[string]any {
	return map[string]any{
		"script":  n.source,
		"accepts": string(n.acceptKind),
		"output":  string(n.outputKind),
	}
}
