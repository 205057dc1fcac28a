package scenario

import (
	"fmt"
	"strings"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/golang/geo/r3"
	"github.com/milk9111/autopilot/world"
	"go.uber.org/zap"
)

const motionDispatchScript = `
if __phase == "update" {
	update(__engine, __tick)
}
`

// MotionScript drives one body's velocity from a tengo script. The script
// defines update(engine, tick) and may keep values between ticks in
// engine.state. Velocities are in world units per second.
type MotionScript struct {
	name     string
	body     world.EntityID
	compiled *tengo.Compiled
	state    *tengo.Map
	tickRate int
	log      *zap.Logger
}

func (s *Scenario) compileScript(name string) (*tengo.Compiled, error) {
	src, err := s.LoadScript(name)
	if err != nil {
		return nil, err
	}
	return compileMotion(name, src)
}

func compileMotion(name string, src []byte) (*tengo.Compiled, error) {
	full := string(src) + "\n" + motionDispatchScript
	script := tengo.NewScript([]byte(full))
	_ = script.Add("__phase", "")
	_ = script.Add("__engine", map[string]any{})
	_ = script.Add("__tick", 0)

	script.SetImports(stdlib.GetModuleMap(stdlib.AllModuleNames()...))

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("scenario: compile script %s: %w", name, err)
	}

	// run once without dispatch to check the entry point exists
	if err := compiled.Set("__phase", "noop"); err != nil {
		return nil, err
	}
	if err := compiled.Run(); err != nil {
		return nil, fmt.Errorf("scenario: script %s: %w", name, err)
	}
	if !compiled.IsDefined("update") {
		return nil, fmt.Errorf("scenario: script %s does not define update", name)
	}
	return compiled, nil
}

func NewMotionScript(name string, src []byte, body world.EntityID, tickRate int, log *zap.Logger) (*MotionScript, error) {
	compiled, err := compileMotion(name, src)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MotionScript{
		name:     name,
		body:     body,
		compiled: compiled,
		state:    &tengo.Map{Value: map[string]tengo.Object{}},
		tickRate: tickRate,
		log:      log.With(zap.String("script", name), zap.Uint64("entity", uint64(body))),
	}, nil
}

// Update runs the script's update for one tick against w.
func (ms *MotionScript) Update(w *world.Memory, tick uint64) error {
	if ms == nil || ms.compiled == nil {
		return fmt.Errorf("scenario: nil motion script")
	}
	engine := ms.engine(w)
	if err := ms.compiled.Set("__phase", "update"); err != nil {
		return err
	}
	if err := ms.compiled.Set("__engine", engine); err != nil {
		return err
	}
	if err := ms.compiled.Set("__tick", int64(tick)); err != nil {
		return err
	}
	if err := ms.compiled.Run(); err != nil {
		return fmt.Errorf("scenario: script %s: %w", ms.name, err)
	}
	return nil
}

func vectorObject(v r3.Vector) tengo.Object {
	return &tengo.Array{Value: []tengo.Object{
		&tengo.Float{Value: v.X},
		&tengo.Float{Value: v.Y},
		&tengo.Float{Value: v.Z},
	}}
}

func (ms *MotionScript) engine(w *world.Memory) *tengo.ImmutableMap {
	values := map[string]tengo.Object{}
	values["state"] = ms.state
	values["tick_rate"] = &tengo.Int{Value: int64(ms.tickRate)}

	values["position"] = &tengo.UserFunction{Name: "position", Value: func(args ...tengo.Object) (tengo.Object, error) {
		b, ok := w.Entity(ms.body)
		if !ok {
			return vectorObject(r3.Vector{}), nil
		}
		return vectorObject(b.Frame.Origin), nil
	}}

	values["velocity"] = &tengo.UserFunction{Name: "velocity", Value: func(args ...tengo.Object) (tengo.Object, error) {
		b, ok := w.Entity(ms.body)
		if !ok {
			return vectorObject(r3.Vector{}), nil
		}
		return vectorObject(b.Velocity), nil
	}}

	values["set_velocity"] = &tengo.UserFunction{Name: "set_velocity", Value: func(args ...tengo.Object) (tengo.Object, error) {
		v, ok := argsVector(args)
		if !ok {
			return nil, tengo.ErrWrongNumArguments
		}
		if w.SetVelocity(ms.body, v) {
			return tengo.TrueValue, nil
		}
		return tengo.FalseValue, nil
	}}

	values["set_position"] = &tengo.UserFunction{Name: "set_position", Value: func(args ...tengo.Object) (tengo.Object, error) {
		v, ok := argsVector(args)
		if !ok {
			return nil, tengo.ErrWrongNumArguments
		}
		if w.SetPosition(ms.body, v) {
			return tengo.TrueValue, nil
		}
		return tengo.FalseValue, nil
	}}

	values["log"] = &tengo.UserFunction{Name: "log", Value: func(args ...tengo.Object) (tengo.Object, error) {
		parts := make([]string, 0, len(args))
		for _, a := range args {
			parts = append(parts, objectAsString(a))
		}
		ms.log.Info(strings.Join(parts, " "))
		return tengo.UndefinedValue, nil
	}}

	return &tengo.ImmutableMap{Value: values}
}

// argsVector accepts either three numbers or one [x, y, z] array.
func argsVector(args []tengo.Object) (r3.Vector, bool) {
	if len(args) == 1 {
		arr, ok := args[0].(*tengo.Array)
		if !ok || len(arr.Value) != 3 {
			return r3.Vector{}, false
		}
		args = arr.Value
	}
	if len(args) != 3 {
		return r3.Vector{}, false
	}
	var out [3]float64
	for i, a := range args {
		f, ok := tengo.ToFloat64(a)
		if !ok {
			return r3.Vector{}, false
		}
		out[i] = f
	}
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}, true
}

func objectAsString(obj tengo.Object) string {
	if obj == nil {
		return ""
	}
	switch v := obj.(type) {
	case *tengo.String:
		return v.Value
	default:
		return strings.Trim(v.String(), "\"")
	}
}
