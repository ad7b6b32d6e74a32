package effects

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

const lightTypeName = "huectl.light"

// ScriptEffect runs a user-supplied Lua file as an effect. The script must
// define a global function tick(light, params); the scheduler calls it once
// per tick with the light exposed as a userdata. One Lua state serves the
// whole effect and is never shared across goroutines, so each ScriptEffect
// must drive exactly one slot.
type ScriptEffect struct {
	name string

	mu   sync.Mutex
	ls   *lua.LState
	tick *lua.LFunction
	ctx  context.Context // context of the tick in flight, guarded by mu
}

// LoadScript compiles a script and resolves its tick function. Script errors
// are parameter errors: they surface before any unit is created.
func LoadScript(path string) (*ScriptEffect, error) {
	e := &ScriptEffect{name: "script:" + filepath.Base(path)}

	ls := lua.NewState()
	registerLightType(ls)
	ls.SetGlobal("sleep", ls.NewFunction(e.luaSleep))
	ls.SetGlobal("log", ls.NewFunction(luaLog))

	if err := ls.DoFile(path); err != nil {
		ls.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	fn, ok := ls.GetGlobal("tick").(*lua.LFunction)
	if !ok {
		ls.Close()
		return nil, fmt.Errorf("%w: script %s does not define tick(light, params)", ErrInvalidParameter, path)
	}

	e.ls = ls
	e.tick = fn
	return e, nil
}

func (e *ScriptEffect) Name() string { return e.name }

func (e *ScriptEffect) Validate(p Params) error { return p.validate() }

// Tick calls the script's tick(light, params) once.
func (e *ScriptEffect) Tick(ctx context.Context, light Light, r Resolved) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx = ctx

	params := e.ls.NewTable()
	e.ls.SetField(params, "brightness", lua.LNumber(r.Brightness))
	e.ls.SetField(params, "saturation", lua.LNumber(r.Saturation))
	if r.Hue != nil {
		e.ls.SetField(params, "hue", lua.LNumber(*r.Hue))
	}
	e.ls.SetField(params, "interval", lua.LNumber(r.Interval.Seconds()))

	e.ls.Push(e.tick)
	pushLight(e.ls, light, ctx)
	e.ls.Push(params)

	if err := e.ls.PCall(2, 0, nil); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("script tick: %w", err)
	}
	return nil
}

// Close releases the Lua state. Call only after the effect's slot has
// stopped.
func (e *ScriptEffect) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ls != nil {
		e.ls.Close()
		e.ls = nil
	}
}

// luaSleep pauses the script, honoring cancellation of the running tick.
// sleep(seconds)
func (e *ScriptEffect) luaSleep(L *lua.LState) int {
	seconds := float64(L.CheckNumber(1))
	if err := sleep(e.ctx, time.Duration(seconds*float64(time.Second))); err != nil {
		L.RaiseError("cancelled")
	}
	return 0
}

// luaLog writes a script message through the application logger.
// log(message)
func luaLog(L *lua.LState) int {
	log.Info().Str("source", "script").Msg(L.CheckString(1))
	return 0
}

// lightUserdata wraps a Light plus the context of the tick in flight.
type lightUserdata struct {
	light Light
	ctx   context.Context
}

// registerLightType registers the huectl.light metatable.
func registerLightType(L *lua.LState) {
	mt := L.NewTypeMetatable(lightTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), lightMethods))
}

var lightMethods = map[string]lua.LGFunction{
	"name":       lightName,
	"set_state":  lightSetState,
	"blink_once": lightBlinkOnce,
	"sweep_step": lightSweepStep,
}

// pushLight creates a new light userdata and pushes it onto the stack.
func pushLight(L *lua.LState, light Light, ctx context.Context) {
	ud := L.NewUserData()
	ud.Value = &lightUserdata{light: light, ctx: ctx}
	L.SetMetatable(ud, L.GetTypeMetatable(lightTypeName))
	L.Push(ud)
}

// checkLight retrieves the light userdata from the Lua stack.
func checkLight(L *lua.LState) *lightUserdata {
	ud := L.CheckUserData(1)
	if v, ok := ud.Value.(*lightUserdata); ok {
		return v
	}
	L.ArgError(1, "huectl.light expected")
	return nil
}

// light:name() -> string
func lightName(L *lua.LState) int {
	lu := checkLight(L)
	L.Push(lua.LString(lu.light.Name()))
	return 1
}

// light:set_state(on, sat, bri [, hue])
func lightSetState(L *lua.LState) int {
	lu := checkLight(L)
	on := L.CheckBool(2)
	sat := L.CheckInt(3)
	bri := L.CheckInt(4)
	var hueVal *int
	if L.GetTop() >= 5 {
		v := L.CheckInt(5)
		hueVal = &v
	}
	if err := lu.light.SetState(lu.ctx, on, sat, bri, hueVal); err != nil {
		L.RaiseError("set_state: %s", err.Error())
	}
	return 0
}

// light:blink_once(seconds, sat, bri [, hue])
func lightBlinkOnce(L *lua.LState) int {
	lu := checkLight(L)
	seconds := float64(L.CheckNumber(2))
	sat := L.CheckInt(3)
	bri := L.CheckInt(4)
	var hueVal *int
	if L.GetTop() >= 5 {
		v := L.CheckInt(5)
		hueVal = &v
	}
	interval := time.Duration(seconds * float64(time.Second))
	if err := lu.light.BlinkOnce(lu.ctx, interval, sat, bri, hueVal); err != nil {
		L.RaiseError("blink_once: %s", err.Error())
	}
	return 0
}

// light:sweep_step(hue, bri)
func lightSweepStep(L *lua.LState) int {
	lu := checkLight(L)
	hueVal := L.CheckInt(2)
	bri := L.CheckInt(3)
	if err := lu.light.ColorSweepStep(lu.ctx, hueVal, bri); err != nil {
		L.RaiseError("sweep_step: %s", err.Error())
	}
	return 0
}
