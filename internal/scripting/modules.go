package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RegisterModules registers all engine.* Lua tables into L:
//
//	engine.log.debug/info/warn/error(msg)
//	engine.target(id)        -> table {id, health, max_health, alive, tags} or nil
//	engine.has_tag(id, tag)  -> boolean
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState) {
	engine := L.NewTable()

	log := L.NewTable()
	L.SetField(log, "debug", L.NewFunction(m.logFn(zap.DebugLevel)))
	L.SetField(log, "info", L.NewFunction(m.logFn(zap.InfoLevel)))
	L.SetField(log, "warn", L.NewFunction(m.logFn(zap.WarnLevel)))
	L.SetField(log, "error", L.NewFunction(m.logFn(zap.ErrorLevel)))
	L.SetField(engine, "log", log)

	L.SetField(engine, "target", L.NewFunction(m.luaTarget))
	L.SetField(engine, "has_tag", L.NewFunction(m.luaHasTag))

	L.SetGlobal("engine", engine)
}

func (m *Manager) logFn(level zapcore.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		m.logger.Log(level, L.CheckString(1), zap.String("source", "lua"))
		return 0
	}
}

func (m *Manager) luaTarget(L *lua.LState) int {
	id := L.CheckString(1)
	if m.GetTarget == nil {
		L.Push(lua.LNil)
		return 1
	}
	info := m.GetTarget(id)
	if info == nil {
		L.Push(lua.LNil)
		return 1
	}
	t := L.NewTable()
	L.SetField(t, "id", lua.LString(info.ID))
	L.SetField(t, "health", lua.LNumber(info.Health))
	L.SetField(t, "max_health", lua.LNumber(info.MaxHealth))
	L.SetField(t, "alive", lua.LBool(info.Alive))
	tags := L.NewTable()
	for _, tg := range info.Tags {
		tags.Append(lua.LString(tg))
	}
	L.SetField(t, "tags", tags)
	L.Push(t)
	return 1
}

func (m *Manager) luaHasTag(L *lua.LState) int {
	id := L.CheckString(1)
	tg := L.CheckString(2)
	if m.HasTag == nil {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LBool(m.HasTag(id, tg)))
	return 1
}
