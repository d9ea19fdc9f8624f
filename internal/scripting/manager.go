package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// TargetInfo is a snapshot of an affected entity passed to Lua callbacks.
type TargetInfo struct {
	ID        string
	Health    float64
	MaxHealth float64
	Alive     bool
	Tags      []string
}

// Manager owns one sandboxed LState holding every content script and exposes
// hook dispatch.
//
// Manager is safe for concurrent use. Calls into the VM are serialized.
type Manager struct {
	mu        sync.Mutex
	state     *lua.LState
	instLimit int
	logger    *zap.Logger

	// Injected after construction. nil = no-op in engine.* modules.
	GetTarget func(id string) *TargetInfo
	HasTag    func(id, tag string) bool
}

// NewManager creates a Manager with no scripts loaded.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
// Postcondition: Returns a non-nil Manager. A nil logger is replaced by zap.NewNop().
func NewManager(logger *zap.Logger, instLimit int) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{instLimit: instLimit, logger: logger}
}

// Load creates a fresh sandboxed VM, registers all engine.* modules, then
// executes every *.lua file in scriptDir in lexicographic order. A previously
// loaded VM is replaced only when every file loads cleanly.
//
// Precondition: scriptDir must be a readable directory.
// Postcondition: Returns error on read or Lua load failure.
func (m *Manager) Load(scriptDir string) error {
	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q: %w", scriptDir, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	L := NewSandboxedState(m.instLimit)
	m.RegisterModules(L)
	for _, path := range luaFiles {
		release := Budget(L, m.instLimit)
		err := L.DoFile(path)
		release()
		if err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}

	m.mu.Lock()
	if m.state != nil {
		m.state.Close()
	}
	m.state = L
	m.mu.Unlock()

	m.logger.Info("scripting: scripts loaded",
		zap.String("dir", scriptDir),
		zap.Int("files", len(luaFiles)),
	)
	return nil
}

// Close releases the VM. The Manager may be reloaded afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != nil {
		m.state.Close()
		m.state = nil
	}
}

// HasHook reports whether a global function named hook is defined.
func (m *Manager) HasHook(hook string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return false
	}
	_, ok := m.state.GetGlobal(hook).(*lua.LFunction)
	return ok
}

// CallHook calls the named Lua global function with a fresh instruction
// budget. Returns (LNil, nil) if no scripts are loaded or the hook is not
// defined. Lua runtime errors, including an exhausted budget, are logged at
// Warn level and returned.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(hook string, args ...lua.LValue) (lua.LValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	L := m.state
	if L == nil {
		m.logger.Debug("scripting: no scripts loaded", zap.String("hook", hook))
		return lua.LNil, nil
	}

	fn := L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil, nil
	}

	release := Budget(L, m.instLimit)
	defer release()
	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, fmt.Errorf("scripting: hook %q: %w", hook, err)
	}

	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// CallNumber calls hook with numeric arguments and returns its numeric result.
//
// Postcondition: Returns an error when the hook is undefined, fails, or
// returns a non-number.
func (m *Manager) CallNumber(hook string, args ...float64) (float64, error) {
	if !m.HasHook(hook) {
		return 0, fmt.Errorf("scripting: hook %q is not defined", hook)
	}
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = lua.LNumber(a)
	}
	ret, err := m.CallHook(hook, largs...)
	if err != nil {
		return 0, err
	}
	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("scripting: hook %q returned %s, want number", hook, ret.Type())
	}
	return float64(n), nil
}
