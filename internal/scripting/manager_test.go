package scripting_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/gas/internal/scripting"
)

func newTestManager(t testing.TB) (*scripting.Manager, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	mgr := scripting.NewManager(zap.New(core), 0)
	t.Cleanup(mgr.Close)
	return mgr, logs
}

func writeTempLua(t testing.TB, filename, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(src), 0644))
	return dir
}

func TestManager_Load_CallsHook(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := writeTempLua(t, "hooks.lua", `
		function test_hook(a, b)
			return a + b
		end
	`)
	require.NoError(t, mgr.Load(dir))
	ret, err := mgr.CallHook("test_hook", lua.LNumber(3), lua.LNumber(4))
	require.NoError(t, err)
	assert.Equal(t, lua.LNumber(7), ret)
}

func TestManager_CallHook_MissingHook_NoOp(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Load(writeTempLua(t, "empty.lua", `-- no functions`)))
	ret, err := mgr.CallHook("nonexistent_hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.False(t, mgr.HasHook("nonexistent_hook"))
}

func TestManager_CallHook_NotLoaded_ReturnsNil(t *testing.T) {
	mgr, logs := newTestManager(t)
	ret, err := mgr.CallHook("some_hook")
	require.NoError(t, err)
	assert.Equal(t, lua.LNil, ret)
	assert.Equal(t, 1, logs.FilterMessage("scripting: no scripts loaded").Len())
}

func TestManager_CallHook_RuntimeError_LoggedAndReturned(t *testing.T) {
	mgr, logs := newTestManager(t)
	require.NoError(t, mgr.Load(writeTempLua(t, "bad.lua", `
		function explode()
			error("boom")
		end
	`)))
	ret, err := mgr.CallHook("explode")
	require.Error(t, err)
	assert.Equal(t, lua.LNil, ret)
	warns := logs.FilterMessage("scripting: Lua runtime error").All()
	require.Len(t, warns, 1)
	assert.Equal(t, zap.WarnLevel, warns[0].Level)
}

func TestManager_Load_SyntaxError(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.Load(writeTempLua(t, "broken.lua", `function (`))
	assert.Error(t, err)
}

func TestManager_Load_MissingDir(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.Error(t, mgr.Load(filepath.Join(t.TempDir(), "absent")))
}

func TestManager_Load_FilesInLexicalOrder(t *testing.T) {
	mgr, _ := newTestManager(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.lua"), []byte(`value = value .. "b"`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.lua"), []byte(`value = "a"`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), []byte(`not lua at all (`), 0644))
	require.NoError(t, mgr.Load(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "z.lua"), []byte(`function get() return value end`), 0644))
	require.NoError(t, mgr.Load(dir))
	ret, err := mgr.CallHook("get")
	require.NoError(t, err)
	assert.Equal(t, lua.LString("ab"), ret)
}

func TestManager_Load_FailureKeepsPreviousVM(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Load(writeTempLua(t, "ok.lua", `function one() return 1 end`)))
	require.Error(t, mgr.Load(writeTempLua(t, "bad.lua", `function (`)))
	n, err := mgr.CallNumber("one")
	require.NoError(t, err)
	assert.Equal(t, 1.0, n)
}

func TestManager_CallNumber(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Load(writeTempLua(t, "curves.lua", `
		function double(x) return x * 2 end
		function label(x) return "x" end
	`)))
	n, err := mgr.CallNumber("double", 2.5)
	require.NoError(t, err)
	assert.Equal(t, 5.0, n)

	_, err = mgr.CallNumber("label", 1)
	assert.Error(t, err)
	_, err = mgr.CallNumber("undefined", 1)
	assert.Error(t, err)
}

func TestManager_InstructionBudgetResetsPerCall(t *testing.T) {
	core, _ := observer.New(zap.DebugLevel)
	mgr := scripting.NewManager(zap.New(core), 2_000)
	t.Cleanup(mgr.Close)
	require.NoError(t, mgr.Load(writeTempLua(t, "loop.lua", `
		function short()
			local s = 0
			for i = 1, 50 do s = s + i end
			return s
		end
		function forever()
			while true do end
		end
	`)))
	// Repeated short calls each get a fresh budget.
	for i := 0; i < 100; i++ {
		n, err := mgr.CallNumber("short")
		require.NoError(t, err)
		require.Equal(t, 1275.0, n)
	}
	_, err := mgr.CallHook("forever")
	assert.Error(t, err)
	// The VM stays usable after an exhausted budget.
	n, err := mgr.CallNumber("short")
	require.NoError(t, err)
	assert.Equal(t, 1275.0, n)
}

func TestPropertyCallNumber_AddsArguments(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Load(writeTempLua(t, "add.lua", `function add(a, b) return a + b end`)))
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.Float64Range(-1e6, 1e6).Draw(t, "a")
		b := rapid.Float64Range(-1e6, 1e6).Draw(t, "b")
		n, err := mgr.CallNumber("add", a, b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != a+b {
			t.Fatalf("add(%v, %v) = %v", a, b, n)
		}
	})
}
