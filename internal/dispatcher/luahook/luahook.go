// Package luahook lets a Lua script veto operations before they run.
//
// The script must define a global function allow(req). req is a table
// with the fields kind, files, selection and params; params holds the
// operation parameters under their JSON names. allow returns a boolean
// and an optional reason:
//
//	function allow(req)
//	  if req.kind == "delete-pages" and req.selection == "" then
//	    return false, "refusing to delete without a selection"
//	  end
//	  return true
//	end
//
// Scripts run in a restricted state: only the base, table, string and
// math libraries are available. A docforge.log(level, message) function
// forwards messages to the engine logger.
package luahook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/docforge/internal/dispatcher"
	"github.com/dshills/docforge/internal/logging"
)

// DefaultTimeout bounds a single call to allow.
const DefaultTimeout = time.Second

// Errors returned by Hook.
var (
	ErrClosed       = errors.New("luahook: state is closed")
	ErrMissingAllow = errors.New("luahook: script does not define allow")
)

// VetoError is returned when the script rejects a request.
type VetoError struct {
	Reason string
}

func (e *VetoError) Error() string {
	if e.Reason == "" {
		return "luahook: request vetoed"
	}
	return "luahook: " + e.Reason
}

// Hook is a dispatcher.PreExecuteHook backed by a Lua script.
// The Lua state is not goroutine safe; calls are serialized.
type Hook struct {
	mu      sync.Mutex
	L       *lua.LState
	timeout time.Duration
	logger  *log.Logger
	closed  bool
}

// Option configures a Hook.
type Option func(*Hook)

// WithTimeout sets the time a single allow call may take.
func WithTimeout(d time.Duration) Option {
	return func(h *Hook) {
		h.timeout = d
	}
}

// WithLogger sets the logger docforge.log writes to.
func WithLogger(l *log.Logger) Option {
	return func(h *Hook) {
		if l != nil {
			h.logger = l
		}
	}
}

// New compiles and runs script, which must define allow.
func New(script string, opts ...Option) (*Hook, error) {
	h := &Hook{
		timeout: DefaultTimeout,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	h.L = L
	h.installModule()

	if err := h.protect(func() error { return L.DoString(script) }); err != nil {
		L.Close()
		return nil, fmt.Errorf("luahook: loading script: %w", err)
	}
	if fn := L.GetGlobal("allow"); fn.Type() != lua.LTFunction {
		L.Close()
		return nil, ErrMissingAllow
	}
	return h, nil
}

// Load reads the script at path and calls New.
func Load(path string, opts ...Option) (*Hook, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("luahook: %w", err)
	}
	return New(string(src), opts...)
}

func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
}

func (h *Hook) installModule() {
	mod := h.L.SetFuncs(h.L.NewTable(), map[string]lua.LGFunction{
		"log": h.luaLog,
	})
	h.L.SetGlobal("docforge", mod)
}

func (h *Hook) luaLog(L *lua.LState) int {
	level := L.CheckString(1)
	msg := L.CheckString(2)
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	h.logger.Log(lvl, msg, "source", "lua")
	return 0
}

// PreExecute implements dispatcher.PreExecuteHook.
func (h *Hook) PreExecute(ctx context.Context, req dispatcher.Request) error {
	allowed, reason, err := h.Allow(ctx, req)
	if err != nil {
		return err
	}
	if !allowed {
		return &VetoError{Reason: reason}
	}
	return nil
}

// Allow calls the script's allow function with req.
func (h *Hook) Allow(ctx context.Context, req dispatcher.Request) (bool, string, error) {
	arg, err := requestValue(req)
	if err != nil {
		return false, "", err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false, "", ErrClosed
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	h.L.SetContext(ctx)
	defer h.L.RemoveContext()

	top := h.L.GetTop()
	defer h.L.SetTop(top)
	err = h.protect(func() error {
		return h.L.CallByParam(lua.P{
			Fn:      h.L.GetGlobal("allow"),
			NRet:    2,
			Protect: true,
		}, toLua(h.L, arg))
	})
	if err != nil {
		return false, "", fmt.Errorf("luahook: allow(%s): %w", req.Kind, err)
	}
	allowed := lua.LVAsBool(h.L.Get(top + 1))
	reason := ""
	if s, ok := h.L.Get(top + 2).(lua.LString); ok {
		reason = string(s)
	}
	return allowed, reason, nil
}

// Close releases the Lua state.
func (h *Hook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.L.Close()
	h.closed = true
	return nil
}

func (h *Hook) protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// requestValue turns req into plain maps and slices via its JSON form.
func requestValue(req dispatcher.Request) (map[string]any, error) {
	params := map[string]any{}
	if req.Params != nil {
		raw, err := json.Marshal(req.Params)
		if err != nil {
			return nil, fmt.Errorf("luahook: encoding params: %w", err)
		}
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("luahook: encoding params: %w", err)
		}
	}
	files := make([]any, len(req.FileIDs))
	for i, id := range req.FileIDs {
		files[i] = id
	}
	return map[string]any{
		"kind":      string(req.Kind),
		"files":     files,
		"selection": req.Selection,
		"params":    params,
	}, nil
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		t := L.NewTable()
		for _, item := range val {
			t.Append(toLua(L, item))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, item := range val {
			t.RawSetString(k, toLua(L, item))
		}
		return t
	default:
		return lua.LString(fmt.Sprint(val))
	}
}
