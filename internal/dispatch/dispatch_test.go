package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/forgebridge/forgebridge/internal/wire"
)

func req(command string, params any) *wire.CommandRequest {
	r, err := wire.NewRequest(command, params)
	if err != nil {
		panic(err)
	}
	return r
}

func TestDispatchSuccess(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("ping", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "pong", nil
	})

	res := r.Dispatch(context.Background(), req("ping", nil))
	if !res.Success {
		t.Fatalf("res = %+v, want success", res)
	}

	var out string
	if err := res.Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out != "pong" {
		t.Errorf("result = %q, want %q", out, "pong")
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	r := NewRegistry(nil)

	res := r.Dispatch(context.Background(), req("no_such", nil))
	if res.Success {
		t.Fatal("res.Success = true, want failure")
	}
	if !strings.Contains(res.Error, "unknown command") {
		t.Errorf("error = %q, want unknown command", res.Error)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("boom", func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, errors.New("object not found: Cube")
	})

	res := r.Dispatch(context.Background(), req("boom", nil))
	if res.Success {
		t.Fatal("res.Success = true, want failure")
	}
	if res.Error != "object not found: Cube" {
		t.Errorf("error = %q", res.Error)
	}
}

func TestDispatchContainsPanicAndKeepsServing(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("panic", func(ctx context.Context, params json.RawMessage) (any, error) {
		panic("nil pointer somewhere deep in the host API")
	})
	r.Register("ping", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "pong", nil
	})

	res := r.Dispatch(context.Background(), req("panic", nil))
	if res.Success {
		t.Fatal("res.Success = true, want failure")
	}
	if !strings.Contains(res.Error, "internal error") {
		t.Errorf("error = %q, want internal error", res.Error)
	}

	// The registry still serves the next request.
	if res := r.Dispatch(context.Background(), req("ping", nil)); !res.Success {
		t.Errorf("follow-up dispatch = %+v, want success", res)
	}
}

func TestDispatchPrivilegedToken(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterPrivileged("execute_code", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "ran", nil
	})
	r.SetAuthToken("tok")

	res := r.Dispatch(context.Background(), req("execute_code", nil))
	if res.Success || res.Error != "unauthorized" {
		t.Errorf("without token: res = %+v, want unauthorized", res)
	}

	good := req("execute_code", nil)
	good.AuthToken = "tok"
	if res := r.Dispatch(context.Background(), good); !res.Success {
		t.Errorf("with token: res = %+v, want success", res)
	}
}

func TestDispatchNoTokenConfigured(t *testing.T) {
	// Hosts started without a token skip the check entirely.
	r := NewRegistry(nil)
	r.RegisterPrivileged("execute_code", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "ran", nil
	})

	if res := r.Dispatch(context.Background(), req("execute_code", nil)); !res.Success {
		t.Errorf("res = %+v, want success", res)
	}
}

func TestDispatchGuardShortCircuits(t *testing.T) {
	called := false
	r := NewRegistry(nil)
	r.Register("execute_code", func(ctx context.Context, params json.RawMessage) (any, error) {
		called = true
		return nil, nil
	})
	r.Guard("execute_code", func(ctx context.Context, params json.RawMessage) string {
		return "dangerous pattern subprocess"
	})

	res := r.Dispatch(context.Background(), req("execute_code", nil))
	if res.Success {
		t.Fatal("res.Success = true, want blocked")
	}
	if !strings.HasPrefix(res.Error, "blocked: ") {
		t.Errorf("error = %q, want blocked prefix", res.Error)
	}
	if called {
		t.Error("handler ran despite guard veto")
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate Register did not panic")
		}
	}()

	r := NewRegistry(nil)
	h := func(ctx context.Context, params json.RawMessage) (any, error) { return nil, nil }
	r.Register("ping", h)
	r.Register("ping", h)
}

func TestCommandsSorted(t *testing.T) {
	r := NewRegistry(nil)
	h := func(ctx context.Context, params json.RawMessage) (any, error) { return nil, nil }
	r.Register("b", h)
	r.Register("a", h)
	r.Register("c", h)

	got := r.Commands()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Commands() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Commands() = %v, want %v", got, want)
		}
	}
}
