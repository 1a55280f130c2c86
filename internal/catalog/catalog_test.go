package catalog

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mmeadows3/clai/internal/definition"
)

// stubContract creates a contract whose invoke echoes its own name
func stubContract(name string) *Contract {
	return NewContract(name, definition.KindCLICommand,
		func(_ context.Context, _ map[string]any, _ CallFunc) (map[string]any, error) {
			return map[string]any{"name": name}, nil
		})
}

// TestRegisterAndLookup tests basic registration and lookup
func TestRegisterAndLookup(t *testing.T) {
	cat := New()
	require.NoError(t, cat.Register(stubContract("hello")))

	contract, ok := cat.Lookup("hello")
	require.True(t, ok)
	assert.Equal(t, "hello", contract.Name)

	_, ok = cat.Lookup("missing")
	assert.False(t, ok)
}

// TestRegister_ReplaceKeepsPosition tests that re-registration replaces without reordering
func TestRegister_ReplaceKeepsPosition(t *testing.T) {
	cat := New()
	require.NoError(t, cat.Register(stubContract("a")))
	require.NoError(t, cat.Register(stubContract("b")))
	require.NoError(t, cat.Register(stubContract("c")))

	replacement := NewContract("a", definition.KindScriptRunner,
		func(_ context.Context, _ map[string]any, _ CallFunc) (map[string]any, error) {
			return nil, nil
		})
	require.NoError(t, cat.Register(replacement))

	assert.Equal(t, []string{"a", "b", "c"}, cat.Names())
	assert.Equal(t, 3, cat.Len())

	contract, ok := cat.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, definition.KindScriptRunner, contract.Kind)
}

// TestAll_RegistrationOrder tests that enumeration follows registration order and restarts
func TestAll_RegistrationOrder(t *testing.T) {
	cat := New()
	for _, name := range []string{"zed", "alpha", "mid"} {
		require.NoError(t, cat.Register(stubContract(name)))
	}

	collect := func() []string {
		var names []string
		for contract := range cat.All() {
			names = append(names, contract.Name)
		}
		return names
	}

	assert.Equal(t, []string{"zed", "alpha", "mid"}, collect())
	// The sequence must be restartable
	assert.Equal(t, []string{"zed", "alpha", "mid"}, collect())
}

// TestSeal_RejectsRegistration tests that a sealed catalog rejects new contracts
func TestSeal_RejectsRegistration(t *testing.T) {
	cat := New()
	require.NoError(t, cat.Register(stubContract("early")))

	assert.False(t, cat.Sealed())
	cat.Seal()
	assert.True(t, cat.Sealed())

	err := cat.Register(stubContract("late"))
	require.Error(t, err)

	var sealedErr *SealedError
	require.ErrorAs(t, err, &sealedErr)
	assert.Equal(t, "late", sealedErr.Name)

	_, ok := cat.Lookup("late")
	assert.False(t, ok)
	assert.Equal(t, 1, cat.Len())
}

// TestRecordFailure tests failure bookkeeping
func TestRecordFailure(t *testing.T) {
	cat := New()
	require.NoError(t, cat.Register(stubContract("ok")))

	cat.RecordFailure(*definition.NewMountingError("broken", "/tools/broken/TOOL.yaml",
		definition.ReasonSchemaInvalid, "no kind"))

	assert.Equal(t, 1, cat.RegisteredCount())
	assert.Equal(t, 1, cat.FailedCount())

	failures := cat.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "broken", failures[0].Definition)
	assert.Equal(t, definition.ReasonSchemaInvalid, failures[0].Reason)
}

// TestConcurrentLookups tests that lookups are safe alongside registration
func TestConcurrentLookups(t *testing.T) {
	cat := New()
	for i := 0; i < 50; i++ {
		require.NoError(t, cat.Register(stubContract(fmt.Sprintf("tool-%02d", i))))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				name := fmt.Sprintf("tool-%02d", j%50)
				contract, ok := cat.Lookup(name)
				assert.True(t, ok)
				assert.Equal(t, name, contract.Name)
			}
		}()
	}
	wg.Wait()
}

// TestContract_Invoke tests that Invoke runs the bound operation
func TestContract_Invoke(t *testing.T) {
	contract := NewContract("echo", definition.KindCLICommand,
		func(_ context.Context, args map[string]any, _ CallFunc) (map[string]any, error) {
			return map[string]any{"stdout": args["message"]}, nil
		})

	payload, err := contract.Invoke(context.Background(), map[string]any{"message": "hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", payload["stdout"])
}

// TestContract_InputSchema tests the JSON schema projection
func TestContract_InputSchema(t *testing.T) {
	contract := stubContract("schema")
	contract.Inputs = []definition.ParamSpec{
		{Name: "message", Type: "string", Description: "what to say", Required: true},
		{Name: "count", Type: "integer", Default: 1},
		{Name: "loud", Type: "boolean", Required: true},
	}

	schema := contract.InputSchema()
	assert.Equal(t, "object", schema["type"])

	properties, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	require.Len(t, properties, 3)

	message, ok := properties["message"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", message["type"])
	assert.Equal(t, "what to say", message["description"])

	count, ok := properties["count"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, count["default"])

	assert.Equal(t, []string{"loud", "message"}, schema["required"])
}

// TestContract_InputSchema_NoParams tests the schema for a parameterless contract
func TestContract_InputSchema_NoParams(t *testing.T) {
	schema := stubContract("bare").InputSchema()
	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "required")
}

// TestContract_OutputSchema tests the output schema projection
func TestContract_OutputSchema(t *testing.T) {
	contract := stubContract("out")
	assert.Nil(t, contract.OutputSchema())

	contract.Outputs = map[string]string{"stdout": "captured stdout"}
	schema := contract.OutputSchema()
	require.NotNil(t, schema)

	properties, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, properties, "stdout")
}
