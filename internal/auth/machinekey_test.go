package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveMachineKey_Deterministic(t *testing.T) {
	key1 := DeriveMachineKey()
	key2 := DeriveMachineKey()

	assert.Equal(t, key1, key2, "key must be stable across calls on the same machine")
}

func TestDeriveMachineKey_NotZero(t *testing.T) {
	key := DeriveMachineKey()

	var zero [32]byte
	assert.NotEqual(t, zero, key)
}

func TestDeriveMachineKey_SensitiveToProcessorIdentifier(t *testing.T) {
	before := DeriveMachineKey()

	// Windows exposes the processor string through this variable; changing
	// any input component must change the derived key.
	t.Setenv("PROCESSOR_IDENTIFIER", "different-cpu")
	after := DeriveMachineKey()

	assert.NotEqual(t, before, after)
}
