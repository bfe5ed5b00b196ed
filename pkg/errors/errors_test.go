package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestError(t *testing.T) {
	e1 := New("cause1")
	e2 := New("cause2").Wrap(e1)
	e := New("dummy").Wrap(e2)
	e3 := e.Unwrap()
	assert.True(t, Is(e, e1))
	assert.True(t, Is(e, e2))
	assert.True(t, e3 == e2)
	assert.Equal(t, "dummy: cause2: cause1", e.Error())
}

func TestSentinelNotMutated(t *testing.T) {
	sentinel := New("sentinel")
	cause := fmt.Errorf("io failure")

	wrapped := sentinel.Wrap(cause)
	assert.Nil(t, sentinel.Unwrap())
	assert.Equal(t, "sentinel", sentinel.Error())
	assert.True(t, Is(wrapped, sentinel))
	assert.True(t, Is(wrapped, cause))

	detailed := wrapped.WrapMessage("key %q", "a/b")
	assert.True(t, Is(detailed, sentinel))
	assert.True(t, Is(detailed, cause))
	assert.Equal(t, `sentinel: key "a/b": io failure`, detailed.Error())

	other := New("other")
	assert.False(t, Is(detailed, other))
}

func TestWrapWithLog(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sentinel := New("failed")
	err := sentinel.WrapWithLog(zap.New(core), fmt.Errorf("boom"), zap.String("token", "x"))

	assert.True(t, Is(err, sentinel))
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "failed", logs.All()[0].Message)
}

func TestAs(t *testing.T) {
	var target *Error
	err := fmt.Errorf("outer: %w", New("inner"))
	assert.True(t, As(err, &target))
	assert.Equal(t, "inner", target.Error())
}
