package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseWithFallback(t *testing.T) {
	t.Setenv("ORDER_CORE_TEST_VALUE", "")
	assert.Equal(t, "fallback", ParseWithFallback("ORDER_CORE_TEST_VALUE", "fallback"))

	t.Setenv("ORDER_CORE_TEST_VALUE", "set")
	assert.Equal(t, "set", ParseWithFallback("ORDER_CORE_TEST_VALUE", "fallback"))
}

func TestParseBoolWithFallback(t *testing.T) {
	t.Setenv("ORDER_CORE_TEST_FLAG", "not-a-bool")
	assert.True(t, ParseBoolWithFallback("ORDER_CORE_TEST_FLAG", true))

	t.Setenv("ORDER_CORE_TEST_FLAG", "false")
	assert.False(t, ParseBoolWithFallback("ORDER_CORE_TEST_FLAG", true))
}
