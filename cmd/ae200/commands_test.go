package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zberg/go-ae200/internal/simulator"
	"github.com/zberg/go-ae200/pkg/ae200"
)

type fixedBounds struct {
	min, max float64
	err      error
}

func (b fixedBounds) MinTemp(context.Context) (float64, error) { return b.min, b.err }
func (b fixedBounds) MaxTemp(context.Context) (float64, error) { return b.max, b.err }

func TestCheckTemperature(t *testing.T) {
	ctx := context.Background()
	bounds := fixedBounds{min: 17, max: 28}

	assert.NoError(t, checkTemperature(ctx, bounds, 17))
	assert.NoError(t, checkTemperature(ctx, bounds, 28))
	assert.EqualError(t, checkTemperature(ctx, bounds, 30), "temperature 30.0 is outside 17.0-28.0 for the current mode")

	err := checkTemperature(ctx, fixedBounds{err: ae200.ErrTransport}, 21)
	assert.ErrorIs(t, err, ae200.ErrTransport)
	assert.Contains(t, err.Error(), "read minimum temperature")
}

func TestParseUnits(t *testing.T) {
	units, err := parseUnits([]string{"1=Living Room", `12="Server Room"`})
	require.NoError(t, err)
	assert.Equal(t, []simulator.Unit{
		{Group: "1", Name: "Living Room"},
		{Group: "12", Name: "Server Room"},
	}, units)

	units, err = parseUnits(nil)
	require.NoError(t, err)
	assert.Len(t, units, 2)

	_, err = parseUnits([]string{"Living Room"})
	assert.Error(t, err)
	_, err = parseUnits([]string{"1=a", "1=b"})
	assert.Error(t, err)
}

func TestFormatTemp(t *testing.T) {
	assert.Equal(t, "21.5", formatTemp(21.5, true, nil))
	assert.Equal(t, "?", formatTemp(0, false, nil))
}

func TestRootCommandAcceptsOneAddress(t *testing.T) {
	assert.NoError(t, rootCmd.Args(rootCmd, []string{"10.0.0.5"}))
	assert.Error(t, rootCmd.Args(rootCmd, []string{"a", "b"}))
}
