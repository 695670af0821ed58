package forecast

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestLinearExtrapolates(t *testing.T) {
	lin := NewLinear(4)

	out, err := lin.Forecast(context.Background(), testWindow(10))
	require.NoError(t, err)

	r, c := out.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 2, c)

	// The window is exactly linear: x = 1 + 0.1i, y = 5 + 0.5i.
	for i := 0; i < 4; i++ {
		ti := float64(10 + i)
		assert.InDelta(t, 1+0.1*ti, out.At(i, 0), 1e-9, "step %d x", i)
		assert.InDelta(t, 5+0.5*ti, out.At(i, 1), 1e-9, "step %d y", i)
	}
}

func TestLinearSingleSampleHolds(t *testing.T) {
	out, err := NewLinear(3).Forecast(context.Background(), NewWindow([]float64{2}, []float64{7}))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 2.0, out.At(i, 0), "step %d x", i)
		assert.Equal(t, 7.0, out.At(i, 1), "step %d y", i)
	}
}

func TestLinearRejectsBadWindow(t *testing.T) {
	lin := NewLinear(3)

	_, err := lin.Forecast(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyWindow)

	var shapeErr *ShapeError
	_, err = lin.Forecast(context.Background(), mat.NewDense(3, 3, nil))
	assert.ErrorAs(t, err, &shapeErr)
}

func TestChainFallback(t *testing.T) {
	failing := WithError(errors.New("model server down"))
	working := NewMock(2)

	chain, err := NewChain(failing, working)
	require.NoError(t, err)
	defer chain.Close()

	out, err := chain.Forecast(context.Background(), testWindow(5))
	require.NoError(t, err)
	r, _ := out.Dims()
	assert.Equal(t, 2, r, "rows from the working forecaster")
	assert.Equal(t, 1, failing.CallCount("Forecast"))
	assert.Equal(t, 1, working.CallCount("Forecast"))
}

func TestChainAllFail(t *testing.T) {
	chain, err := NewChain(WithError(errors.New("a")), WithError(errors.New("b")))
	require.NoError(t, err)
	defer chain.Close()

	_, err = chain.Forecast(context.Background(), testWindow(5))

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Len(t, chainErr.Errors, 2)
}

func TestChainEmpty(t *testing.T) {
	_, err := NewChain()
	assert.ErrorIs(t, err, ErrNoForecasters)
}

func TestChainClosesAll(t *testing.T) {
	a, b := NewMock(1), NewMock(1)
	chain, err := NewChain(a, b)
	require.NoError(t, err)

	chain.Close()

	assert.Equal(t, 1, a.CallCount("Close"))
	assert.Equal(t, 1, b.CallCount("Close"))
}

func TestMockRecordsWindowCopy(t *testing.T) {
	m := NewMock(1)
	w := testWindow(3)

	m.Forecast(context.Background(), w)
	w.Set(0, 0, 99)

	call := m.LastCall()
	require.NotNil(t, call)
	require.NotNil(t, call.Window)
	assert.NotEqual(t, 99.0, call.Window.At(0, 0), "recorded window should be a copy")
}

func TestFromRows(t *testing.T) {
	m, err := FromRows([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, Rows(m)[1])

	_, err = FromRows(nil)
	assert.ErrorIs(t, err, ErrEmptyOutput)
}
