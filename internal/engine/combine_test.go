package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lisahligono/semantique/pkg/core"
)

func TestCombine(t *testing.T) {
	a := core.Must(core.NewArray("a", []string{"x"}, []int{3}, []float64{1, 0, math.NaN()}))
	b := core.Must(core.NewArray("b", []string{"x"}, []int{3}, []float64{2, 4, 6}))

	tests := []struct {
		name     string
		prop     core.Property
		operands []*core.Array
		want     []float64
	}{
		{"single passes through", core.Property{}, []*core.Array{b}, []float64{2, 4, 6}},
		{"default is all", core.Property{}, []*core.Array{a, b}, []float64{1, 0, 1}},
		{"any", core.Property{Combine: core.CombineAny}, []*core.Array{a, b}, []float64{1, 1, 1}},
		{"sum", core.Property{Combine: core.CombineSum}, []*core.Array{b, b}, []float64{4, 8, 12}},
		{"max with scalar", core.Property{Combine: core.CombineMax}, []*core.Array{b, core.Scalar(3)}, []float64{3, 4, 6}},
		{"not", core.Property{Combine: core.CombineNot}, []*core.Array{a}, []float64{0, 1, math.NaN()}},
		{"expression", core.Property{Combine: core.CombineExpression, Expression: "x0 * x1 if x0 > 0 else None"}, []*core.Array{a, b}, []float64{2, math.NaN(), math.NaN()}},
		{"expression list", core.Property{Combine: core.CombineExpression, Expression: "len(x)"}, []*core.Array{a, b}, []float64{2, 2, 2}},
		{"expression nan", core.Property{Combine: core.CombineExpression, Expression: "isnan(x0)"}, []*core.Array{a}, []float64{0, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := combine(&tt.prop, tt.operands)
			require.NoError(t, err)
			want := core.Must(core.NewArray("", []string{"x"}, []int{3}, tt.want))
			assert.True(t, want.Equal(out), "got %v", out.Data)
		})
	}
}

func TestCombine_DoesNotAliasOperand(t *testing.T) {
	b := core.Must(core.NewArray("b", []string{"x"}, []int{2}, []float64{2, 4}))
	out, err := combine(&core.Property{}, []*core.Array{b})
	require.NoError(t, err)
	out.Data[0] = 9
	assert.Equal(t, 2.0, b.Data[0])
}

func TestCombine_Errors(t *testing.T) {
	a := core.Must(core.NewArray("a", []string{"x"}, []int{2}, []float64{1, 2}))
	c := core.Must(core.NewArray("c", []string{"y"}, []int{2}, []float64{1, 2}))

	tests := []struct {
		name     string
		prop     core.Property
		operands []*core.Array
		wantErr  error
	}{
		{"no operands", core.Property{}, nil, nil},
		{"shape mismatch", core.Property{Combine: core.CombineSum}, []*core.Array{a, c}, core.ErrShapeMismatch},
		{"not takes one", core.Property{Combine: core.CombineNot}, []*core.Array{a, a}, nil},
		{"empty expression", core.Property{Combine: core.CombineExpression}, []*core.Array{a}, nil},
		{"syntax error", core.Property{Combine: core.CombineExpression, Expression: "x0 +"}, []*core.Array{a}, nil},
		{"runtime error", core.Property{Combine: core.CombineExpression, Expression: "x0 + 'a'"}, []*core.Array{a}, nil},
		{"non numeric", core.Property{Combine: core.CombineExpression, Expression: "'a'"}, []*core.Array{a}, nil},
		{"unknown rule", core.Property{Combine: "median"}, []*core.Array{a}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := combine(&tt.prop, tt.operands)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
