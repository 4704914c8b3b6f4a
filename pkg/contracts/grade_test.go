package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGrade(t *testing.T) {
	tests := []struct {
		in      string
		want    SanadGrade
		wantErr bool
	}{
		{"A", GradeA, false},
		{"B", GradeB, false},
		{"C", GradeC, false},
		{"D", GradeD, false},
		{"", "", true},
		{"a", "", true},
		{"E", "", true},
		{"A+", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGrade(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				var unknown *UnknownCodeError
				assert.ErrorAs(t, err, &unknown)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGradeOrdering(t *testing.T) {
	assert.True(t, GradeA.Better(GradeB))
	assert.True(t, GradeB.Better(GradeC))
	assert.True(t, GradeC.Better(GradeD))
	assert.False(t, GradeD.Better(GradeA))
	assert.False(t, GradeB.Better(GradeB))

	assert.True(t, GradeD.Worse(GradeC))
	assert.False(t, GradeA.Worse(GradeA))
}

func TestGradeDowngradedRaised(t *testing.T) {
	assert.Equal(t, GradeB, GradeA.Downgraded())
	assert.Equal(t, GradeC, GradeB.Downgraded())
	assert.Equal(t, GradeD, GradeC.Downgraded())
	assert.Equal(t, GradeD, GradeD.Downgraded(), "D is the floor")

	assert.Equal(t, GradeA, GradeA.Raised(), "A is the ceiling")
	assert.Equal(t, GradeA, GradeB.Raised())
	assert.Equal(t, GradeC, GradeD.Raised())
}

func TestGradeCapAt(t *testing.T) {
	tests := []struct {
		grade, ceiling, want SanadGrade
	}{
		{GradeA, GradeC, GradeC},
		{GradeD, GradeB, GradeD},
		{GradeB, GradeB, GradeB},
		{GradeC, GradeA, GradeC},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.grade.CapAt(tt.ceiling),
			"CapAt(%s, %s)", tt.grade, tt.ceiling)
	}
}

func TestMinMaxGrade(t *testing.T) {
	min, err := MinGrade([]SanadGrade{GradeA, GradeC, GradeB})
	require.NoError(t, err)
	assert.Equal(t, GradeC, min)

	max, err := MaxGrade([]SanadGrade{GradeD, GradeB, GradeC})
	require.NoError(t, err)
	assert.Equal(t, GradeB, max)

	_, err = MinGrade(nil)
	var empty *EmptyEvidenceError
	assert.ErrorAs(t, err, &empty, "empty input fails closed")

	_, err = MinGrade([]SanadGrade{GradeA, "Z"})
	var unknown *UnknownCodeError
	assert.ErrorAs(t, err, &unknown)
}

func TestRankPanicsOnInvalidGrade(t *testing.T) {
	assert.Panics(t, func() { SanadGrade("Z").Rank() })
}
