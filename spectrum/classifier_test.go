package spectrum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	match := MatchWindow{Start: 1000, End: 1100}

	tests := []struct {
		name string
		decl Declaration
		want Category
	}{
		{
			name: "measured with past voxel",
			decl: Declaration{FrameTimestamp: 1050, MeasuredData: true, Voxels: []Voxel{voxel(0, 1, 1040, 1049, 1)}},
			want: Historical,
		},
		{
			name: "measured voxel starting at frame",
			decl: Declaration{FrameTimestamp: 1050, MeasuredData: true, Voxels: []Voxel{voxel(0, 1, 1050, 1060, 1)}},
			want: Ignored,
		},
		{
			name: "unmeasured with future voxel",
			decl: Declaration{FrameTimestamp: 1050, Voxels: []Voxel{voxel(0, 1, 1040, 1051, 1)}},
			want: Predicted,
		},
		{
			name: "unmeasured voxel ending at frame",
			decl: Declaration{FrameTimestamp: 1050, Voxels: []Voxel{voxel(0, 1, 1040, 1050, 1)}},
			want: Ignored,
		},
		{
			name: "frame before match",
			decl: Declaration{FrameTimestamp: 999, MeasuredData: true, Voxels: []Voxel{voxel(0, 1, 990, 995, 1)}},
			want: Ignored,
		},
		{
			name: "frame after match",
			decl: Declaration{FrameTimestamp: 1101, Voxels: []Voxel{voxel(0, 1, 1101, 1200, 1)}},
			want: Ignored,
		},
		{
			name: "frame at match end",
			decl: Declaration{FrameTimestamp: 1100, MeasuredData: true, Voxels: []Voxel{voxel(0, 1, 1090, 1095, 1)}},
			want: Historical,
		},
		{
			name: "no voxels",
			decl: Declaration{FrameTimestamp: 1050},
			want: Ignored,
		},
		{
			name: "zero duty still classified",
			decl: Declaration{FrameTimestamp: 1050, Voxels: []Voxel{voxel(0, 1, 1050, 1060, 0)}},
			want: Predicted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.decl, match))
		})
	}
}

func TestClassifyAll(t *testing.T) {
	match := MatchWindow{Start: 0, End: 100}
	decls := []Declaration{
		{FrameTimestamp: 10, SourceID: "a", MeasuredData: true, Voxels: []Voxel{voxel(0, 1, 0, 5, 1)}},
		{FrameTimestamp: 20, SourceID: "a", Voxels: []Voxel{voxel(0, 1, 20, 30, 1)}},
		{FrameTimestamp: 30, SourceID: "b", Voxels: []Voxel{voxel(0, 1, 30, 40, 1)}},
		{FrameTimestamp: 200, SourceID: "a", Voxels: []Voxel{voxel(0, 1, 200, 210, 1)}},
		{FrameTimestamp: 5, SourceID: "a", MeasuredData: true, Voxels: []Voxel{voxel(0, 1, 0, 4, 1)}},
	}

	all := ClassifyAll(decls, match, "")
	assert.Len(t, all.Historical, 2)
	assert.Len(t, all.Predicted, 2)
	assert.Equal(t, 1, all.Ignored)
	assert.Equal(t, 10.0, all.Historical[0].FrameTimestamp, "arrival order kept")
	assert.Equal(t, 5.0, all.Historical[1].FrameTimestamp)

	onlyA := ClassifyAll(decls, match, "a")
	assert.Len(t, onlyA.Historical, 2)
	assert.Len(t, onlyA.Predicted, 1)
	assert.Equal(t, 2, onlyA.Ignored)
}

func TestCategory_String(t *testing.T) {
	assert.Equal(t, "historical", Historical.String())
	assert.Equal(t, "predicted", Predicted.String())
	assert.Equal(t, "ignored", Ignored.String())
}
