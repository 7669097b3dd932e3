package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArchitecture(t *testing.T) {
	for _, tag := range []string{"resnet50", "mobilenet", "customcnn", "vit"} {
		arch, err := ParseArchitecture(tag)
		require.NoError(t, err)
		assert.Equal(t, Architecture(tag), arch)
	}

	_, err := ParseArchitecture("efficientnet")
	assert.Error(t, err)
}

func TestLocateTargetNamed(t *testing.T) {
	outputs := []OutputInfo{
		{Name: "logits", Shape: []int64{1, 14}},
		{Name: "layer4", Shape: []int64{1, 2048, 7, 7}},
		{Name: "features", Shape: []int64{1, 960, 7, 7}},
	}

	target, err := ArchResNet50.LocateTarget(outputs)
	require.NoError(t, err)
	assert.Equal(t, "layer4", target.Name)

	target, err = ArchMobileNet.LocateTarget(outputs)
	require.NoError(t, err)
	assert.Equal(t, "features", target.Name)

	_, err = ArchViT.LocateTarget(outputs)
	assert.Error(t, err, "ViT target is not exported by this graph")
}

func TestLocateTargetCustomCNNWalksInReverse(t *testing.T) {
	outputs := []OutputInfo{
		{Name: "logits", Shape: []int64{1, 14}},
		{Name: "conv1", Shape: []int64{1, 32, 112, 112}},
		{Name: "conv2", Shape: []int64{1, 64, 56, 56}},
		{Name: "conv3", Shape: []int64{1, 128, 28, 28}},
	}

	target, err := ArchCustomCNN.LocateTarget(outputs)
	require.NoError(t, err)
	assert.Equal(t, "conv3", target.Name, "last spatial activation wins")
}

func TestLocateTargetCustomCNNNoSpatialOutput(t *testing.T) {
	outputs := []OutputInfo{{Name: "logits", Shape: []int64{1, 14}}}
	_, err := ArchCustomCNN.LocateTarget(outputs)
	assert.Error(t, err)
}

func TestSpatialActivationsConv(t *testing.T) {
	data := make([]float32, 2*3*3)
	for i := range data {
		data[i] = float32(i)
	}

	acts, err := ArchResNet50.SpatialActivations(data, []int64{1, 2, 3, 3})
	require.NoError(t, err)
	assert.Equal(t, 2, acts.Channels)
	assert.Equal(t, 3, acts.Height)
	assert.Equal(t, 3, acts.Width)
	assert.Equal(t, data, acts.Data, "conv activations pass through unchanged")
}

func TestSpatialActivationsConvBadShape(t *testing.T) {
	_, err := ArchMobileNet.SpatialActivations(make([]float32, 10), []int64{1, 10})
	assert.Error(t, err)

	_, err = ArchMobileNet.SpatialActivations(make([]float32, 10), []int64{1, 2, 3, 3})
	assert.Error(t, err, "data length must match shape")
}

func TestSpatialActivationsViT(t *testing.T) {
	// 5 tokens (1 CLS + 4 patches), embedding dim 3.
	tokens, dim := 5, 3
	data := make([]float32, tokens*dim)
	for i := range data {
		data[i] = float32(i)
	}

	acts, err := ArchViT.SpatialActivations(data, []int64{1, int64(tokens), int64(dim)})
	require.NoError(t, err)
	assert.Equal(t, dim, acts.Channels)
	assert.Equal(t, 2, acts.Height)
	assert.Equal(t, 2, acts.Width)

	// Patch token t, channel c lands at Data[c*patches+t]; the CLS token
	// (values 0..2) is gone.
	assert.Equal(t, float32(3), acts.Data[0], "patch 0, channel 0")
	assert.Equal(t, float32(6), acts.Data[1], "patch 1, channel 0")
	assert.Equal(t, float32(4), acts.Data[4], "patch 0, channel 1")
	assert.NotContains(t, acts.Data, float32(0))
}

func TestSpatialActivationsViTNonSquare(t *testing.T) {
	// 4 tokens → 3 patches, not a square grid.
	_, err := ArchViT.SpatialActivations(make([]float32, 4*3), []int64{1, 4, 3})
	assert.Error(t, err)
}
