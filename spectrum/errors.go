package spectrum

import "errors"

var (
	// ErrNoOccupancy is returned when a match has no usable ground truth.
	ErrNoOccupancy = errors.New("occupancy grid missing or empty")

	// ErrEmptyMatchWindow is returned when match end is not after match start.
	ErrEmptyMatchWindow = errors.New("empty match window")

	// ErrMalformedVoxel wraps the reason a voxel was excluded. Never fatal.
	ErrMalformedVoxel = errors.New("malformed voxel")
)
