package common

import (
	"fmt"
	"strings"

	"github.com/hermeznetwork/tracerr"
)

// Layer identifies one of the two ledgers of the system.  It determines which
// balance and receipt endpoint is used, and which fee accounting rule applies.
type Layer int

const (
	// LayerL1 is the base layer that anchors the rollup
	LayerL1 Layer = iota + 1
	// LayerL2 is the rollup layer
	LayerL2
)

// String returns the short name of the layer
func (l Layer) String() string {
	switch l {
	case LayerL1:
		return "L1"
	case LayerL2:
		return "L2"
	default:
		return fmt.Sprintf("Layer(%d)", int(l))
	}
}

// Valid returns true if the layer is one of the known layers
func (l Layer) Valid() bool {
	return l == LayerL1 || l == LayerL2
}

// ParseLayer parses a layer name.  Accepted values are "l1", "base", "l2" and
// "rollup" (case insensitive).
func ParseLayer(s string) (Layer, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l1", "base":
		return LayerL1, nil
	case "l2", "rollup":
		return LayerL2, nil
	default:
		return 0, tracerr.Wrap(fmt.Errorf("unknown layer %q", s))
	}
}

// MarshalText marshals a Layer
func (l Layer) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, tracerr.Wrap(fmt.Errorf("invalid layer %d", int(l)))
	}
	return []byte(l.String()), nil
}

// UnmarshalText unmarshals a Layer
func (l *Layer) UnmarshalText(data []byte) error {
	layer, err := ParseLayer(string(data))
	if err != nil {
		return tracerr.Wrap(err)
	}
	*l = layer
	return nil
}
