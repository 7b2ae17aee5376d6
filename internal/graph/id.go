package graph

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"
)

// NewNodeID returns an identifier of the form "node_{unixMillis}_{base36}".
// Uniqueness is probabilistic, which is enough for interactively edited graphs.
func NewNodeID() string {
	suffix := strconv.FormatUint(rand.Uint64(), 36)
	if len(suffix) > 9 {
		suffix = suffix[:9]
	}
	return fmt.Sprintf("node_%d_%s", time.Now().UnixMilli(), suffix)
}
