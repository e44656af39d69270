package integration

import "pathguide/pkg/types"

func addrs(vals ...uint64) []types.FlexibleUint64 {
	out := make([]types.FlexibleUint64, len(vals))
	for i, v := range vals {
		out[i] = types.NewFlexibleUint64(v)
	}
	return out
}
