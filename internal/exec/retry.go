package exec

import (
	"fmt"

	"github.com/dbcore/erdb/internal/common"
)

// TupleIdSource is implemented by scan nodes that can report which
// physical tuple their most recently produced row came from — Update and
// Delete need this to know what to write to. sourceTupleId looks through
// any Filter wrapping the scan.
type TupleIdSource interface {
	LastTupleId() common.TupleId
}

func sourceTupleId(e Executor) (common.TupleId, error) {
	if s, ok := e.(TupleIdSource); ok {
		return s.LastTupleId(), nil
	}
	if f, ok := e.(*Filter); ok {
		return sourceTupleId(f.Child)
	}
	return common.TupleId{}, fmt.Errorf("exec: write target has no underlying scan to identify the tuple")
}
