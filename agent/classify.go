package agent

// IndexedCall pairs a tool call with its position in the original batch so
// results can be written back index-stable.
type IndexedCall struct {
	Index int
	Call  ToolCall
}

// Partition is the result of classifying one tool-call batch.
type Partition struct {
	Parallel   []IndexedCall
	Sequential []IndexedCall
}

// Classifier partitions tool-call batches by static per-tool metadata.
type Classifier struct {
	lookup func(name string) (ToolDefinition, bool)
}

// NewClassifier creates a classifier backed by the given registry lookup.
func NewClassifier(lookup func(name string) (ToolDefinition, bool)) *Classifier {
	return &Classifier{lookup: lookup}
}

// Classify splits calls into parallel-safe and must-be-sequential groups.
// Unknown tools are sequential: they fail during execution and failure
// bookkeeping is simpler off the serial path. Both partitions retain the
// original order.
func (c *Classifier) Classify(calls []ToolCall) Partition {
	var p Partition
	for i, call := range calls {
		def, ok := c.lookup(call.Name)
		if ok && def.ParallelSafe {
			p.Parallel = append(p.Parallel, IndexedCall{Index: i, Call: call})
		} else {
			p.Sequential = append(p.Sequential, IndexedCall{Index: i, Call: call})
		}
	}
	return p
}
