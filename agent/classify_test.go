package agent

import "testing"

func classifierForTest() *Classifier {
	defs := map[string]ToolDefinition{
		"read_file":  {Name: "read_file", ParallelSafe: true, Category: CategoryReadOnly},
		"grep":       {Name: "grep", ParallelSafe: true, Category: CategoryReadOnly},
		"write_file": {Name: "write_file", Category: CategoryWrite},
	}
	return NewClassifier(func(name string) (ToolDefinition, bool) {
		d, ok := defs[name]
		return d, ok
	})
}

func TestClassifyPartitionsPreserveOrder(t *testing.T) {
	c := classifierForTest()
	p := c.Classify([]ToolCall{
		{ID: "0", Name: "read_file"},
		{ID: "1", Name: "write_file"},
		{ID: "2", Name: "grep"},
		{ID: "3", Name: "write_file"},
	})

	if len(p.Parallel) != 2 || len(p.Sequential) != 2 {
		t.Fatalf("partition sizes = %d/%d, want 2/2", len(p.Parallel), len(p.Sequential))
	}
	if p.Parallel[0].Index != 0 || p.Parallel[1].Index != 2 {
		t.Errorf("parallel indices = %d,%d", p.Parallel[0].Index, p.Parallel[1].Index)
	}
	if p.Sequential[0].Index != 1 || p.Sequential[1].Index != 3 {
		t.Errorf("sequential indices = %d,%d", p.Sequential[0].Index, p.Sequential[1].Index)
	}
}

func TestClassifyUnknownToolIsSequential(t *testing.T) {
	c := classifierForTest()
	p := c.Classify([]ToolCall{{ID: "0", Name: "mystery_tool"}})

	if len(p.Parallel) != 0 || len(p.Sequential) != 1 {
		t.Errorf("unknown tool partitioned as %d parallel / %d sequential", len(p.Parallel), len(p.Sequential))
	}
}
