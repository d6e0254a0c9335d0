package classifier

import (
	"fmt"

	"github.com/Brownie44l1/leafcheck/internal/model"
)

// LabelTable maps output index i of the model to entry i.
type LabelTable []model.Label

func LabelsFromMetadata(metadata model.Metadata) LabelTable {
	return LabelTable(metadata.Labels)
}

// Check reports whether the table lines up with a model producing size scores.
func (t LabelTable) Check(size int) error {
	if len(t) == 0 {
		return fmt.Errorf("label table is empty")
	}
	if len(t) != size {
		return fmt.Errorf("label table has %d entries, model outputs %d scores", len(t), size)
	}
	for i, l := range t {
		if l.Label == "" {
			return fmt.Errorf("label %d (%s) has no readable name", i, l.Class)
		}
	}
	return nil
}

func (t LabelTable) Contains(label string) bool {
	for _, l := range t {
		if l.Label == label {
			return true
		}
	}
	return false
}
