package keyword_test

import (
	"testing"

	"github.com/MrWong99/sparkie/pkg/provider/keyword"
)

func TestTensorValidate(t *testing.T) {
	tests := []struct {
		name    string
		tensor  keyword.Tensor
		wantErr bool
	}{
		{"ok", keyword.Tensor{Shape: []int{1, 2, 3}, Data: make([]float32, 6)}, false},
		{"no shape", keyword.Tensor{Data: make([]float32, 6)}, true},
		{"zero dim", keyword.Tensor{Shape: []int{1, 0}, Data: nil}, true},
		{"size mismatch", keyword.Tensor{Shape: []int{2, 2}, Data: make([]float32, 3)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tensor.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
