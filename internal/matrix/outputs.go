package matrix

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/savaki/cfn-actions/internal/models"
)

// Output names written to GITHUB_OUTPUT
const (
	OutputDev    = "dev_matrix"
	OutputInt    = "int_matrix"
	OutputProd   = "prod_matrix"
	OutputCustom = "custom_matrix"
)

// Outputs renders each bucket as a {"include": [...]} document, in the
// order dev, int, prod, custom.
func (m Matrices) Outputs() ([][2]string, error) {
	buckets := []struct {
		name  string
		items []models.MatrixItem
	}{
		{OutputDev, m.Dev},
		{OutputInt, m.Int},
		{OutputProd, m.Prod},
		{OutputCustom, m.Custom},
	}

	outputs := make([][2]string, 0, len(buckets))
	for _, bucket := range buckets {
		data, err := marshal(models.Matrix{Include: bucket.items})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", bucket.name, err)
		}
		outputs = append(outputs, [2]string{bucket.name, data})
	}
	return outputs, nil
}

// marshal encodes v without HTML escaping so values such as <, > and & reach
// the workflow unchanged.
func marshal(v models.Matrix) (string, error) {
	if v.Include == nil {
		v.Include = []models.MatrixItem{}
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
