package patient

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
)

//go:embed seeddata/patients.json
var samplePatientsJSON []byte

// SamplePatients returns fresh copies of the demo patients loaded by the
// seed command.
func SamplePatients() ([]*Patient, error) {
	var out []*Patient
	dec := json.NewDecoder(bytes.NewReader(samplePatientsJSON))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode sample patients: %w", err)
	}
	return out, nil
}
