package history

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ParseStateRecord decodes a state record document whose keys are the
// record's field names. Both representation vectors are required and must
// have dim elements. Unlike Load, any malformed field is an error.
func ParseStateRecord(data []byte, dim int) (StateRecord, error) {
	if !gjson.ValidBytes(data) {
		return StateRecord{}, errors.New("state record is not valid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return StateRecord{}, errors.New("state record is not an object")
	}

	var (
		rec StateRecord
		err error
	)

	for field, dst := range map[string]*[]float64{
		FieldCurrentRepresentation: &rec.CurrentRepresentation,
		FieldRepresentation:        &rec.Representation,
	} {
		v := doc.Get(field)
		if !v.Exists() {
			return StateRecord{}, &FieldError{Field: field, Err: ErrFieldMissing}
		}
		if *dst, err = decodeVector(v.Raw, dim); err != nil {
			return StateRecord{}, &FieldError{Field: field, Err: err}
		}
	}

	if v := doc.Get(FieldLabels); v.Exists() {
		if rec.Labels, err = decodeStrings(v.Raw); err != nil {
			return StateRecord{}, &FieldError{Field: FieldLabels, Err: err}
		}
	}
	if v := doc.Get(FieldConfidences); v.Exists() {
		if rec.Confidences, err = decodeFloats(v.Raw); err != nil {
			return StateRecord{}, &FieldError{Field: FieldConfidences, Err: err}
		}
	}
	if len(rec.Labels) != len(rec.Confidences) {
		return StateRecord{}, &FieldError{
			Field: FieldConfidences,
			Err:   fmt.Errorf("%d confidences for %d labels", len(rec.Confidences), len(rec.Labels)),
		}
	}

	if v := doc.Get(FieldOtherIPs); v.Exists() {
		if rec.OtherIPs, err = decodeStrings(v.Raw); err != nil {
			return StateRecord{}, &FieldError{Field: FieldOtherIPs, Err: err}
		}
	}

	return rec, nil
}
