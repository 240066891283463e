package protocol

import "fmt"

var fieldKinds = map[string][]Kind{
	KeyCommand:  {KindString, KindNull},
	KeyStatus:   {KindString, KindNull},
	KeyFilename: {KindString, KindNull},
	KeyFileData: {KindBytes, KindNull},
	KeyDetails:  {KindString, KindNull},
}

// Validate checks r against the payload invariants, in order: key
// completeness, value kinds, serialized size against maxSize, then the
// command and status names.
func Validate(r Record, maxSize uint64) error {
	if err := validateKeys(r); err != nil {
		return err
	}

	if err := validateKinds(r); err != nil {
		return err
	}

	if size := EncodedLen(r); size > maxSize {
		return &SizeError{Size: size, Max: maxSize}
	}

	return validateNames(r)
}

func validateKeys(r Record) error {
	seen := make(map[string]int, len(r))
	serr := &StructuralError{}

	for _, f := range r {
		seen[f.Key]++

		if _, ok := fieldKinds[f.Key]; !ok {
			serr.Unexpected = append(serr.Unexpected, f.Key)
		} else if seen[f.Key] == 2 {
			serr.Duplicate = append(serr.Duplicate, f.Key)
		}
	}

	for _, key := range Keys {
		if seen[key] == 0 {
			serr.Missing = append(serr.Missing, key)
		}
	}

	if len(serr.Missing)+len(serr.Unexpected)+len(serr.Duplicate) > 0 {
		return serr
	}

	return nil
}

func validateKinds(r Record) error {
	for _, key := range Keys {
		v, _ := r.Get(key)
		want := fieldKinds[key]

		ok := false
		for _, k := range want {
			if v.Kind == k {
				ok = true
				break
			}
		}

		if !ok {
			return &FieldTypeError{Field: key, Got: v.Kind, Want: want}
		}
	}

	return nil
}

func validateNames(r Record) error {
	if v, _ := r.Get(KeyCommand); !v.IsNull() {
		if _, ok := ParseCommand(v.Str); !ok {
			return fmt.Errorf("%w: %q", ErrCommand, v.Str)
		}
	}

	if v, _ := r.Get(KeyStatus); !v.IsNull() {
		if _, ok := ParseStatus(v.Str); !ok {
			return fmt.Errorf("%w: %q", ErrStatus, v.Str)
		}
	}

	return nil
}
