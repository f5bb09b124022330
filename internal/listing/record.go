package listing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Record is one property pulled out of listing text. Fields the text does
// not mention stay nil.
type Record struct {
	Address       *string `json:"address"`
	Price         *string `json:"price"`
	PropertyType  *string `json:"property_type"`
	Bedrooms      *string `json:"bedrooms"`
	Bathrooms     *string `json:"bathrooms"`
	SquareFootage *string `json:"square_footage"`
}

// Clone returns a copy that shares no field pointers with r
func (r Record) Clone() Record {
	return Record{
		Address:       cloneString(r.Address),
		Price:         cloneString(r.Price),
		PropertyType:  cloneString(r.PropertyType),
		Bedrooms:      cloneString(r.Bedrooms),
		Bathrooms:     cloneString(r.Bathrooms),
		SquareFootage: cloneString(r.SquareFootage),
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Columns are the export column names, in record field order
var Columns = []string{"address", "price", "property_type", "bedrooms", "bathrooms", "square_footage"}

// Values returns the fields in Columns order, nil fields as ""
func (r Record) Values() []string {
	fields := []*string{r.Address, r.Price, r.PropertyType, r.Bedrooms, r.Bathrooms, r.SquareFootage}
	out := make([]string, len(fields))
	for i, f := range fields {
		if f != nil {
			out[i] = *f
		}
	}
	return out
}

// ErrSchema marks model output that does not fit the listing schema
var ErrSchema = errors.New("response does not match listing schema")

// flexString accepts a JSON string, number or bool and keeps its text form
type flexString struct {
	value *string
}

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		f.value = nil
		return nil
	}

	var s string
	switch {
	case len(data) > 0 && data[0] == '"':
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		s = string(data)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		s = n.String()
	}

	s = strings.TrimSpace(s)
	if s == "" {
		f.value = nil
		return nil
	}
	f.value = &s
	return nil
}

type rawRecord struct {
	Address       flexString `json:"address"`
	Price         flexString `json:"price"`
	PropertyType  flexString `json:"property_type"`
	Bedrooms      flexString `json:"bedrooms"`
	Bathrooms     flexString `json:"bathrooms"`
	SquareFootage flexString `json:"square_footage"`
}

type rawListing struct {
	Properties *[]rawRecord `json:"properties"`
}

// DecodeListing parses a {"properties": [...]} document. Unknown keys, a
// missing properties list or values that are neither strings nor numbers
// fail with ErrSchema.
func DecodeListing(text string) ([]Record, error) {
	dec := json.NewDecoder(strings.NewReader(stripCodeFence(text)))
	dec.DisallowUnknownFields()

	var raw rawListing
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after listing object", ErrSchema)
	}
	if raw.Properties == nil {
		return nil, fmt.Errorf("%w: missing properties list", ErrSchema)
	}

	records := make([]Record, 0, len(*raw.Properties))
	for _, r := range *raw.Properties {
		records = append(records, Record{
			Address:       r.Address.value,
			Price:         r.Price.value,
			PropertyType:  r.PropertyType.value,
			Bedrooms:      r.Bedrooms.value,
			Bathrooms:     r.Bathrooms.value,
			SquareFootage: r.SquareFootage.value,
		})
	}
	return records, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
