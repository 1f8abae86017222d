package geoclient

import (
	"net/url"
	"strings"

	"github.com/gothamgeo/geoclient/internal/models"
)

// Endpoint names one of the Geoclient lookup endpoints.
type Endpoint string

const (
	// EndpointAddress resolves a house number and street within a borough or zip.
	EndpointAddress Endpoint = "address"
	// EndpointBin resolves a Building Identification Number.
	EndpointBin Endpoint = "bin"
	// EndpointBbl resolves a Borough-Block-Lot tax identifier.
	EndpointBbl Endpoint = "bbl"
)

// ParamSpec binds one API query parameter to an input column.
type ParamSpec struct {
	Param    string // query parameter name expected by the API
	Field    string // input column providing the value
	Required bool   // a row without this value fails with MissingFieldError
}

// Variant describes one lookup flavor: the endpoint it targets, how query
// parameters are drawn from an input row, and which response attributes are
// projected when the caller does not pick its own set.
type Variant struct {
	Endpoint Endpoint
	Params   []ParamSpec
	// AnyOf lists optional parameters of which at least one must resolve to
	// a value on every row. The address endpoint accepts borough or zip, but
	// rejects requests carrying neither.
	AnyOf         []string
	DefaultFields []string
}

// AddressVariant targets the address endpoint. houseNumberCol and streetCol
// are mandatory input columns; boroughCol and zipCol may each be empty, but
// at least one of them has to be configured and populated per row.
func AddressVariant(houseNumberCol, streetCol, boroughCol, zipCol string) Variant {
	params := []ParamSpec{
		{Param: "houseNumber", Field: houseNumberCol, Required: true},
		{Param: "street", Field: streetCol, Required: true},
	}
	var anyOf []string
	if boroughCol != "" {
		params = append(params, ParamSpec{Param: "borough", Field: boroughCol})
		anyOf = append(anyOf, "borough")
	}
	if zipCol != "" {
		params = append(params, ParamSpec{Param: "zip", Field: zipCol})
		anyOf = append(anyOf, "zip")
	}

	return Variant{
		Endpoint: EndpointAddress,
		Params:   params,
		AnyOf:    anyOf,
		DefaultFields: []string{
			"latitude",
			"longitude",
			"bbl",
			"buildingIdentificationNumber",
			"communityDistrict",
			"uspsPreferredCityName",
		},
	}
}

// BinVariant targets the building-identification-number endpoint.
func BinVariant(binCol string) Variant {
	return Variant{
		Endpoint: EndpointBin,
		Params: []ParamSpec{
			{Param: "bin", Field: binCol, Required: true},
		},
		DefaultFields: []string{
			"latitudeInternalLabel",
			"longitudeInternalLabel",
			"bbl",
			"lowHouseNumber",
			"firstStreetNameNormalized",
		},
	}
}

// BblVariant targets the borough-block-lot endpoint.
func BblVariant(boroughCol, blockCol, lotCol string) Variant {
	return Variant{
		Endpoint: EndpointBbl,
		Params: []ParamSpec{
			{Param: "borough", Field: boroughCol, Required: true},
			{Param: "block", Field: blockCol, Required: true},
			{Param: "lot", Field: lotCol, Required: true},
		},
		DefaultFields: []string{
			"latitudeInternalLabel",
			"longitudeInternalLabel",
			"buildingIdentificationNumber",
			"lowHouseNumberOfBbl",
			"taxMapNumberSectionAndVolume",
		},
	}
}

// BuildParams extracts the variant's query parameters from one input row.
// An absent or empty required column yields a MissingFieldError; optional
// columns are simply left out of the query when empty.
func (v Variant) BuildParams(row models.Row) (url.Values, error) {
	params := url.Values{}
	for _, spec := range v.Params {
		value := row.Get(spec.Field)
		if value == "" {
			if spec.Required {
				return nil, &MissingFieldError{Field: spec.Field}
			}
			continue
		}
		params.Set(spec.Param, value)
	}

	if len(v.AnyOf) > 0 && !v.anyOfSatisfied(params) {
		columns := make([]string, 0, len(v.AnyOf))
		for _, name := range v.AnyOf {
			columns = append(columns, v.fieldFor(name))
		}
		return nil, &MissingFieldError{Field: strings.Join(columns, " or ")}
	}

	return params, nil
}

func (v Variant) anyOfSatisfied(params url.Values) bool {
	for _, name := range v.AnyOf {
		if params.Get(name) != "" {
			return true
		}
	}
	return false
}

func (v Variant) fieldFor(param string) string {
	for _, spec := range v.Params {
		if spec.Param == param {
			return spec.Field
		}
	}
	return param
}
