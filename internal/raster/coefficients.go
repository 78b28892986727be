package raster

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Coefficients maps a band index (1-4) to its reflectance coefficient.
type Coefficients map[int]float64

type bandSpecificMetadata struct {
	BandNumber             string `xml:"bandNumber"`
	ReflectanceCoefficient string `xml:"reflectanceCoefficient"`
}

// Require fails with MissingBandError for the first index without a coefficient.
func (c Coefficients) Require(source string, indices ...int) error {
	for _, i := range indices {
		if _, ok := c[i]; !ok {
			return &MissingBandError{Band: i, Source: source}
		}
	}
	return nil
}

func ReadCoefficients(path string) (Coefficients, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &MetadataParseError{Path: path, Reason: "cannot open sidecar", Err: err}
	}
	defer file.Close()

	return ParseCoefficients(file, path)
}

// ParseCoefficients reads the bandSpecificMetadata elements of an analytic
// metadata document. Namespace prefixes are ignored.
func ParseCoefficients(r io.Reader, source string) (Coefficients, error) {
	decoder := xml.NewDecoder(r)
	coeff := make(Coefficients)
	found := 0

	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &MetadataParseError{Path: source, Reason: "malformed xml", Err: err}
		}

		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "bandSpecificMetadata" {
			continue
		}

		var node bandSpecificMetadata
		if err := decoder.DecodeElement(&node, &start); err != nil {
			return nil, &MetadataParseError{Path: source, Reason: "malformed bandSpecificMetadata", Err: err}
		}
		found++

		band := strings.TrimSpace(node.BandNumber)
		switch band {
		case "1", "2", "3", "4":
		default:
			continue
		}
		index, _ := strconv.Atoi(band)

		value, err := strconv.ParseFloat(strings.TrimSpace(node.ReflectanceCoefficient), 64)
		if err != nil {
			return nil, &MetadataParseError{
				Path:   source,
				Reason: fmt.Sprintf("invalid reflectance coefficient for band %d", index),
				Err:    err,
			}
		}
		coeff[index] = value
	}

	if found == 0 {
		return nil, &MetadataParseError{Path: source, Reason: "no bandSpecificMetadata elements"}
	}
	return coeff, nil
}
