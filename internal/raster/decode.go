package raster

// AllBands are the band indices of the 4-band analytic product.
var AllBands = []int{Blue, Green, Red, NIR}

// VisualBands are the indices composing the RGB image of a scene.
var VisualBands = []int{Red, Green, Blue}

// Decode reads the requested bands of rasterPath and converts them to
// reflectance with the coefficients of metadataPath. All four bands are
// decoded when no index is given.
func Decode(rasterPath, metadataPath string, indices ...int) (map[int]Band, GeoInfo, error) {
	if len(indices) == 0 {
		indices = AllBands
	}

	coeff, err := ReadCoefficients(metadataPath)
	if err != nil {
		return nil, GeoInfo{}, err
	}
	if err := coeff.Require(metadataPath, indices...); err != nil {
		return nil, GeoInfo{}, err
	}

	raw, info, err := ReadBands(rasterPath, indices...)
	if err != nil {
		return nil, info, err
	}

	calibrated := make(map[int]Band, len(raw))
	for index, band := range raw {
		calibrated[index] = band.Scale(coeff[index])
	}
	return calibrated, info, nil
}

// ReadImage returns the calibrated red, green and blue bands in that order.
func ReadImage(rasterPath, metadataPath string) ([]Band, GeoInfo, error) {
	bands, info, err := Decode(rasterPath, metadataPath, VisualBands...)
	if err != nil {
		return nil, info, err
	}
	return Visual(bands), info, nil
}

// Visual picks the red, green and blue bands out of decoded bands.
func Visual(bands map[int]Band) []Band {
	image := make([]Band, 0, len(VisualBands))
	for _, index := range VisualBands {
		image = append(image, bands[index])
	}
	return image
}
