package source

import (
	"github.com/tingold/geocouple/flatgeobuf"
	"github.com/tingold/geocouple/internal/crs"
	"github.com/tingold/geocouple/internal/failure"
	"github.com/tingold/geocouple/internal/geodata"
)

// decodeFlatGeobuf reads a FlatGeobuf layer. The CRS is taken from the
// header code, or its WKT when the code is missing.
func decodeFlatGeobuf(data []byte) (*geodata.Dataset, error) {
	r, err := flatgeobuf.NewReaderFromData(data)
	if err != nil {
		return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "open flatgeobuf")
	}
	defer r.Close()

	fc, err := r.ReadAll()
	if err != nil {
		return nil, failure.Wrap(failure.ErrAcquisitionFailed, err, "read flatgeobuf")
	}

	return geodata.New(fc, headerCRS(r.Header())), nil
}

func headerCRS(h *flatgeobuf.Header) *crs.CRS {
	if h == nil || h.CRS == nil {
		return nil
	}
	if h.CRS.Code > 0 && (h.CRS.Org == "" || h.CRS.Org == "EPSG") {
		return crs.EPSG(h.CRS.Code)
	}
	if h.CRS.WKT != "" {
		return crs.Parse(h.CRS.WKT)
	}
	return crs.Parse(h.CRS.Description)
}
