package scanstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/open-teleop/airscan/pkg/pointcloud"
	"go.uber.org/multierr"
)

// writeLAS writes point format 0 records, one per point.
func writeLAS(path string, cloud *pointcloud.Cloud) (err error) {
	lf, err := lidario.NewLasFile(path, "w")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, lf.Close())
	}()

	if err = lf.AddHeader(lidario.LasHeader{PointFormatID: 0}); err != nil {
		return err
	}
	for _, p := range cloud.Points {
		pr := &lidario.PointRecord0{
			X: p.X,
			Y: p.Y,
			Z: p.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3),
			},
			PointSourceID: 1,
		}
		if err = lf.AddLasPoint(pr); err != nil {
			return err
		}
	}
	return nil
}

// Public header block layout shared by LAS 1.0 to 1.4.
const (
	lasHeaderLen         = 227
	lasOffsetToPointsPos = 96
	lasPointFormatPos    = 104
	lasRecordLengthPos   = 105
	lasNumberPointsPos   = 107
)

// checkLASHeader rejects files whose header claims more point data than
// the file holds. lidario allocates its point buffers from the header.
func checkLASHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr := make([]byte, lasHeaderLen)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return fmt.Errorf("las header: %w", err)
	}
	if string(hdr[:4]) != "LASF" {
		return errors.New("not a las file")
	}
	if format := hdr[lasPointFormatPos]; format > 3 {
		return fmt.Errorf("unsupported las point format %d", format)
	}
	offset := int64(binary.LittleEndian.Uint32(hdr[lasOffsetToPointsPos:]))
	recLen := int64(binary.LittleEndian.Uint16(hdr[lasRecordLengthPos:]))
	points := int64(binary.LittleEndian.Uint32(hdr[lasNumberPointsPos:]))
	if need := offset + points*recLen; need > info.Size() {
		return fmt.Errorf("las header claims %d points of %d bytes from offset %d, file has %d bytes",
			points, recLen, offset, info.Size())
	}
	return nil
}

func readLAS(path string) (cloud *pointcloud.Cloud, err error) {
	if err := checkLASHeader(path); err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			cloud, err = nil, fmt.Errorf("las %s: %v", path, r)
		}
	}()

	lf, err := lidario.NewLasFile(path, "r")
	if err != nil {
		return nil, err
	}
	defer lf.Close()

	cloud = &pointcloud.Cloud{Points: make([]r3.Vector, 0, min(lf.Header.NumberPoints, maxPreallocPoints))}
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, err
		}
		d := p.PointData()
		cloud.Points = append(cloud.Points, r3.Vector{X: d.X, Y: d.Y, Z: d.Z})
	}
	return cloud, nil
}
