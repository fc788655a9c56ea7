package scanstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"

	"github.com/golang/geo/r3"
	"github.com/open-teleop/airscan/pkg/pointcloud"
)

var npyMagic = []byte("\x93NUMPY")

// writeNPY writes an (N, 3) little-endian float64 array in NumPy format 1.0.
func writeNPY(w io.Writer, cloud *pointcloud.Cloud) error {
	header := fmt.Sprintf("{'descr': '<f8', 'fortran_order': False, 'shape': (%d, 3), }", cloud.Len())
	// magic(6) + version(2) + length(2) + header + '\n' is padded to 64 bytes.
	total := len(npyMagic) + 4 + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += string(bytes.Repeat([]byte{' '}, 64-pad))
	}
	header += "\n"
	if len(header) > math.MaxUint16 {
		return errors.New("npy header too long")
	}

	buf := make([]byte, 0, len(npyMagic)+4+len(header))
	buf = append(buf, npyMagic...)
	buf = append(buf, 1, 0)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(header)))
	buf = append(buf, header...)
	if _, err := w.Write(buf); err != nil {
		return err
	}

	row := make([]byte, 24)
	for _, p := range cloud.Points {
		binary.LittleEndian.PutUint64(row[0:], math.Float64bits(p.X))
		binary.LittleEndian.PutUint64(row[8:], math.Float64bits(p.Y))
		binary.LittleEndian.PutUint64(row[16:], math.Float64bits(p.Z))
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

var (
	npyDescr   = regexp.MustCompile(`'descr':\s*'([<>|=]?)([fi])(\d)'`)
	npyFortran = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	npyShape   = regexp.MustCompile(`'shape':\s*\((\d+),\s*(\d+)\s*\)`)
)

// readNPY reads a C-ordered (N, 3) array of float32 or float64, either byte
// order, NumPy format 1.x or 2.x.
func readNPY(r io.Reader) (*pointcloud.Cloud, error) {
	pre := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(r, pre); err != nil {
		return nil, fmt.Errorf("npy preamble: %w", err)
	}
	if !bytes.Equal(pre[:len(npyMagic)], npyMagic) {
		return nil, errors.New("not an npy file")
	}

	var headerLen int
	switch major := pre[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, err
		}
		headerLen = int(n)
	default:
		return nil, fmt.Errorf("unsupported npy version %d", major)
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("npy header: %w", err)
	}

	descr := npyDescr.FindSubmatch(header)
	shape := npyShape.FindSubmatch(header)
	if descr == nil || shape == nil {
		return nil, fmt.Errorf("unsupported npy header %q", bytes.TrimSpace(header))
	}
	if m := npyFortran.FindSubmatch(header); m != nil && string(m[1]) == "True" {
		return nil, errors.New("fortran-ordered npy arrays are not supported")
	}
	if string(descr[2]) != "f" || (string(descr[3]) != "4" && string(descr[3]) != "8") {
		return nil, fmt.Errorf("unsupported npy dtype %s%s", descr[2], descr[3])
	}
	var order binary.ByteOrder = binary.LittleEndian
	if string(descr[1]) == ">" {
		order = binary.BigEndian
	}
	rows, err := strconv.Atoi(string(shape[1]))
	if err != nil {
		return nil, fmt.Errorf("npy shape rows %q: %w", shape[1], err)
	}
	cols, err := strconv.Atoi(string(shape[2]))
	if err != nil {
		return nil, fmt.Errorf("npy shape columns %q: %w", shape[2], err)
	}
	if cols != 3 {
		return nil, fmt.Errorf("npy shape (%d, %d): want 3 columns", rows, cols)
	}

	width := 8
	if string(descr[3]) == "4" {
		width = 4
	}
	row := make([]byte, 3*width)
	value := func(b []byte) float64 {
		if width == 4 {
			return float64(math.Float32frombits(order.Uint32(b)))
		}
		return math.Float64frombits(order.Uint64(b))
	}

	// The row count comes from the file; truncated data fails on read.
	cloud := &pointcloud.Cloud{Points: make([]r3.Vector, 0, min(rows, maxPreallocPoints))}
	for i := 0; i < rows; i++ {
		if _, err := io.ReadFull(r, row); err != nil {
			return nil, fmt.Errorf("npy row %d: %w", i, err)
		}
		cloud.Points = append(cloud.Points, r3.Vector{
			X: value(row[0:width]),
			Y: value(row[width : 2*width]),
			Z: value(row[2*width:]),
		})
	}
	return cloud, nil
}
