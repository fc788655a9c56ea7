package scanstore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/open-teleop/airscan/pkg/pointcloud"
	"go.uber.org/multierr"
)

func writeFile(path string, cloud *pointcloud.Cloud, encode func(io.Writer, *pointcloud.Cloud) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err = encode(w, cloud); err != nil {
		return err
	}
	return w.Flush()
}

func readFile(path string, decode func(io.Reader) (*pointcloud.Cloud, error)) (*pointcloud.Cloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(bufio.NewReader(f))
}

// writeXYZ writes one "x y z" line per point with 18 fractional digits in
// exponent form, the layout numpy.savetxt produces by default.
func writeXYZ(w io.Writer, cloud *pointcloud.Cloud) error {
	for _, p := range cloud.Points {
		if _, err := fmt.Fprintf(w, "%.18e %.18e %.18e\n", p.X, p.Y, p.Z); err != nil {
			return err
		}
	}
	return nil
}

// readXYZ accepts whitespace-separated columns; blank lines and '#' comments
// are ignored and columns past the third are dropped.
func readXYZ(r io.Reader) (*pointcloud.Cloud, error) {
	sc := bufio.NewScanner(r)
	cloud := &pointcloud.Cloud{}
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: want 3 columns, got %d", line, len(fields))
		}
		var v [3]float64
		for i := range v {
			f, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			v[i] = f
		}
		cloud.Points = append(cloud.Points, r3.Vector{X: v[0], Y: v[1], Z: v[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return cloud, nil
}
